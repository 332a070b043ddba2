package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"

	"github.com/zhiming817/x402-solana/solana"
	"github.com/zhiming817/x402-solana/types"
)

type fakeRPC struct {
	sendCalls   int
	failAfter   int
	sendErr     error
	sent        []*sdk.Transaction
	statusCalls int
}

func (f *fakeRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            sdk.Hash{1},
			LastValidBlockHeight: 100,
		},
	}, nil
}

func (f *fakeRPC) SendTransaction(ctx context.Context, tx *sdk.Transaction) (sdk.Signature, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return sdk.Signature{}, f.sendErr
	}
	if f.failAfter > 0 && f.sendCalls > f.failAfter {
		return sdk.Signature{}, errors.New("transaction already processed")
	}
	f.sent = append(f.sent, tx)
	if len(tx.Signatures) > 0 {
		return tx.Signatures[0], nil
	}
	return sdk.Signature{}, nil
}

func (f *fakeRPC) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...sdk.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.statusCalls++
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{
			{Slot: 42, ConfirmationStatus: rpc.ConfirmationStatusFinalized},
		},
	}, nil
}

func (f *fakeRPC) GetBalance(ctx context.Context, account sdk.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	return &rpc.GetBalanceResult{Value: 0}, nil
}

func signedEnvelopes(t *testing.T, network types.Network) (*types.PaymentPayload, *types.PaymentRequirements) {
	t.Helper()

	wallet, err := solana.NewWallet()
	require.NoError(t, err)
	recipient := sdk.NewWallet().PublicKey()

	inst := system.NewTransferInstruction(1800, wallet.PublicKey(), recipient).Build()
	tx, err := sdk.NewTransaction(
		[]sdk.Instruction{inst},
		sdk.Hash{5},
		sdk.TransactionPayer(wallet.PublicKey()),
	)
	require.NoError(t, err)
	require.NoError(t, wallet.SignTransaction(tx))

	encoded, err := solana.SerializeTransaction(tx)
	require.NoError(t, err)

	payload := &types.PaymentPayload{
		X402Version:       1,
		Scheme:            types.SchemeExact,
		Network:           network,
		SignedTransaction: encoded,
		From:              wallet.PublicKey().String(),
	}
	requirements := &types.PaymentRequirements{
		X402Version:       1,
		Scheme:            types.SchemeExact,
		Network:           network,
		MaxAmountRequired: "1800",
		PayTo:             recipient.String(),
	}
	return payload, requirements
}

func newTestService(fake *fakeRPC) *SettlementService {
	builder := solana.NewTransactionBuilderWithClient(fake, solana.WithConfirmPolicy(1, time.Millisecond))
	return NewSettlementService(types.NetworkSolanaDevnet, builder)
}

func TestSettleSubmitsSignedBytes(t *testing.T) {
	payload, requirements := signedEnvelopes(t, types.NetworkSolanaDevnet)

	fake := &fakeRPC{}
	svc := newTestService(fake)

	resp, err := svc.Settle(context.Background(), payload, requirements)
	require.NoError(t, err)
	require.True(t, resp.Settled)
	require.NotEmpty(t, resp.Signature)

	require.Len(t, fake.sent, 1)
	require.Equal(t, fake.sent[0].Signatures[0].String(), resp.Signature)
}

func TestSettleVerificationFailureSkipsSubmission(t *testing.T) {
	payload, requirements := signedEnvelopes(t, types.NetworkSolana)

	// Service is configured for devnet; the mainnet proof must fail
	// verification before anything reaches the ledger.
	fake := &fakeRPC{}
	svc := newTestService(fake)

	resp, err := svc.Settle(context.Background(), payload, requirements)
	require.NoError(t, err)
	require.False(t, resp.Settled)
	require.NotEmpty(t, resp.Message)
	require.Zero(t, fake.sendCalls)
}

func TestSettleTwicePropagatesSecondFailure(t *testing.T) {
	payload, requirements := signedEnvelopes(t, types.NetworkSolanaDevnet)

	fake := &fakeRPC{failAfter: 1}
	svc := newTestService(fake)

	first, err := svc.Settle(context.Background(), payload, requirements)
	require.NoError(t, err)
	require.True(t, first.Settled)

	_, err = svc.Settle(context.Background(), payload, requirements)
	require.Error(t, err)

	var x402Err *types.X402Error
	require.ErrorAs(t, err, &x402Err)
	require.Equal(t, types.ErrSettlementFailed, x402Err.Code)
}

func TestSettleLedgerFaultIsError(t *testing.T) {
	payload, requirements := signedEnvelopes(t, types.NetworkSolanaDevnet)

	fake := &fakeRPC{sendErr: errors.New("rpc unavailable")}

	svc := newTestService(fake)
	_, err := svc.Settle(context.Background(), payload, requirements)
	// A broadcast failure must not come back as Settled=false.
	require.Error(t, err)

	var x402Err *types.X402Error
	require.ErrorAs(t, err, &x402Err)
	require.Equal(t, types.ErrSettlementFailed, x402Err.Code)
}
