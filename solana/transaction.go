package solana

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	bin "github.com/gagliardetto/binary"
	sdk "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/zhiming817/x402-solana/types"
)

// RPCClient is the narrow ledger surface the codec needs: a freshness
// token, transaction submission with confirmation lookup, and balance
// inspection. *rpc.Client satisfies it.
type RPCClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransaction(ctx context.Context, tx *sdk.Transaction) (sdk.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...sdk.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetBalance(ctx context.Context, account sdk.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
}

var _ RPCClient = (*rpc.Client)(nil)

// TransactionBuilder builds, signs and submits payment transactions.
// Build and Submit are deliberately separate operations: verification
// needs to decode without touching the network, and settlement must
// submit bytes it did not construct.
type TransactionBuilder struct {
	client          RPCClient
	confirmAttempts uint
	confirmDelay    time.Duration
}

// BuilderOption configures a TransactionBuilder.
type BuilderOption func(*TransactionBuilder)

// WithConfirmPolicy overrides how long Submit polls for finalization.
func WithConfirmPolicy(attempts uint, delay time.Duration) BuilderOption {
	return func(b *TransactionBuilder) {
		b.confirmAttempts = attempts
		b.confirmDelay = delay
	}
}

// NewTransactionBuilder creates a builder talking to the given RPC
// endpoint.
func NewTransactionBuilder(rpcURL string, opts ...BuilderOption) *TransactionBuilder {
	return NewTransactionBuilderWithClient(rpc.New(rpcURL), opts...)
}

// NewTransactionBuilderWithClient creates a builder over an existing
// ledger client.
func NewTransactionBuilderWithClient(client RPCClient, opts ...BuilderOption) *TransactionBuilder {
	b := &TransactionBuilder{
		client:          client,
		confirmAttempts: 5,
		confirmDelay:    3 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildTransfer constructs and signs a native SOL transfer of
// amountLamports from the wallet to the recipient. The wallet is the fee
// payer. A fresh recent blockhash is fetched per call; transactions are
// never reused across payment attempts. The blockhash fetch is not
// retried here, retries belong to the caller.
func (b *TransactionBuilder) BuildTransfer(
	ctx context.Context,
	wallet *Wallet,
	to sdk.PublicKey,
	amountLamports uint64,
) (*sdk.Transaction, error) {
	recent, err := b.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrLedgerError,
			Message: fmt.Sprintf("failed to get blockhash: %v", err),
		}
	}

	inst := system.NewTransferInstruction(amountLamports, wallet.PublicKey(), to).Build()

	tx, err := sdk.NewTransaction(
		[]sdk.Instruction{inst},
		recent.Value.Blockhash,
		sdk.TransactionPayer(wallet.PublicKey()),
	)
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidInput,
			Message: fmt.Sprintf("failed to build transaction: %v", err),
		}
	}

	if err := wallet.SignTransaction(tx); err != nil {
		return nil, err
	}

	return tx, nil
}

// BuildTokenTransfer is the SPL token transfer path. Associated token
// account provisioning is an explicit pre-flight concern of the caller,
// not a silent side effect of paying, and is not implemented here.
func (b *TransactionBuilder) BuildTokenTransfer(
	ctx context.Context,
	wallet *Wallet,
	toOwner sdk.PublicKey,
	tokenMint sdk.PublicKey,
	amount uint64,
	decimals int,
) (*sdk.Transaction, error) {
	return nil, &types.X402Error{
		Code: types.ErrNotImplemented,
		Message: "SPL token transfer requires associated token accounts for " +
			"both sender and receiver; provision them before paying",
	}
}

// SerializeTransaction encodes a signed transaction to its canonical
// binary form, then to base64 text. No re-signing, no field reordering:
// the same transaction always yields the same string.
func SerializeTransaction(tx *sdk.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", &types.X402Error{
			Code:    types.ErrSerialization,
			Message: fmt.Sprintf("failed to serialize transaction: %v", err),
		}
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DeserializeTransaction is the inverse of SerializeTransaction. Decode
// is all-or-nothing; malformed base64 or malformed binary structure both
// fail without a partial result.
func DeserializeTransaction(encoded string) (*sdk.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrDeserialization,
			Message: fmt.Sprintf("failed to decode transaction base64: %v", err),
		}
	}

	tx, err := sdk.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrDeserialization,
			Message: fmt.Sprintf("failed to deserialize transaction: %v", err),
		}
	}

	return tx, nil
}

// Submit broadcasts tx exactly as signed and blocks until the ledger
// finalizes it. Transactions arriving from a remote party are submitted
// as-is, never mutated or re-signed.
func (b *TransactionBuilder) Submit(ctx context.Context, tx *sdk.Transaction) (sdk.Signature, error) {
	sig, err := b.client.SendTransaction(ctx, tx)
	if err != nil {
		return sdk.Signature{}, &types.X402Error{
			Code:    types.ErrLedgerError,
			Message: fmt.Sprintf("broadcast failed: %v", err),
		}
	}

	err = retry.Do(
		func() error {
			status, err := b.client.GetSignatureStatuses(ctx, false, sig)
			if err != nil {
				return err
			}
			if len(status.Value) == 0 || status.Value[0] == nil {
				return fmt.Errorf("signature %s not yet known", sig)
			}
			if status.Value[0].Err != nil {
				return retry.Unrecoverable(fmt.Errorf("transaction failed on ledger: %v", status.Value[0].Err))
			}
			if status.Value[0].ConfirmationStatus != rpc.ConfirmationStatusFinalized {
				return fmt.Errorf("transaction %s not finalized", sig)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(b.confirmAttempts),
		retry.Delay(b.confirmDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return sig, &types.X402Error{
			Code:    types.ErrLedgerError,
			Message: fmt.Sprintf("transaction %s not confirmed: %v", sig, err),
		}
	}

	return sig, nil
}
