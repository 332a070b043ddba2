// Package settlement implements the facilitator's settlement path:
// re-verify the proof, decode the exact signed bytes, submit them to the
// ledger and await finalization.
package settlement

import (
	"context"

	"github.com/zhiming817/x402-solana/solana"
	"github.com/zhiming817/x402-solana/types"
	"github.com/zhiming817/x402-solana/verification"
)

// Settler is the contract for payment settlement.
type Settler interface {
	Settle(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.SettleResponse, error)
}

// SettlementService settles verified proofs on a single configured
// network. Submission failures are surfaced as settlement errors and are
// never retried here; the caller decides whether to re-attempt with a
// fresh challenge.
type SettlementService struct {
	network  types.Network
	builder  *solana.TransactionBuilder
	verifier verification.Verifier
}

var _ Settler = (*SettlementService)(nil)

// NewSettlementService creates a settlement service submitting through
// builder.
func NewSettlementService(network types.Network, builder *solana.TransactionBuilder) *SettlementService {
	return &SettlementService{
		network:  network,
		builder:  builder,
		verifier: verification.NewVerificationService(network),
	}
}

// Settle re-runs verification (stale or already-consumed proofs fail
// here), decodes the signed transaction and submits the exact bytes the
// client signed. A verification failure comes back as Settled=false; a
// ledger fault comes back as an error so callers can tell "payment
// rejected" from "could not submit".
func (s *SettlementService) Settle(
	ctx context.Context,
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
) (*types.SettleResponse, error) {
	verifyResp, err := s.verifier.Verify(ctx, payload, requirements)
	if err != nil {
		return nil, err
	}
	if !verifyResp.Verified {
		return &types.SettleResponse{
			Settled: false,
			Message: verifyResp.Message,
		}, nil
	}

	tx, err := solana.DeserializeTransaction(payload.SignedTransaction)
	if err != nil {
		// Unreachable after a positive verify, but decode twice rather
		// than carry mutable state between the two stages.
		return nil, err
	}

	sig, err := s.builder.Submit(ctx, tx)
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrSettlementFailed,
			Message: err.Error(),
		}
	}

	return &types.SettleResponse{
		Signature: sig.String(),
		Settled:   true,
	}, nil
}
