// Package verification implements the facilitator's local payment
// verification: structural checks of the proof against the requirements,
// with no ledger round trip.
package verification

import (
	"context"
	"fmt"

	"github.com/zhiming817/x402-solana/solana"
	"github.com/zhiming817/x402-solana/types"
)

// Verifier is the contract for payment verification.
type Verifier interface {
	Verify(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.VerifyResponse, error)
}

// VerificationService verifies proofs for a single configured network.
// "Payment not valid" is an expected steady-state outcome and is always
// reported with Verified=false, never as an error.
type VerificationService struct {
	network types.Network
}

var _ Verifier = (*VerificationService)(nil)

// NewVerificationService creates a verification service for network.
func NewVerificationService(network types.Network) *VerificationService {
	return &VerificationService{network: network}
}

// Network returns the network this service verifies against.
func (s *VerificationService) Network() types.Network {
	return s.network
}

// Verify checks the proof's structural correctness against the
// requirements: well-formed envelopes, matching scheme and network, a
// decodable transaction blob with at least one instruction and one
// signature. It never touches the ledger; amount and recipient checks
// against on-chain state are settlement-time concerns.
func (s *VerificationService) Verify(
	ctx context.Context,
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
) (*types.VerifyResponse, error) {
	if err := payload.Validate(); err != nil {
		return invalid(fmt.Sprintf("invalid payment payload: %v", err)), nil
	}

	if err := requirements.Validate(); err != nil {
		return invalid(fmt.Sprintf("invalid payment requirements: %v", err)), nil
	}

	if payload.Scheme != requirements.Scheme {
		return invalid("payload scheme does not match requirements scheme"), nil
	}

	if requirements.Network != s.network {
		return invalid(fmt.Sprintf("unsupported network: %s", requirements.Network)), nil
	}

	if payload.Network != requirements.Network {
		return invalid("payload network does not match requirements network"), nil
	}

	tx, err := solana.DeserializeTransaction(payload.SignedTransaction)
	if err != nil {
		return invalid(fmt.Sprintf("failed to decode transaction: %v", err)), nil
	}

	if len(tx.Message.Instructions) == 0 {
		return invalid("transaction has no instructions"), nil
	}

	if len(tx.Signatures) == 0 {
		return invalid("transaction has no signatures"), nil
	}

	return &types.VerifyResponse{Verified: true}, nil
}

func invalid(msg string) *types.VerifyResponse {
	return &types.VerifyResponse{Verified: false, Message: msg}
}
