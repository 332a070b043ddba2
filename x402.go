// Package x402 implements the x402 pay-per-request protocol for Solana:
// a facilitator facade that verifies and settles signed-transfer payment
// proofs against server-issued payment requirements.
package x402

import (
	"context"
	"time"

	"github.com/zhiming817/x402-solana/logger"
	"github.com/zhiming817/x402-solana/metrics"
	"github.com/zhiming817/x402-solana/settlement"
	"github.com/zhiming817/x402-solana/solana"
	"github.com/zhiming817/x402-solana/types"
	"github.com/zhiming817/x402-solana/verification"
)

// Version information.
const (
	Version         = "1.0.0"
	ProtocolVersion = 1
)

// X402 bundles the verification and settlement services of an in-process
// facilitator for a single Solana network.
type X402 struct {
	network      types.Network
	rpcURL       string
	builder      *solana.TransactionBuilder
	verification *verification.VerificationService
	settlement   *settlement.SettlementService
	logger       logger.Logger
	metrics      metrics.Recorder
	timeout      time.Duration
}

// New creates a facilitator for the given network. Without options it
// talks to the network's built-in default RPC endpoint, logs nothing and
// records no metrics.
func New(network types.Network, opts ...Option) *X402 {
	x := &X402{
		network: network,
		rpcURL:  network.DefaultRPCURL(),
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		timeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(x)
	}

	if x.builder == nil {
		x.builder = solana.NewTransactionBuilder(x.rpcURL)
	}

	x.verification = verification.NewVerificationService(network)
	x.settlement = settlement.NewSettlementService(network, x.builder)

	return x
}

// Network returns the network this facilitator serves.
func (x *X402) Network() types.Network {
	return x.network
}

// Verify checks a payment proof against requirements. Invalid payments
// come back with Verified=false; an error means the check itself could
// not run.
func (x *X402) Verify(
	ctx context.Context,
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
) (*types.VerifyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	start := time.Now()
	resp, err := x.verification.Verify(ctx, payload, requirements)
	x.metrics.ObserveLatency("verify", time.Since(start), map[string]string{"network": x.network.String()})

	switch {
	case err != nil:
		x.metrics.IncCounter("verify_error", map[string]string{"network": x.network.String()})
		x.logger.Error("payment verification errored", map[string]any{"error": err.Error()})
	case !resp.Verified:
		x.metrics.IncCounter("verify_rejected", map[string]string{"network": x.network.String()})
		x.logger.Info("payment rejected", map[string]any{"reason": resp.Message, "from": payload.From})
	default:
		x.metrics.IncCounter("verify_ok", map[string]string{"network": x.network.String()})
		x.logger.Debug("payment verified", map[string]any{"from": payload.From})
	}

	return resp, err
}

// Settle re-verifies the proof and submits the signed transaction to the
// ledger, blocking until finalization.
func (x *X402) Settle(
	ctx context.Context,
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
) (*types.SettleResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	start := time.Now()
	resp, err := x.settlement.Settle(ctx, payload, requirements)
	x.metrics.ObserveLatency("settle", time.Since(start), map[string]string{"network": x.network.String()})

	switch {
	case err != nil:
		x.metrics.IncCounter("settle_error", map[string]string{"network": x.network.String()})
		x.logger.Error("payment settlement failed", map[string]any{"error": err.Error(), "from": payload.From})
	case !resp.Settled:
		x.metrics.IncCounter("settle_rejected", map[string]string{"network": x.network.String()})
		x.logger.Info("settlement rejected", map[string]any{"reason": resp.Message, "from": payload.From})
	default:
		x.metrics.IncCounter("settle_ok", map[string]string{"network": x.network.String()})
		x.logger.Info("payment settled", map[string]any{"signature": resp.Signature, "from": payload.From})
	}

	return resp, err
}

// Supported returns the payment kinds this facilitator accepts.
func (x *X402) Supported() *types.SupportedPaymentKindsResponse {
	return &types.SupportedPaymentKindsResponse{
		Kinds: []types.SupportedPaymentKind{
			{
				X402Version: ProtocolVersion,
				Scheme:      types.SchemeExact,
				Network:     x.network,
			},
		},
	}
}
