package x402

import (
	"time"

	"github.com/zhiming817/x402-solana/logger"
	"github.com/zhiming817/x402-solana/metrics"
	"github.com/zhiming817/x402-solana/solana"
)

// Option configures an X402 facilitator.
type Option func(*X402)

// WithLogger sets the logger used by verify and settle.
func WithLogger(l logger.Logger) Option {
	return func(x *X402) {
		x.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(x *X402) {
		x.metrics = r
	}
}

// WithTimeout bounds every verify and settle call. Settlement blocks for
// ledger finalization, so this should cover the confirmation window.
func WithTimeout(t time.Duration) Option {
	return func(x *X402) {
		x.timeout = t
	}
}

// WithRPCURL overrides the network's built-in default RPC endpoint.
func WithRPCURL(url string) Option {
	return func(x *X402) {
		x.rpcURL = url
	}
}

// WithTransactionBuilder supplies a pre-built codec, replacing the one
// derived from the RPC URL.
func WithTransactionBuilder(b *solana.TransactionBuilder) Option {
	return func(x *X402) {
		x.builder = b
	}
}
