// Package types defines the wire model of the x402 payment protocol for
// Solana: the payment challenge and proof envelopes, the facilitator
// request/response shapes, and the shared error taxonomy.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// X402Version represents the version of the x402 protocol.
type X402Version int

const (
	X402Version1 X402Version = 1
)

// PaymentScheme identifies how the required amount is interpreted.
type PaymentScheme string

const (
	// SchemeExact requires a transfer of exactly the advertised amount.
	SchemeExact PaymentScheme = "exact"
)

// PaymentRequirements is the challenge a resource server returns on a
// 402 response, carried JSON-encoded in the x-payment-required header.
type PaymentRequirements struct {
	// Version of the x402 payment protocol.
	X402Version int `json:"x402Version" validate:"required,gt=0"`

	// Scheme of the payment protocol to use (currently only "exact").
	Scheme PaymentScheme `json:"scheme" validate:"required"`

	// Network of the blockchain to send payment on (e.g. "solana-devnet").
	Network Network `json:"network" validate:"required"`

	// Maximum amount required to pay for the resource, in the asset's
	// smallest unit. Represented as a base-10 string because amounts can
	// exceed what cross-language JSON integers safely carry.
	MaxAmountRequired string `json:"maxAmountRequired" validate:"required"`

	// Address to which the payment must be sent.
	PayTo string `json:"payTo" validate:"required"`

	// Mint address of an SPL token. Absent means the native asset (SOL).
	TokenAddress string `json:"tokenAddress,omitempty"`

	// Decimals of the token, when TokenAddress is set.
	TokenDecimals *int `json:"tokenDecimals,omitempty"`

	// Human-readable name of the token.
	TokenName string `json:"tokenName,omitempty"`

	// Memo describing the resource being purchased.
	Memo string `json:"memo,omitempty"`

	// Nonce optionally bound into the payment by the server.
	Nonce string `json:"nonce,omitempty"`
}

// PaymentPayload is the proof a client attaches to the retried request,
// carried JSON-encoded in the x-payment header.
type PaymentPayload struct {
	// Version of the x402 payment protocol.
	X402Version int `json:"x402Version" validate:"required,gt=0"`

	Scheme PaymentScheme `json:"scheme" validate:"required"`

	Network Network `json:"network" validate:"required"`

	// Base64-encoded signed transaction. This blob is the binding
	// artifact; everything else in the payload is informational.
	SignedTransaction string `json:"signedTransaction" validate:"required"`

	// From is the sender's public key in base58. Duplicated out of the
	// transaction for logging; verification never trusts it on its own.
	From string `json:"from" validate:"required"`
}

// VerifyRequest is the body of the facilitator's POST /verify and
// POST /settle endpoints.
type VerifyRequest struct {
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// VerifyResponse is the facilitator's verification result. A structurally
// invalid payment is reported here with Verified=false, never as an error.
type VerifyResponse struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message,omitempty"`
}

// SettleResponse is the facilitator's settlement result.
type SettleResponse struct {
	// Signature is the ledger confirmation identifier of the submitted
	// transaction.
	Signature string `json:"signature"`
	Settled   bool   `json:"settled"`
	Message   string `json:"message,omitempty"`
}

// SupportedPaymentKind describes one (version, scheme, network) triple a
// facilitator accepts.
type SupportedPaymentKind struct {
	X402Version int           `json:"x402Version"`
	Scheme      PaymentScheme `json:"scheme"`
	Network     Network       `json:"network"`
}

// SupportedPaymentKindsResponse is the body of GET /supported.
type SupportedPaymentKindsResponse struct {
	Kinds []SupportedPaymentKind `json:"kinds"`
}

// RouteConfig prices a single payment-gated route. The route table maps
// "METHOD /path" keys to these descriptors and is read-only once the
// server is running.
type RouteConfig struct {
	// Price in the asset's smallest unit, base-10 string.
	Price string `json:"price"`

	Network Network `json:"network"`

	// Description of the resource; flows into the challenge memo.
	Description string `json:"description,omitempty"`

	// MIME type of the resource response.
	MimeType string `json:"mimeType,omitempty"`

	// Maximum time in seconds the server takes to respond once paid.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds,omitempty"`

	// Discoverable marks the route for inclusion in discovery listings.
	Discoverable bool `json:"discoverable,omitempty"`
}

// TokenConfig describes an SPL token accepted for payment.
type TokenConfig struct {
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	Name     string `json:"name"`
}

// SvmConfig carries Solana-specific settings.
type SvmConfig struct {
	RPCURL       string       `json:"rpcUrl,omitempty"`
	DefaultToken *TokenConfig `json:"defaultToken,omitempty"`
}

// X402Config is the top-level client/server configuration.
type X402Config struct {
	SvmConfig *SvmConfig `json:"svmConfig,omitempty"`
}

// Validate checks that the PaymentRequirements carry every field the
// protocol requires and that the amount is a well-formed smallest-unit
// string.
func (pr *PaymentRequirements) Validate() error {
	if pr.X402Version <= 0 {
		return &X402Error{Code: ErrInvalidInput, Message: "x402Version must be greater than 0"}
	}

	if pr.Scheme == "" {
		return &X402Error{Code: ErrInvalidInput, Message: "paymentRequirements.scheme is required"}
	}

	if !pr.Network.Valid() {
		return &X402Error{Code: ErrInvalidInput, Message: fmt.Sprintf("unsupported network: %s", pr.Network)}
	}

	if pr.PayTo == "" {
		return &X402Error{Code: ErrInvalidInput, Message: "paymentRequirements.payTo is required"}
	}

	return ValidateAmount(pr.MaxAmountRequired)
}

// Validate checks that the PaymentPayload carries every field the
// protocol requires.
func (pp *PaymentPayload) Validate() error {
	if pp.X402Version <= 0 {
		return &X402Error{Code: ErrInvalidInput, Message: "x402Version must be greater than 0"}
	}

	if pp.Scheme == "" {
		return &X402Error{Code: ErrInvalidInput, Message: "paymentPayload.scheme is required"}
	}

	if !pp.Network.Valid() {
		return &X402Error{Code: ErrInvalidInput, Message: fmt.Sprintf("unsupported network: %s", pp.Network)}
	}

	if pp.SignedTransaction == "" {
		return &X402Error{Code: ErrInvalidInput, Message: "paymentPayload.signedTransaction is required"}
	}

	if pp.From == "" {
		return &X402Error{Code: ErrInvalidInput, Message: "paymentPayload.from is required"}
	}

	return nil
}

// ValidateAmount checks that s is a non-negative base-10 integer string,
// the only amount representation the protocol accepts.
func ValidateAmount(s string) error {
	if s == "" {
		return &X402Error{Code: ErrInvalidInput, Message: "amount is required"}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return &X402Error{Code: ErrInvalidInput, Message: fmt.Sprintf("invalid amount %q: %v", s, err)}
	}

	if d.IsNegative() {
		return &X402Error{Code: ErrInvalidInput, Message: fmt.Sprintf("amount %q must not be negative", s)}
	}

	if !d.IsInteger() {
		return &X402Error{Code: ErrInvalidInput, Message: fmt.Sprintf("amount %q must be in smallest units", s)}
	}

	return nil
}
