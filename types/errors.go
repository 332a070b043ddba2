package types

import "fmt"

// X402Error is the error type shared by every stage of the handshake. The
// Code distinguishes "your payment was rejected" from "we could not even
// ask" so callers can decide whether a retry makes sense.
type X402Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *X402Error) Error() string {
	return e.Message
}

// Common error codes.
const (
	ErrInvalidInput       = "INVALID_INPUT"
	ErrMissingHeader      = "MISSING_HEADER"
	ErrAmountExceeded     = "PAYMENT_AMOUNT_EXCEEDED"
	ErrVerificationFailed = "VERIFICATION_FAILED"
	ErrSettlementFailed   = "SETTLEMENT_FAILED"
	ErrLedgerError        = "LEDGER_ERROR"
	ErrTransportError     = "TRANSPORT_ERROR"
	ErrSerialization      = "SERIALIZATION_ERROR"
	ErrDeserialization    = "DESERIALIZATION_ERROR"
	ErrConfigError        = "CONFIG_ERROR"
	ErrNotImplemented     = "NOT_IMPLEMENTED"
)

// AmountExceededData carries the client's configured ceiling and the
// amount the server asked for.
type AmountExceededData struct {
	Expected uint64 `json:"expected"`
	Got      uint64 `json:"got"`
}

// NewAmountExceededError reports that a challenge asked for more than the
// caller's configured ceiling. Expected is the ceiling, got the required
// amount.
func NewAmountExceededError(expected, got uint64) *X402Error {
	return &X402Error{
		Code:    ErrAmountExceeded,
		Message: fmt.Sprintf("payment amount exceeded: expected %d, got %d", expected, got),
		Data:    AmountExceededData{Expected: expected, Got: got},
	}
}
