package types

// Protocol headers. Matching is case-insensitive on the wire; these are
// the canonical spellings.
const (
	// HeaderPaymentRequired carries the JSON-encoded PaymentRequirements
	// on a 402 response.
	HeaderPaymentRequired = "X-Payment-Required"

	// HeaderPayment carries the JSON-encoded PaymentPayload on the
	// retried request.
	HeaderPayment = "X-Payment"

	// HeaderPaymentResponse carries settlement confirmation info on the
	// final response.
	HeaderPaymentResponse = "X-Payment-Response"
)
