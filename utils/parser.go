// Package utils parses and validates the JSON wire envelopes exchanged
// through the payment headers.
package utils

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/zhiming817/x402-solana/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ParsePaymentRequirements parses and validates a challenge from its JSON
// wire form. Parsing fails closed: a malformed or incomplete document is
// rejected outright, never partially accepted.
func ParsePaymentRequirements(data []byte) (*types.PaymentRequirements, error) {
	var req types.PaymentRequirements

	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrDeserialization,
			Message: fmt.Sprintf("failed to parse payment requirements: %v", err),
		}
	}

	if err := validate.Struct(&req); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidInput,
			Message: fmt.Sprintf("payment requirements validation failed: %v", err),
		}
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return &req, nil
}

// ParsePaymentPayload parses and validates a proof from its JSON wire
// form, failing closed on malformed input.
func ParsePaymentPayload(data []byte) (*types.PaymentPayload, error) {
	var payload types.PaymentPayload

	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrDeserialization,
			Message: fmt.Sprintf("failed to parse payment payload: %v", err),
		}
	}

	if err := validate.Struct(&payload); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidInput,
			Message: fmt.Sprintf("payment payload validation failed: %v", err),
		}
	}

	if err := payload.Validate(); err != nil {
		return nil, err
	}

	return &payload, nil
}

// SerializePaymentRequirements converts a challenge to its JSON wire form.
func SerializePaymentRequirements(req *types.PaymentRequirements) ([]byte, error) {
	return json.Marshal(req)
}

// SerializePaymentPayload converts a proof to its JSON wire form.
func SerializePaymentPayload(payload *types.PaymentPayload) ([]byte, error) {
	return json.Marshal(payload)
}
