// Package server implements the resource-server side of the x402
// handshake: a net/http middleware that gates priced routes behind a
// payment challenge and delegates proof verification and settlement to a
// facilitator.
package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/zhiming817/x402-solana/facilitator"
	"github.com/zhiming817/x402-solana/logger"
	"github.com/zhiming817/x402-solana/types"
	"github.com/zhiming817/x402-solana/utils"
)

// PaymentMiddlewareConfig configures the payment gate. The route table is
// read-only once the server is running; replace the whole config to
// change prices.
type PaymentMiddlewareConfig struct {
	// PayTo is the address payments must be sent to.
	PayTo string

	// Routes maps "METHOD /path" keys to price descriptors. Requests not
	// in the table pass through untouched.
	Routes map[string]types.RouteConfig

	// Facilitator verifies and settles proofs. Required.
	Facilitator *facilitator.Client

	// Logger defaults to a no-op.
	Logger logger.Logger
}

// RouteKey builds the route-table key for a method and path.
func RouteKey(method, path string) string {
	return method + " " + path
}

// PaymentMiddleware wraps next with the payment gate. For priced routes
// it emits a 402 challenge when no proof is present, rejects unverified
// proofs, and settles verified payments after the protected handler has
// produced a successful response.
func PaymentMiddleware(config *PaymentMiddlewareConfig, next http.Handler) http.Handler {
	log := config.Logger
	if log == nil {
		log = logger.NoopLogger{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, ok := config.Routes[RouteKey(r.Method, r.URL.Path)]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		requirements := requirementsForRoute(config.PayTo, &route)

		proof := r.Header.Get(types.HeaderPayment)
		if proof == "" {
			writeChallenge(w, requirements)
			return
		}

		// A malformed proof is a client error, not a payment problem; no
		// fresh challenge for it.
		payload, err := utils.ParsePaymentPayload([]byte(proof))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		verifyResp, err := config.Facilitator.Verify(r.Context(), payload, requirements)
		if err != nil {
			log.Error("facilitator verify failed", map[string]any{
				"route": RouteKey(r.Method, r.URL.Path),
				"error": err.Error(),
			})
			writeJSONError(w, http.StatusPaymentRequired, "payment verification failed")
			return
		}
		if !verifyResp.Verified {
			log.Info("payment rejected", map[string]any{
				"route":  RouteKey(r.Method, r.URL.Path),
				"reason": verifyResp.Message,
				"from":   payload.From,
			})
			writeJSONError(w, http.StatusPaymentRequired, "payment verification failed")
			return
		}

		// Buffer the protected handler's response so settlement info can
		// still become a header, then settle before flushing. Settlement
		// failure is reported but never revokes the response.
		buf := newBufferedResponseWriter(w)
		next.ServeHTTP(buf, r)

		if buf.status < http.StatusBadRequest {
			settleResp, err := config.Facilitator.Settle(r.Context(), payload, requirements)
			switch {
			case err != nil:
				log.Error("payment settlement failed", map[string]any{
					"route": RouteKey(r.Method, r.URL.Path),
					"from":  payload.From,
					"error": err.Error(),
				})
			case !settleResp.Settled:
				log.Error("payment not settled", map[string]any{
					"route":  RouteKey(r.Method, r.URL.Path),
					"from":   payload.From,
					"reason": settleResp.Message,
				})
			default:
				log.Info("payment settled", map[string]any{
					"route":     RouteKey(r.Method, r.URL.Path),
					"from":      payload.From,
					"signature": settleResp.Signature,
				})
				buf.Header().Set(types.HeaderPaymentResponse, settleResp.Signature)
			}
		}

		buf.flush()
	})
}

func requirementsForRoute(payTo string, route *types.RouteConfig) *types.PaymentRequirements {
	return &types.PaymentRequirements{
		X402Version:       1,
		Scheme:            types.SchemeExact,
		Network:           route.Network,
		MaxAmountRequired: route.Price,
		PayTo:             payTo,
		Memo:              route.Description,
	}
}

func writeChallenge(w http.ResponseWriter, requirements *types.PaymentRequirements) {
	raw, err := utils.SerializePaymentRequirements(requirements)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to build payment requirements")
		return
	}
	w.Header().Set(types.HeaderPaymentRequired, string(raw))
	w.WriteHeader(http.StatusPaymentRequired)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":` + jsonString(msg) + `}`))
}

func jsonString(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

// bufferedResponseWriter holds the handler's response until settlement
// has run.
type bufferedResponseWriter struct {
	dst    http.ResponseWriter
	body   bytes.Buffer
	status int
}

func newBufferedResponseWriter(dst http.ResponseWriter) *bufferedResponseWriter {
	return &bufferedResponseWriter{dst: dst, status: http.StatusOK}
}

func (b *bufferedResponseWriter) Header() http.Header {
	return b.dst.Header()
}

func (b *bufferedResponseWriter) WriteHeader(status int) {
	b.status = status
}

func (b *bufferedResponseWriter) Write(p []byte) (int, error) {
	return b.body.Write(p)
}

func (b *bufferedResponseWriter) flush() {
	b.dst.WriteHeader(b.status)
	_, _ = b.dst.Write(b.body.Bytes())
}
