package facilitator

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	x402 "github.com/zhiming817/x402-solana"
	"github.com/zhiming817/x402-solana/logger"
	"github.com/zhiming817/x402-solana/types"
)

// Server exposes an in-process facilitator over HTTP: POST /verify,
// POST /settle, GET /supported.
type Server struct {
	facilitator *x402.X402
	apiKey      string
	logger      logger.Logger
}

// ServerOption configures a facilitator Server.
type ServerOption func(*Server)

// WithAPIKey requires X-API-Key on every request. Empty disables auth.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithServerLogger sets the request logger.
func WithServerLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer wraps an X402 facilitator in HTTP handlers.
func NewServer(facilitator *x402.X402, opts ...ServerOption) *Server {
	s := &Server{
		facilitator: facilitator,
		logger:      logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns a mux serving the facilitator endpoints.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /verify", s.handleVerify)
	mux.HandleFunc("POST /settle", s.handleSettle)
	mux.HandleFunc("GET /supported", s.handleSupported)
	return mux
}

func (s *Server) authenticate(r *http.Request) bool {
	if s.apiKey == "" {
		return true
	}
	provided := r.Header.Get("X-API-Key")
	return subtle.ConstantTimeCompare([]byte(provided), []byte(s.apiKey)) == 1
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	if !s.authenticate(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body types.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	resp, err := s.facilitator.Verify(r.Context(), &body.PaymentPayload, &body.PaymentRequirements)
	if err != nil {
		s.logger.Error("verify handler failed", map[string]any{"request_id": requestID, "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "verification unavailable")
		return
	}

	s.logger.Debug("verify handled", map[string]any{"request_id": requestID, "verified": resp.Verified})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	if !s.authenticate(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body types.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	resp, err := s.facilitator.Settle(r.Context(), &body.PaymentPayload, &body.PaymentRequirements)
	if err != nil {
		// A submission failure is never downgraded to settled; report it
		// inside the settlement contract so the caller sees the reason.
		s.logger.Error("settle handler failed", map[string]any{"request_id": requestID, "error": err.Error()})
		writeJSON(w, http.StatusOK, &types.SettleResponse{
			Settled: false,
			Message: err.Error(),
		})
		return
	}

	s.logger.Info("settle handled", map[string]any{"request_id": requestID, "settled": resp.Settled, "signature": resp.Signature})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSupported(w http.ResponseWriter, r *http.Request) {
	if !s.authenticate(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, s.facilitator.Supported())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
