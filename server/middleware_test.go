package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/zhiming817/x402-solana/facilitator"
	"github.com/zhiming817/x402-solana/types"
	"github.com/zhiming817/x402-solana/utils"
)

// fakeFacilitator scripts the remote facilitator's answers and records
// what reached it.
type fakeFacilitator struct {
	verified      bool
	verifyMessage string
	settled       bool
	settleSig     string
	settleStatus  int

	verifyCalls int
	settleCalls int
	lastVerify  types.VerifyRequest
}

func (f *fakeFacilitator) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /verify", func(w http.ResponseWriter, r *http.Request) {
		f.verifyCalls++
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastVerify))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.VerifyResponse{
			Verified: f.verified,
			Message:  f.verifyMessage,
		})
	})
	mux.HandleFunc("POST /settle", func(w http.ResponseWriter, r *http.Request) {
		f.settleCalls++
		if f.settleStatus != 0 {
			w.WriteHeader(f.settleStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.SettleResponse{
			Signature: f.settleSig,
			Settled:   f.settled,
		})
	})
	return mux
}

func proofJSON(t *testing.T) string {
	t.Helper()
	raw, err := json.Marshal(&types.PaymentPayload{
		X402Version:       1,
		Scheme:            types.SchemeExact,
		Network:           types.NetworkSolanaDevnet,
		SignedTransaction: "AAAA",
		From:              sdk.NewWallet().PublicKey().String(),
	})
	require.NoError(t, err)
	return string(raw)
}

func newGatedServer(t *testing.T, fake *fakeFacilitator) (*httptest.Server, string) {
	t.Helper()

	facSrv := httptest.NewServer(fake.handler(t))
	t.Cleanup(facSrv.Close)

	payTo := sdk.NewWallet().PublicKey().String()

	config := &PaymentMiddlewareConfig{
		PayTo: payTo,
		Routes: map[string]types.RouteConfig{
			RouteKey(http.MethodGet, "/weather"): {
				Price:       "1800",
				Network:     types.NetworkSolanaDevnet,
				Description: "Weather information",
			},
		},
		Facilitator: facilitator.NewClient(facSrv.URL),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /weather", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"report":{"weather":"sunny","temperature":70}}`)
	})
	mux.HandleFunc("GET /free", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "no charge")
	})

	srv := httptest.NewServer(PaymentMiddleware(config, mux))
	t.Cleanup(srv.Close)
	return srv, payTo
}

func TestMiddlewareUnpricedRoutePassesThrough(t *testing.T) {
	fake := &fakeFacilitator{}
	srv, _ := newGatedServer(t, fake)

	resp, err := http.Get(srv.URL + "/free")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, "no charge", string(body))
	require.Zero(t, fake.verifyCalls)
}

func TestMiddlewareEmitsChallenge(t *testing.T) {
	fake := &fakeFacilitator{}
	srv, payTo := newGatedServer(t, fake)

	resp, err := http.Get(srv.URL + "/weather")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	challenge := resp.Header.Get(types.HeaderPaymentRequired)
	require.NotEmpty(t, challenge)

	requirements, err := utils.ParsePaymentRequirements([]byte(challenge))
	require.NoError(t, err)
	require.Equal(t, 1, requirements.X402Version)
	require.Equal(t, types.SchemeExact, requirements.Scheme)
	require.Equal(t, types.NetworkSolanaDevnet, requirements.Network)
	require.Equal(t, "1800", requirements.MaxAmountRequired)
	require.Equal(t, payTo, requirements.PayTo)
	require.Equal(t, "Weather information", requirements.Memo)
}

func TestMiddlewareMalformedProofIsBadRequest(t *testing.T) {
	fake := &fakeFacilitator{}
	srv, _ := newGatedServer(t, fake)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/weather", nil)
	require.NoError(t, err)
	req.Header.Set(types.HeaderPayment, "{broken")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	// A malformed proof must not earn a fresh challenge.
	require.Empty(t, resp.Header.Get(types.HeaderPaymentRequired))
	require.Zero(t, fake.verifyCalls)
}

func TestMiddlewareRejectedProofIs402(t *testing.T) {
	fake := &fakeFacilitator{verified: false, verifyMessage: "transaction has no signatures"}
	srv, _ := newGatedServer(t, fake)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/weather", nil)
	require.NoError(t, err)
	req.Header.Set(types.HeaderPayment, proofJSON(t))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	require.Equal(t, 1, fake.verifyCalls)
	require.Zero(t, fake.settleCalls)
}

func TestMiddlewareSettlesAfterSuccess(t *testing.T) {
	fake := &fakeFacilitator{verified: true, settled: true, settleSig: "5Settled111"}
	srv, _ := newGatedServer(t, fake)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/weather", nil)
	require.NoError(t, err)
	req.Header.Set(types.HeaderPayment, proofJSON(t))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.JSONEq(t, `{"report":{"weather":"sunny","temperature":70}}`, string(body))

	require.Equal(t, "5Settled111", resp.Header.Get(types.HeaderPaymentResponse))
	require.Equal(t, 1, fake.verifyCalls)
	require.Equal(t, 1, fake.settleCalls)

	// The forwarded envelopes must be the ones the client sent and the
	// route demands.
	require.Equal(t, "1800", fake.lastVerify.PaymentRequirements.MaxAmountRequired)
	require.Equal(t, "AAAA", fake.lastVerify.PaymentPayload.SignedTransaction)
}

func TestMiddlewareSettlementFailureStillServes(t *testing.T) {
	fake := &fakeFacilitator{verified: true, settleStatus: http.StatusInternalServerError}
	srv, _ := newGatedServer(t, fake)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/weather", nil)
	require.NoError(t, err)
	req.Header.Set(types.HeaderPayment, proofJSON(t))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.JSONEq(t, `{"report":{"weather":"sunny","temperature":70}}`, string(body))
	require.Empty(t, resp.Header.Get(types.HeaderPaymentResponse))
	require.Equal(t, 1, fake.settleCalls)
}

func TestMiddlewareNoSettlementForFailedHandler(t *testing.T) {
	fake := &fakeFacilitator{verified: true, settled: true, settleSig: "sig"}

	facSrv := httptest.NewServer(fake.handler(t))
	t.Cleanup(facSrv.Close)

	config := &PaymentMiddlewareConfig{
		PayTo: sdk.NewWallet().PublicKey().String(),
		Routes: map[string]types.RouteConfig{
			RouteKey(http.MethodGet, "/flaky"): {
				Price:   "100",
				Network: types.NetworkSolanaDevnet,
			},
		},
		Facilitator: facilitator.NewClient(facSrv.URL),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /flaky", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend exploded", http.StatusInternalServerError)
	})

	srv := httptest.NewServer(PaymentMiddleware(config, mux))
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/flaky", nil)
	require.NoError(t, err)
	req.Header.Set(types.HeaderPayment, proofJSON(t))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	// No settlement for a response the client never benefited from.
	require.Zero(t, fake.settleCalls)
}
