// Package client implements the paying side of the x402 handshake: send
// the request, detect the 402 challenge, build a signed payment proof and
// resend once with the proof attached.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	sdk "github.com/gagliardetto/solana-go"

	"github.com/zhiming817/x402-solana/solana"
	"github.com/zhiming817/x402-solana/types"
	"github.com/zhiming817/x402-solana/utils"
)

// TransactionBuilder is the codec surface the handshake needs. It is an
// interface so tests can assert the codec is never invoked when the
// amount ceiling rejects a challenge.
type TransactionBuilder interface {
	BuildTransfer(ctx context.Context, wallet *solana.Wallet, to sdk.PublicKey, amountLamports uint64) (*sdk.Transaction, error)
}

var _ TransactionBuilder = (*solana.TransactionBuilder)(nil)

// Fetcher drives HTTP exchanges with automatic payment handling. Safe for
// concurrent use; each call runs an independent handshake and no signing
// state is shared between them.
type Fetcher struct {
	httpClient *http.Client
	wallet     *solana.Wallet
	builder    TransactionBuilder
	config     *types.X402Config
	maxValue   uint64
	capped     bool
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.httpClient = c
	}
}

// WithMaxValue caps what a single handshake may pay, in smallest units.
// A challenge above the cap fails before any transaction is signed.
func WithMaxValue(max uint64) FetcherOption {
	return func(f *Fetcher) {
		f.maxValue = max
		f.capped = true
	}
}

// WithConfig supplies Solana settings, notably the RPC endpoint used to
// build payment transactions.
func WithConfig(cfg *types.X402Config) FetcherOption {
	return func(f *Fetcher) {
		f.config = cfg
	}
}

// WithTransactionBuilder replaces the payment codec. Takes precedence
// over any RPC endpoint from WithConfig.
func WithTransactionBuilder(b TransactionBuilder) FetcherOption {
	return func(f *Fetcher) {
		f.builder = b
	}
}

// NewFetcher creates a Fetcher paying from wallet.
func NewFetcher(wallet *solana.Wallet, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		wallet:     wallet,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch sends the request, and on a 402 response builds a payment proof
// from the challenge and resends once with the proof attached. Any other
// status, including errors on the retried request, is returned verbatim;
// at most one payment is made per call.
func (f *Fetcher) Fetch(req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.GetBody == nil {
		if err := bufferRequestBody(req); err != nil {
			return nil, &types.X402Error{
				Code:    types.ErrInvalidInput,
				Message: fmt.Sprintf("failed to buffer request body: %v", err),
			}
		}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrTransportError,
			Message: fmt.Sprintf("request failed: %v", err),
		}
	}

	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	challenge := resp.Header.Get(types.HeaderPaymentRequired)

	// The challenge response body carries nothing the handshake needs.
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if challenge == "" {
		return nil, &types.X402Error{
			Code:    types.ErrMissingHeader,
			Message: "402 response missing " + types.HeaderPaymentRequired + " header",
		}
	}

	requirements, err := utils.ParsePaymentRequirements([]byte(challenge))
	if err != nil {
		return nil, err
	}

	header, err := f.CreatePaymentHeader(req.Context(), requirements)
	if err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, &types.X402Error{
				Code:    types.ErrInvalidInput,
				Message: fmt.Sprintf("failed to rewind request body: %v", err),
			}
		}
		retry.Body = body
	}
	retry.Header.Set(types.HeaderPayment, header)

	paid, err := f.httpClient.Do(retry)
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrTransportError,
			Message: fmt.Sprintf("paid request failed: %v", err),
		}
	}
	return paid, nil
}

// CreatePaymentHeader builds the x-payment header value for the given
// requirements: a signed transfer serialized into a PaymentPayload. The
// amount ceiling is enforced before the codec is touched, so no
// transaction is ever signed for a rejected amount.
func (f *Fetcher) CreatePaymentHeader(ctx context.Context, requirements *types.PaymentRequirements) (string, error) {
	amount, err := strconv.ParseUint(requirements.MaxAmountRequired, 10, 64)
	if err != nil {
		return "", &types.X402Error{
			Code:    types.ErrInvalidInput,
			Message: fmt.Sprintf("invalid amount %q: %v", requirements.MaxAmountRequired, err),
		}
	}

	if f.capped && amount > f.maxValue {
		return "", types.NewAmountExceededError(f.maxValue, amount)
	}

	if requirements.TokenAddress != "" {
		return "", &types.X402Error{
			Code:    types.ErrNotImplemented,
			Message: "SPL token payments are not supported",
		}
	}

	to, err := sdk.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return "", &types.X402Error{
			Code:    types.ErrInvalidInput,
			Message: fmt.Sprintf("invalid recipient address %q: %v", requirements.PayTo, err),
		}
	}

	tx, err := f.transactionBuilder(requirements.Network).BuildTransfer(ctx, f.wallet, to, amount)
	if err != nil {
		return "", err
	}

	signed, err := solana.SerializeTransaction(tx)
	if err != nil {
		return "", err
	}

	payload := types.PaymentPayload{
		X402Version:       1,
		Scheme:            types.SchemeExact,
		Network:           requirements.Network,
		SignedTransaction: signed,
		From:              f.wallet.PublicKey().String(),
	}

	raw, err := json.Marshal(&payload)
	if err != nil {
		return "", &types.X402Error{
			Code:    types.ErrSerialization,
			Message: fmt.Sprintf("failed to encode payment payload: %v", err),
		}
	}

	return string(raw), nil
}

// transactionBuilder resolves the codec: explicit builder first, then the
// configured RPC endpoint, then the network's built-in default.
func (f *Fetcher) transactionBuilder(network types.Network) TransactionBuilder {
	if f.builder != nil {
		return f.builder
	}

	rpcURL := network.DefaultRPCURL()
	if f.config != nil && f.config.SvmConfig != nil && f.config.SvmConfig.RPCURL != "" {
		rpcURL = f.config.SvmConfig.RPCURL
	}
	return solana.NewTransactionBuilder(rpcURL)
}

func bufferRequestBody(req *http.Request) error {
	raw, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return err
	}
	req.Body = io.NopCloser(bytes.NewReader(raw))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
	return nil
}
