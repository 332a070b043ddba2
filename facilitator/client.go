// Package facilitator contains the HTTP client a resource server uses to
// delegate verification and settlement to a remote facilitator, and the
// HTTP handlers that expose an in-process facilitator as that service.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zhiming817/x402-solana/types"
)

// HeaderPair is one ordered header key/value entry.
type HeaderPair struct {
	Key   string
	Value string
}

// AuthHeaderProvider supplies authentication headers per facilitator
// endpoint. Implementations stay copyable and comparable; no opaque
// callbacks in configuration.
type AuthHeaderProvider interface {
	ForVerify() []HeaderPair
	ForSettle() []HeaderPair
	ForSupported() []HeaderPair
}

// StaticAPIKey authenticates every endpoint with a single X-API-Key
// header.
type StaticAPIKey string

func (k StaticAPIKey) ForVerify() []HeaderPair    { return k.pairs() }
func (k StaticAPIKey) ForSettle() []HeaderPair    { return k.pairs() }
func (k StaticAPIKey) ForSupported() []HeaderPair { return k.pairs() }

func (k StaticAPIKey) pairs() []HeaderPair {
	if k == "" {
		return nil
	}
	return []HeaderPair{{Key: "X-API-Key", Value: string(k)}}
}

// Client talks to a remote facilitator service.
type Client struct {
	url        string
	httpClient *http.Client
	auth       AuthHeaderProvider
}

// ClientOption configures a facilitator Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(fc *Client) {
		fc.httpClient = c
	}
}

// WithAuthHeaders attaches per-endpoint authentication headers.
func WithAuthHeaders(p AuthHeaderProvider) ClientOption {
	return func(fc *Client) {
		fc.auth = p
	}
}

// NewClient creates a client for the facilitator at url. An empty url
// selects the default public facilitator.
func NewClient(url string, opts ...ClientOption) *Client {
	if url == "" {
		url = types.DefaultFacilitatorURL
	}
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the facilitator base URL.
func (c *Client) URL() string {
	return c.url
}

// Verify asks the facilitator to verify a proof against requirements. A
// negative verification comes back in the response; an error means the
// facilitator could not be reached or answered outside the contract.
func (c *Client) Verify(
	ctx context.Context,
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
) (*types.VerifyResponse, error) {
	var resp types.VerifyResponse
	err := c.post(ctx, "/verify", c.authPairs(func(p AuthHeaderProvider) []HeaderPair { return p.ForVerify() }), payload, requirements, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Settle asks the facilitator to submit the signed transaction.
func (c *Client) Settle(
	ctx context.Context,
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
) (*types.SettleResponse, error) {
	var resp types.SettleResponse
	err := c.post(ctx, "/settle", c.authPairs(func(p AuthHeaderProvider) []HeaderPair { return p.ForSettle() }), payload, requirements, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Supported fetches the payment kinds the facilitator accepts.
func (c *Client) Supported(ctx context.Context) (*types.SupportedPaymentKindsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/supported", nil)
	if err != nil {
		return nil, transportError("supported", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for _, pair := range c.authPairs(func(p AuthHeaderProvider) []HeaderPair { return p.ForSupported() }) {
		req.Header.Set(pair.Key, pair.Value)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError("supported", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, transportError("supported", fmt.Errorf("unexpected status %d", httpResp.StatusCode))
	}

	var resp types.SupportedPaymentKindsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrDeserialization,
			Message: fmt.Sprintf("failed to decode supported response: %v", err),
		}
	}
	return &resp, nil
}

func (c *Client) post(
	ctx context.Context,
	path string,
	auth []HeaderPair,
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
	out interface{},
) error {
	body, err := json.Marshal(types.VerifyRequest{
		PaymentPayload:      *payload,
		PaymentRequirements: *requirements,
	})
	if err != nil {
		return &types.X402Error{
			Code:    types.ErrSerialization,
			Message: fmt.Sprintf("failed to encode request: %v", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(body))
	if err != nil {
		return transportError(path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for _, pair := range auth {
		req.Header.Set(pair.Key, pair.Value)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(path, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return transportError(path, fmt.Errorf("unexpected status %d", httpResp.StatusCode))
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return &types.X402Error{
			Code:    types.ErrDeserialization,
			Message: fmt.Sprintf("failed to decode %s response: %v", path, err),
		}
	}
	return nil
}

func (c *Client) authPairs(pick func(AuthHeaderProvider) []HeaderPair) []HeaderPair {
	if c.auth == nil {
		return nil
	}
	return pick(c.auth)
}

func transportError(endpoint string, err error) *types.X402Error {
	return &types.X402Error{
		Code:    types.ErrTransportError,
		Message: fmt.Sprintf("facilitator %s request failed: %v", endpoint, err),
	}
}
