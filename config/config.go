// Package config loads process configuration from the environment.
// Precedence everywhere is explicit value > environment variable >
// built-in default from the network table.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v6"

	"github.com/zhiming817/x402-solana/types"
)

// Config is the environment-driven configuration shared by the example
// client, server and facilitator processes.
type Config struct {
	// Network to settle payments on.
	Network types.Network `env:"NETWORK" envDefault:"solana-devnet"`

	// FacilitatorURL of the remote facilitator. Empty selects the
	// built-in default.
	FacilitatorURL string `env:"FACILITATOR_URL"`

	// RPCURL of the ledger. Empty selects the network's built-in default.
	RPCURL string `env:"RPC_URL"`

	// PayTo is the address payments are sent to (server side).
	PayTo string `env:"ADDRESS"`

	// PrivateKey is the base58 signing key (client side).
	PrivateKey string `env:"PRIVATE_KEY"`

	// MaxPaymentValue caps a single payment in smallest units; 0 means
	// uncapped.
	MaxPaymentValue uint64 `env:"MAX_PAYMENT_VALUE"`

	// APIKey authenticates against the facilitator, when it requires one.
	APIKey string `env:"FACILITATOR_API_KEY"`

	// Optional SPL token acceptance.
	TokenMintAddress string `env:"TOKEN_MINT_ADDRESS"`
	TokenDecimals    int    `env:"TOKEN_DECIMALS" envDefault:"6"`
	TokenName        string `env:"TOKEN_NAME"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("failed to parse environment: %v", err),
		}
	}

	if !c.Network.Valid() {
		return nil, &types.X402Error{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("unsupported network: %s", c.Network),
		}
	}

	return &c, nil
}

// ResolveFacilitatorURL applies the override precedence for the
// facilitator endpoint.
func (c *Config) ResolveFacilitatorURL() string {
	if c.FacilitatorURL != "" {
		return c.FacilitatorURL
	}
	return types.DefaultFacilitatorURL
}

// ResolveRPCURL applies the override precedence for the ledger endpoint.
func (c *Config) ResolveRPCURL() string {
	if c.RPCURL != "" {
		return c.RPCURL
	}
	return c.Network.DefaultRPCURL()
}

// X402Config converts the environment settings into the protocol-level
// configuration consumed by the client handshake.
func (c *Config) X402Config() *types.X402Config {
	svm := &types.SvmConfig{RPCURL: c.RPCURL}
	if c.TokenMintAddress != "" {
		svm.DefaultToken = &types.TokenConfig{
			Address:  c.TokenMintAddress,
			Decimals: c.TokenDecimals,
			Name:     c.TokenName,
		}
	}
	return &types.X402Config{SvmConfig: svm}
}
