package types

// Network represents supported Solana networks.
type Network string

const (
	NetworkSolana         Network = "solana"
	NetworkSolanaDevnet   Network = "solana-devnet" // testnet
	NetworkSolanaLocalnet Network = "solana-localnet"
)

// DefaultFacilitatorURL is used when no facilitator is configured.
const DefaultFacilitatorURL = "https://x402.org/facilitator"

// defaultRPCURLs is the built-in endpoint table. Override precedence is
// explicit config > environment > this table.
var defaultRPCURLs = map[Network]string{
	NetworkSolana:         "https://api.mainnet-beta.solana.com",
	NetworkSolanaDevnet:   "https://api.devnet.solana.com",
	NetworkSolanaLocalnet: "http://127.0.0.1:8899",
}

// KnownNetworks lists every network this module can settle on.
func KnownNetworks() []Network {
	return []Network{NetworkSolana, NetworkSolanaDevnet, NetworkSolanaLocalnet}
}

// Valid reports whether n names a known network.
func (n Network) Valid() bool {
	_, ok := defaultRPCURLs[n]
	return ok
}

// IsTestnet reports whether n is a test network.
func (n Network) IsTestnet() bool {
	return n == NetworkSolanaDevnet || n == NetworkSolanaLocalnet
}

// DefaultRPCURL returns the built-in RPC endpoint for n, or the devnet
// endpoint when n is unknown.
func (n Network) DefaultRPCURL() string {
	if url, ok := defaultRPCURLs[n]; ok {
		return url
	}
	return defaultRPCURLs[NetworkSolanaDevnet]
}

func (n Network) String() string {
	return string(n)
}
