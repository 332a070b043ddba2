// Package solana implements the transaction codec of the x402 protocol:
// building, signing, serializing and submitting single-asset transfers on
// Solana.
package solana

import (
	"context"
	"fmt"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/zhiming817/x402-solana/types"
)

// Wallet owns the signing key of the paying party. The key never leaves
// the wallet; only signatures cross package boundaries. Wallet has no
// copy or clone method on purpose: share the pointer, a second key holder
// would be a second identity.
type Wallet struct {
	key sdk.PrivateKey
}

// NewWallet creates a wallet with a freshly generated keypair.
func NewWallet() (*Wallet, error) {
	key, err := sdk.NewRandomPrivateKey()
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidInput,
			Message: fmt.Sprintf("failed to generate keypair: %v", err),
		}
	}
	return &Wallet{key: key}, nil
}

// WalletFromPrivateKey creates a wallet from a base58-encoded private key.
func WalletFromPrivateKey(privateKey string) (*Wallet, error) {
	key, err := sdk.PrivateKeyFromBase58(privateKey)
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidInput,
			Message: fmt.Sprintf("failed to decode private key: %v", err),
		}
	}
	return &Wallet{key: key}, nil
}

// PublicKey returns the wallet's public key.
func (w *Wallet) PublicKey() sdk.PublicKey {
	return w.key.PublicKey()
}

// SignTransaction signs tx with the wallet's key. The transaction must
// already carry its recent blockhash; signing happens exactly once per
// transaction.
func (w *Wallet) SignTransaction(tx *sdk.Transaction) error {
	_, err := tx.Sign(func(key sdk.PublicKey) *sdk.PrivateKey {
		if key.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return &types.X402Error{
			Code:    types.ErrInvalidInput,
			Message: fmt.Sprintf("failed to sign transaction: %v", err),
		}
	}
	return nil
}

// Balance returns the wallet's balance in lamports.
func (w *Wallet) Balance(ctx context.Context, client RPCClient) (uint64, error) {
	return BalanceOf(ctx, client, w.key.PublicKey())
}

// BalanceOf returns the balance of an arbitrary account in lamports.
func BalanceOf(ctx context.Context, client RPCClient, account sdk.PublicKey) (uint64, error) {
	out, err := client.GetBalance(ctx, account, rpc.CommitmentFinalized)
	if err != nil {
		return 0, &types.X402Error{
			Code:    types.ErrLedgerError,
			Message: fmt.Sprintf("failed to get balance: %v", err),
		}
	}
	return out.Value, nil
}
