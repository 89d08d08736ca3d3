package solana

import (
	"errors"
	"fmt"
	"strings"

	solana "github.com/gagliardetto/solana-go"
)

// ErrNoWallet means no signing key was configured.
var ErrNoWallet = errors.New("solana wallet key not configured (SOLANA_PRIVATE_KEY_BASE58)")

// ParsePrivateKey decodes a base58 secret key as exported by common Solana wallets.
func ParsePrivateKey(b58 string) (solana.PrivateKey, error) {
	b58 = strings.TrimSpace(b58)
	if b58 == "" {
		return nil, ErrNoWallet
	}
	key, err := solana.PrivateKeyFromBase58(b58)
	if err != nil {
		return nil, fmt.Errorf("parse wallet key: %w", err)
	}
	return key, nil
}
