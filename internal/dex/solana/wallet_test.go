package solana

import (
	"errors"
	"testing"

	solana "github.com/gagliardetto/solana-go"
)

func TestParsePrivateKey(t *testing.T) {
	wallet := solana.NewWallet()
	key, err := ParsePrivateKey(" " + wallet.PrivateKey.String() + "\n")
	if err != nil {
		t.Fatalf("expected key, got error: %v", err)
	}
	if !key.PublicKey().Equals(wallet.PublicKey()) {
		t.Fatalf("expected public key %s, got %s", wallet.PublicKey(), key.PublicKey())
	}
}

func TestParsePrivateKeyMissing(t *testing.T) {
	if _, err := ParsePrivateKey(""); !errors.Is(err, ErrNoWallet) {
		t.Fatalf("expected ErrNoWallet, got %v", err)
	}
	if _, err := ParsePrivateKey("not-base58-0OIl"); err == nil {
		t.Fatalf("expected error for garbage key")
	}
}
