package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

func TestParseCommitment(t *testing.T) {
	cases := map[string]rpc.CommitmentType{
		"finalized": rpc.CommitmentFinalized,
		"processed": rpc.CommitmentProcessed,
		"":          rpc.CommitmentConfirmed,
		"bogus":     rpc.CommitmentConfirmed,
	}
	for in, want := range cases {
		if got := ParseCommitment(in); got != want {
			t.Fatalf("ParseCommitment(%q) = %v, want %v", in, got, want)
		}
	}
	client := NewJupiterClient("https://rpc", "", solana.NewWallet().PrivateKey, "finalized")
	if client.Commit != rpc.CommitmentFinalized || client.Base != DefaultJupiterBase {
		t.Fatalf("unexpected client %+v", client)
	}
}

func TestGetQuote(t *testing.T) {
	wallet := solana.NewWallet()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v6/quote" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		q := r.URL.Query()
		if q.Get("inputMint") != "AAA" || q.Get("amount") != "10" || q.Get("slippageBps") != "50" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"inputMint":"AAA","outputMint":"BBB","inAmount":"10","outAmount":"20","slippageBps":50,"priceImpactPct":"0.0012"}`))
	}))
	defer server.Close()

	client := NewJupiterClient("https://rpc", server.URL, wallet.PrivateKey, "processed")
	client.Http = server.Client()

	quote, err := client.GetQuote(context.Background(), "AAA", "BBB", 10, 50)
	if err != nil {
		t.Fatalf("GetQuote returned error: %v", err)
	}
	if quote.OutAmount != "20" || quote.PriceImpactPct != 0.0012 {
		t.Fatalf("unexpected quote %+v", quote)
	}
}

func TestSwapErrorCarriesBody(t *testing.T) {
	wallet := solana.NewWallet()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["userPublicKey"] != wallet.PublicKey().String() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"route expired"}`))
	}))
	defer server.Close()

	client := NewJupiterClient("https://rpc", server.URL, wallet.PrivateKey, "")
	client.Http = server.Client()
	_, err := client.BuildAndSendSwap(context.Background(), &Quote{InputMint: "AAA"})
	if err == nil || !strings.Contains(err.Error(), "route expired") {
		t.Fatalf("expected swap error with body, got %v", err)
	}
}
