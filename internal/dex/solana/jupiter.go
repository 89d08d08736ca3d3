// Package solana executes order intents as Jupiter aggregator swaps signed with a local wallet.
package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// DefaultJupiterBase is the public quote API.
const DefaultJupiterBase = "https://quote-api.jup.ag"

// JupiterClient quotes and submits swaps. RPC is used only for sending and balances.
type JupiterClient struct {
	Base   string
	RPC    *rpc.Client
	Owner  solana.PrivateKey
	Commit rpc.CommitmentType
	Http   *http.Client

	// PriorityFeeLamports is passed to the swap builder; zero lets Jupiter pick none.
	PriorityFeeLamports uint64
}

// Quote is the subset of the v6 quote response the swap endpoint needs echoed back.
type Quote struct {
	InputMint      string  `json:"inputMint"`
	OutputMint     string  `json:"outputMint"`
	InAmount       string  `json:"inAmount"`
	OutAmount      string  `json:"outAmount"`
	OtherAmount    string  `json:"otherAmountThreshold"`
	SlippageBps    int     `json:"slippageBps"`
	RoutePlan      any     `json:"routePlan"`
	PriceImpactPct float64 `json:"priceImpactPct,string"`
}

// ParseCommitment maps a config string onto an RPC commitment, defaulting to confirmed.
func ParseCommitment(s string) rpc.CommitmentType {
	switch s {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized":
		return rpc.CommitmentFinalized
	}
	return rpc.CommitmentConfirmed
}

// NewJupiterClient builds a client for the given RPC endpoint and Jupiter base URL.
func NewJupiterClient(rpcURL, base string, owner solana.PrivateKey, commit string) *JupiterClient {
	if base == "" {
		base = DefaultJupiterBase
	}
	return &JupiterClient{
		Base:   base,
		RPC:    rpc.New(rpcURL),
		Owner:  owner,
		Commit: ParseCommitment(commit),
		Http:   &http.Client{Timeout: 8 * time.Second},
	}
}

// GetQuote asks for a route. amount is in the input mint's smallest units.
func (j *JupiterClient) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))
	q.Set("onlyDirectRoutes", "false")

	var out Quote
	if err := j.call(ctx, http.MethodGet, "/v6/quote?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("jupiter quote: %w", err)
	}
	return &out, nil
}

// BuildAndSendSwap fetches the unsigned swap transaction for quote, signs it with Owner and submits it.
func (j *JupiterClient) BuildAndSendSwap(ctx context.Context, quote *Quote) (solana.Signature, error) {
	var sig solana.Signature
	tx, err := j.swapTransaction(ctx, quote)
	if err != nil {
		return sig, err
	}
	owner := j.Owner.PublicKey()
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(owner) {
			return &j.Owner
		}
		return nil
	}); err != nil {
		return sig, fmt.Errorf("sign swap: %w", err)
	}
	sig, err = j.RPC.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{PreflightCommitment: j.Commit})
	if err != nil {
		return sig, fmt.Errorf("send swap: %w", err)
	}
	return sig, nil
}

func (j *JupiterClient) swapTransaction(ctx context.Context, quote *Quote) (*solana.Transaction, error) {
	payload := map[string]any{
		"userPublicKey":             j.Owner.PublicKey().String(),
		"wrapAndUnwrapSol":          true,
		"asLegacyTransaction":       false,
		"prioritizationFeeLamports": j.PriorityFeeLamports,
		"quoteResponse":             quote,
	}
	var resp struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := j.call(ctx, http.MethodPost, "/v6/swap", payload, &resp); err != nil {
		return nil, fmt.Errorf("jupiter swap: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("decode swap tx: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal swap tx: %w", err)
	}
	return tx, nil
}

func (j *JupiterClient) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, j.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := j.Http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
