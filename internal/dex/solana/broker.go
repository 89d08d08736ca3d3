package solana

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"livetrader-go/internal/execution"
	"livetrader-go/internal/signal"
)

// Market maps a trading symbol onto a Jupiter swap pair.
type Market struct {
	BaseMint      string `yaml:"base_mint"`
	QuoteMint     string `yaml:"quote_mint"`
	BaseDecimals  int32  `yaml:"base_decimals"`
	QuoteDecimals int32  `yaml:"quote_decimals"`
}

// Swapper is the part of JupiterClient the broker drives.
type Swapper interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error)
	BuildAndSendSwap(ctx context.Context, quote *Quote) (solana.Signature, error)
}

// Broker executes market intents as Jupiter swaps. Buys spend quote for base, sells the reverse.
type Broker struct {
	swapper     Swapper
	markets     map[string]Market
	slippageBps int
	owner       solana.PublicKey
	rpc         *rpc.Client
	log         zerolog.Logger
}

// NewBroker wires a Jupiter client to the configured markets.
func NewBroker(client *JupiterClient, markets map[string]Market, slippageBps int, log zerolog.Logger) *Broker {
	b := newBroker(client, markets, slippageBps, log)
	b.owner = client.Owner.PublicKey()
	b.rpc = client.RPC
	return b
}

func newBroker(s Swapper, markets map[string]Market, slippageBps int, log zerolog.Logger) *Broker {
	if slippageBps <= 0 {
		slippageBps = 50
	}
	return &Broker{swapper: s, markets: markets, slippageBps: slippageBps, log: log}
}

// PlaceOrder quotes and sends one swap. The transaction signature becomes the order id.
func (b *Broker) PlaceOrder(ctx context.Context, req execution.OrderRequest) (execution.OrderResult, error) {
	m, ok := b.markets[req.Symbol]
	if !ok {
		return execution.OrderResult{}, execution.Rejected("no swap market configured for %s", req.Symbol)
	}
	if req.Type != "" && req.Type != signal.Market {
		return execution.OrderResult{}, execution.Rejected("swaps support market orders only, got %s", req.Type)
	}
	in, out, amount, err := swapLeg(m, req)
	if err != nil {
		return execution.OrderResult{}, err
	}

	quote, err := b.swapper.GetQuote(ctx, in, out, amount, b.slippageBps)
	if err != nil {
		return execution.OrderResult{}, fmt.Errorf("quote %s: %w", req.Symbol, err)
	}
	sig, err := b.swapper.BuildAndSendSwap(ctx, quote)
	if err != nil {
		return execution.OrderResult{}, fmt.Errorf("swap %s: %w", req.Symbol, err)
	}
	b.log.Info().
		Str("sym", req.Symbol).
		Str("side", string(req.Side)).
		Float64("qty", req.Qty).
		Str("in", quote.InAmount).
		Str("out", quote.OutAmount).
		Str("sig", sig.String()).
		Msg("swap sent")
	return execution.OrderResult{ID: sig.String(), ClientOrderID: req.ClientOrderID, Status: "submitted"}, nil
}

// swapLeg returns input mint, output mint and input amount in the input token's smallest units.
func swapLeg(m Market, req execution.OrderRequest) (string, string, uint64, error) {
	qty := decimal.NewFromFloat(req.Qty)
	switch req.Side {
	case signal.Buy:
		if req.RefPrice <= 0 {
			return "", "", 0, execution.Rejected("buy needs a reference price to size the quote leg")
		}
		spend := qty.Mul(decimal.NewFromFloat(req.RefPrice)).Shift(m.QuoteDecimals).Floor()
		return m.QuoteMint, m.BaseMint, uint64(spend.IntPart()), nil
	case signal.Sell:
		return m.BaseMint, m.QuoteMint, uint64(qty.Shift(m.BaseDecimals).Floor().IntPart()), nil
	}
	return "", "", 0, execution.Rejected("unknown side %q", req.Side)
}

// Account reports the wallet's SOL balance as cash when an RPC client is configured.
func (b *Broker) Account(ctx context.Context) (execution.Account, error) {
	acct := execution.Account{ID: b.owner.String(), Status: "ACTIVE", Currency: "SOL"}
	if b.rpc == nil {
		return acct, nil
	}
	bal, err := b.rpc.GetBalance(ctx, b.owner, rpc.CommitmentConfirmed)
	if err != nil {
		return acct, fmt.Errorf("balance: %w", err)
	}
	lamports := decimal.NewFromInt(int64(bal.Value)).Shift(-9)
	acct.Cash = lamports.InexactFloat64()
	acct.Equity = acct.Cash
	return acct, nil
}

// Positions is always empty; token balances are not mirrored.
func (b *Broker) Positions(context.Context) ([]execution.Position, error) { return nil, nil }

// OpenOrders is always empty; swaps settle or fail.
func (b *Broker) OpenOrders(context.Context) ([]execution.Order, error) { return nil, nil }
