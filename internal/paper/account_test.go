package paper

import (
	"errors"
	"math"
	"testing"

	"livetrader-go/internal/signal"
)

func TestMarketFillAveragesAndRealizes(t *testing.T) {
	account := NewAccount(1000, 1)

	if err := account.MarketFill("ETH/USD", signal.Buy, 0.5, 1000); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if err := account.MarketFill("ETH/USD", signal.Buy, 0.25, 1100); err != nil {
		t.Fatalf("second buy: %v", err)
	}

	snap := account.Snapshot(map[string]float64{"ETH/USD": 1150})
	pos := snap.Positions["ETH/USD"]
	if pos.Qty != 0.75 {
		t.Fatalf("qty = %v, want 0.75", pos.Qty)
	}
	if math.Abs(pos.AvgCost-1033.333333) > 1e-5 {
		t.Fatalf("avg cost = %v", pos.AvgCost)
	}
	if snap.Cash != 225 {
		t.Fatalf("cash = %v, want 225", snap.Cash)
	}
	if math.Abs(pos.Unrealized-87.5) > 1e-9 {
		t.Fatalf("unrealized = %v, want 87.5", pos.Unrealized)
	}

	if err := account.MarketFill("ETH/USD", signal.Sell, 0.25, 1200); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if got := account.RealizedPnL(); math.Abs(got-41.666667) > 1e-5 {
		t.Fatalf("realized = %v", got)
	}

	snap = account.Snapshot(map[string]float64{"ETH/USD": 1180})
	if math.Abs(snap.Cash+snap.Positions["ETH/USD"].MarketValue-snap.Equity) > 1e-9 {
		t.Fatalf("equity does not balance: %+v", snap)
	}
	if snap.Positions["ETH/USD"].Trades != 3 {
		t.Fatalf("trades = %d, want 3", snap.Positions["ETH/USD"].Trades)
	}
}

func TestMarketFillDecimalCloseLeavesNoDust(t *testing.T) {
	account := NewAccount(100, 0)
	for _, q := range []float64{0.1, 0.2} {
		if err := account.MarketFill("SOL/USD", signal.Buy, q, 10); err != nil {
			t.Fatalf("buy %v: %v", q, err)
		}
	}
	if err := account.MarketFill("SOL/USD", signal.Sell, 0.3, 10); err != nil {
		t.Fatalf("closing sell: %v", err)
	}
	if account.Position("SOL/USD") != 0 {
		t.Fatalf("position = %v, want 0", account.Position("SOL/USD"))
	}
	if account.AvailableCash() != 100 {
		t.Fatalf("cash = %v, want 100", account.AvailableCash())
	}
	if _, open := account.Snapshot(nil).Positions["SOL/USD"]; open {
		t.Fatalf("closed position still listed")
	}
}

func TestMarketFillUnmarkedPositionHasNoValue(t *testing.T) {
	account := NewAccount(1000, 0)
	if err := account.MarketFill("AAPL", signal.Buy, 1, 100); err != nil {
		t.Fatalf("buy: %v", err)
	}
	snap := account.Snapshot(nil)
	if snap.Positions["AAPL"].MarketValue != 0 || snap.Equity != 900 {
		t.Fatalf("unmarked position should add nothing to equity: %+v", snap)
	}
}

func TestMarketFillRefusals(t *testing.T) {
	cases := []struct {
		name    string
		account *Account
		side    signal.Side
		qty     float64
		want    error
	}{
		{"cash", NewAccount(10, 1), signal.Buy, 0.1, errInsufficientCash},
		{"position cap", NewAccount(1000, 0.1), signal.Buy, 0.2, errPositionLimit},
		{"short", NewAccount(1000, 1), signal.Sell, 0.01, errInsufficientPosition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.account.MarketFill("BTC/USD", tc.side, tc.qty, 200)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if err := NewAccount(10, 0).MarketFill("BTC/USD", signal.Buy, 0, 1); err == nil {
		t.Fatalf("zero quantity accepted")
	}
}
