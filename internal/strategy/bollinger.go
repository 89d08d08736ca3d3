package strategy

import (
	"fmt"

	"livetrader-go/internal/indicator"
)

// BollingerDescriptor registers the band mean-reversion strategy.
func BollingerDescriptor() Descriptor {
	return Descriptor{
		Name:  "bollinger_revert",
		Title: "Bollinger band reversion",
		Mode:  ModeBacktest,
		Params: []ParamSpec{
			{Name: "length", Label: "Band length", Kind: KindInt, Default: 20, Min: 2, Max: 500},
			{Name: "stddev", Label: "Band width (σ)", Kind: KindFloat, Default: 2, Min: 0.1, Max: 10},
		},
		New: func(p Params) (Instance, error) {
			s := &BollingerRevert{length: p.Int("length"), k: p.Float("stddev")}
			return Instance{Bar: s, Warmup: s.length - 1}, nil
		},
	}
}

// BollingerRevert buys a close under the lower band and sells a close over the upper band.
// Repeated closes outside the same band do not emit again until price returns inside.
type BollingerRevert struct {
	length int
	k      float64
	armed  int // side of the last signal, 0 once price is back inside the bands
}

// Next checks the latest close against the bands.
func (s *BollingerRevert) Next(ctx *Context) error {
	bands, err := indicator.Bollinger(ctx.Bars.Closes(), s.length, s.k)
	if err != nil {
		return err
	}
	px := ctx.Price()
	switch {
	case px < bands.Lower:
		if s.armed != 1 {
			s.armed = 1
			ctx.Buy(Because(fmt.Sprintf("close %.4f under lower band %.4f", px, bands.Lower)))
		}
	case px > bands.Upper:
		if s.armed != -1 {
			s.armed = -1
			ctx.Sell(Because(fmt.Sprintf("close %.4f over upper band %.4f", px, bands.Upper)))
		}
	default:
		s.armed = 0
	}
	return nil
}
