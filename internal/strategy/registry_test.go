package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopBar struct{}

func (noopBar) Next(*Context) error { return nil }

func TestBuiltinRegistry(t *testing.T) {
	reg := Builtin()
	names := make([]string, 0)
	for _, d := range reg.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"bollinger_revert", "macd_divergence", "obi_momentum", "rsi_ema", "sma_cross", "trend_follow", "vegas_double_tunnel"}, names)

	_, inst, err := reg.Build(" RSI_EMA ", nil)
	require.NoError(t, err)
	assert.NotNil(t, inst.Bar)
	assert.Equal(t, 200, inst.Warmup)
}

func TestBuildUnknownStrategy(t *testing.T) {
	_, _, err := Builtin().Build("martingale", nil)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestBuildValidatesOverrides(t *testing.T) {
	reg := Builtin()
	_, _, err := reg.Build("rsi_ema", map[string]float64{"rsi_length": 1})
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, _, err = reg.Build("rsi_ema", map[string]float64{"rsi_length": 14.5})
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, _, err = reg.Build("rsi_ema", map[string]float64{"no_such": 3})
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, inst, err := reg.Build("rsi_ema", map[string]float64{"rsi_length": 7, "use_ema_filter": 0})
	require.NoError(t, err)
	assert.Equal(t, 7, inst.Warmup)
}

func TestRegisterRejectsMissingCapability(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(Descriptor{
		Name: "liar",
		Mode: ModeBoth,
		New:  func(Params) (Instance, error) { return Instance{Bar: noopBar{}}, nil },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tick decision")

	err = reg.Register(Descriptor{Name: "nomode", New: func(Params) (Instance, error) { return Instance{}, nil }})
	assert.Error(t, err)

	err = reg.Register(Descriptor{Name: "noctor", Mode: ModeBacktest})
	assert.Error(t, err)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	desc := Descriptor{
		Name: "plain",
		Mode: ModeBacktest,
		New:  func(Params) (Instance, error) { return Instance{Bar: noopBar{}}, nil },
	}
	require.NoError(t, reg.Register(desc))
	assert.Error(t, reg.Register(desc))

	desc.Name = "twice"
	desc.Params = []ParamSpec{{Name: "n", Kind: KindInt, Default: 1}, {Name: "n", Kind: KindInt, Default: 2}}
	assert.Error(t, reg.Register(desc))
}

func TestRegisterRejectsBadDefault(t *testing.T) {
	err := NewRegistry().Register(Descriptor{
		Name:   "bad",
		Mode:   ModeBacktest,
		Params: []ParamSpec{{Name: "n", Kind: KindInt, Default: 500, Min: 1, Max: 10}},
		New:    func(Params) (Instance, error) { return Instance{Bar: noopBar{}}, nil },
	})
	assert.ErrorIs(t, err, ErrInvalidParam)
}
