// Package strategy hosts strategy capability descriptors, the registry, the mock order surface,
// and the adapter that drives bar-based strategies from a live feed.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"livetrader-go/internal/signal"
)

var (
	// ErrUnknownStrategy is returned when a name is not registered.
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrInvalidParam is returned when a parameter override violates the schema.
	ErrInvalidParam = errors.New("invalid strategy parameter")
)

// Mode declares which decision surfaces a strategy provides.
type Mode string

const (
	// ModeBacktest strategies decide once per closed bar.
	ModeBacktest Mode = "backtest"
	// ModeLive strategies decide on every tick.
	ModeLive Mode = "live"
	// ModeBoth strategies provide both surfaces.
	ModeBoth Mode = "both"
)

// Bars reports whether the mode includes per-bar decisions.
func (m Mode) Bars() bool { return m == ModeBacktest || m == ModeBoth }

// Ticks reports whether the mode includes per-tick decisions.
func (m Mode) Ticks() bool { return m == ModeLive || m == ModeBoth }

// BarStrategy decides on each closed synthetic bar. Intents are recorded on the context.
type BarStrategy interface {
	Next(ctx *Context) error
}

// TickStrategy decides on each tick. Intents are recorded on the context.
type TickStrategy interface {
	OnTick(ctx *Context, tk signal.Tick) error
}

// Instance is a built strategy: its decision functions plus the history it needs before deciding.
type Instance struct {
	Bar    BarStrategy
	Tick   TickStrategy
	Warmup int
}

// ParamKind is the value domain of a parameter.
type ParamKind string

const (
	KindInt   ParamKind = "int"
	KindFloat ParamKind = "float"
	KindBool  ParamKind = "bool"
)

// ParamSpec describes one tunable parameter. Min and Max both zero means unbounded.
type ParamSpec struct {
	Name    string
	Label   string
	Kind    ParamKind
	Default float64
	Min     float64
	Max     float64
}

func (p ParamSpec) bounded() bool { return p.Min != 0 || p.Max != 0 }

func (p ParamSpec) check(v float64) error {
	switch p.Kind {
	case KindInt:
		if v != math.Trunc(v) {
			return fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidParam, p.Name, v)
		}
	case KindBool:
		if v != 0 && v != 1 {
			return fmt.Errorf("%w: %s must be 0 or 1, got %v", ErrInvalidParam, p.Name, v)
		}
		return nil
	}
	if p.bounded() && (v < p.Min || v > p.Max) {
		return fmt.Errorf("%w: %s=%v outside [%v, %v]", ErrInvalidParam, p.Name, v, p.Min, p.Max)
	}
	return nil
}

// Params carries parameter values keyed by name.
type Params map[string]float64

// Float returns the named value.
func (p Params) Float(name string) float64 { return p[name] }

// Int returns the named value truncated to an int.
func (p Params) Int(name string) int { return int(p[name]) }

// Bool returns true when the named value is non-zero.
func (p Params) Bool(name string) bool { return p[name] != 0 }

// Descriptor is the explicit capability declaration every strategy registers with.
type Descriptor struct {
	Name   string
	Title  string
	Mode   Mode
	Params []ParamSpec
	New    func(Params) (Instance, error)
}

// Defaults returns the default parameter set.
func (d Descriptor) Defaults() Params {
	out := make(Params, len(d.Params))
	for _, p := range d.Params {
		out[p.Name] = p.Default
	}
	return out
}

// Resolve merges overrides onto defaults, validating each against the schema.
func (d Descriptor) Resolve(overrides map[string]float64) (Params, error) {
	specs := make(map[string]ParamSpec, len(d.Params))
	for _, p := range d.Params {
		specs[p.Name] = p
	}
	out := d.Defaults()
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		spec, ok := specs[strings.TrimSpace(k)]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no parameter %q", ErrInvalidParam, d.Name, k)
		}
		if err := spec.check(overrides[k]); err != nil {
			return nil, err
		}
		out[spec.Name] = overrides[k]
	}
	return out, nil
}
