package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry resolves strategy names to descriptors. Capability checks happen once, at registration.
type Registry struct {
	mu    sync.RWMutex
	descs map[string]Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{descs: make(map[string]Descriptor)}
}

// Register validates the descriptor and adds it under its normalized name.
func (r *Registry) Register(desc Descriptor) error {
	name := normalize(desc.Name)
	if name == "" {
		return fmt.Errorf("strategy descriptor needs a name")
	}
	if desc.New == nil {
		return fmt.Errorf("strategy %s has no constructor", name)
	}
	if !desc.Mode.Bars() && !desc.Mode.Ticks() {
		return fmt.Errorf("strategy %s declares unknown mode %q", name, desc.Mode)
	}
	seen := make(map[string]struct{}, len(desc.Params))
	for _, p := range desc.Params {
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("strategy %s declares parameter %s twice", name, p.Name)
		}
		seen[p.Name] = struct{}{}
		if err := p.check(p.Default); err != nil {
			return fmt.Errorf("strategy %s default: %w", name, err)
		}
	}

	inst, err := desc.New(desc.Defaults())
	if err != nil {
		return fmt.Errorf("strategy %s failed to build with defaults: %w", name, err)
	}
	if desc.Mode.Bars() && inst.Bar == nil {
		return fmt.Errorf("strategy %s declares mode %s but provides no bar decision", name, desc.Mode)
	}
	if desc.Mode.Ticks() && inst.Tick == nil {
		return fmt.Errorf("strategy %s declares mode %s but provides no tick decision", name, desc.Mode)
	}

	desc.Name = name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descs[name]; exists {
		return fmt.Errorf("strategy %s already registered", name)
	}
	r.descs[name] = desc
	return nil
}

// MustRegister panics on registration errors; used for built-ins.
func (r *Registry) MustRegister(descs ...Descriptor) {
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.descs[normalize(name)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return desc, nil
}

// Build resolves overrides against the schema and instantiates the strategy.
func (r *Registry) Build(name string, overrides map[string]float64) (Descriptor, Instance, error) {
	desc, err := r.Lookup(name)
	if err != nil {
		return Descriptor{}, Instance{}, err
	}
	params, err := desc.Resolve(overrides)
	if err != nil {
		return Descriptor{}, Instance{}, err
	}
	inst, err := desc.New(params)
	if err != nil {
		return Descriptor{}, Instance{}, fmt.Errorf("build %s: %w", desc.Name, err)
	}
	if inst.Warmup < 0 {
		inst.Warmup = 0
	}
	return desc, inst, nil
}

// List returns descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.descs))
	for _, d := range r.descs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Builtin returns a registry holding every strategy shipped with the bot.
func Builtin() *Registry {
	r := NewRegistry()
	r.MustRegister(
		RSIEMADescriptor(),
		SMACrossDescriptor(),
		BollingerDescriptor(),
		OBIMomentumDescriptor(),
		TrendFollowerDescriptor(),
		MACDDivergenceDescriptor(),
		VegasTunnelDescriptor(),
	)
	return r
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
