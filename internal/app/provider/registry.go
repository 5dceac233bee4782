package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/coachpo/ctpgate/internal/infra/adapters/bridge"
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
	"github.com/coachpo/ctpgate/internal/infra/adapters/fake"
	"github.com/coachpo/ctpgate/internal/infra/config"
)

// Factory builds the native front binding for one gateway entry.
type Factory func(cfg config.GatewayConfig) (native.Factory, error)

// Registry maintains native binding factories keyed by binding name.
type Registry struct {
	mu        sync.RWMutex
	factories map[config.Binding]Factory
	metadata  map[config.Binding]BindingMetadata
}

// NewRegistry creates an empty binding registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[config.Binding]Factory),
		metadata:  make(map[config.Binding]BindingMetadata),
	}
}

// DefaultRegistry registers the simulator and websocket bridge bindings.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(config.BindingFake, func(cfg config.GatewayConfig) (native.Factory, error) {
		return fake.New(fake.OptionsFromConfig(cfg)), nil
	}, fakeMetadata)
	r.Register(config.BindingBridge, func(cfg config.GatewayConfig) (native.Factory, error) {
		return bridge.NewFactory(bridge.OptionsFromConfig(cfg.Bridge)), nil
	}, bridgeMetadata)
	return r
}

// Register installs a binding factory and its descriptive metadata.
func (r *Registry) Register(binding config.Binding, factory Factory, meta BindingMetadata) {
	if factory == nil {
		panic("binding factory required")
	}
	r.mu.Lock()
	r.factories[binding] = factory
	meta.Identifier = string(binding)
	r.metadata[binding] = meta
	r.mu.Unlock()
}

// Create builds the native factory selected by the gateway entry.
func (r *Registry) Create(cfg config.GatewayConfig) (native.Factory, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Binding]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("binding %q not registered", cfg.Binding)
	}
	f, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s binding for %s: %w", cfg.Binding, cfg.Name, err)
	}
	return f, nil
}

// Bindings lists registered binding metadata sorted by identifier.
func (r *Registry) Bindings() []BindingMetadata {
	r.mu.RLock()
	out := make([]BindingMetadata, 0, len(r.metadata))
	for _, meta := range r.metadata {
		out = append(out, meta.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}
