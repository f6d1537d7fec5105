package transport

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"

	errspkg "github.com/drblury/parcelflow/internal/runtime/errors"
)

// DefaultTransportName is used when the configured pubsub system is empty.
const DefaultTransportName = "channel"

// Registry maps transport names to their builders and capabilities.
type Registry struct {
	mu           sync.RWMutex
	builders     map[string]Builder
	capabilities map[string]Capabilities
	aliases      map[string]string
}

// DefaultRegistry is the registry the built-in transports register with.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		builders:     make(map[string]Builder),
		capabilities: make(map[string]Capabilities),
		aliases:      make(map[string]string),
	}
}

// Register adds a builder and its capabilities under name. Names are case
// insensitive.
func (r *Registry) Register(name string, builder Builder, caps Capabilities) {
	name = strings.ToLower(name)
	if caps.Name == "" {
		caps.Name = name
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = builder
	r.capabilities[name] = caps
}

// Alias makes alias resolve to the transport registered as name.
func (r *Registry) Alias(alias, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[strings.ToLower(alias)] = strings.ToLower(name)
}

func (r *Registry) resolve(name string) string {
	name = strings.ToLower(name)
	if name == "" {
		name = DefaultTransportName
	}
	if target, ok := r.aliases[name]; ok {
		return target
	}
	return name
}

// GetCapabilities returns the capabilities registered for name, or a value
// carrying only the name when the transport is unknown.
func (r *Registry) GetCapabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name = r.resolve(name)
	if caps, ok := r.capabilities[name]; ok {
		return caps
	}
	return Capabilities{Name: name}
}

// Build creates the transport selected by cfg.GetPubSubSystem. The returned
// Transport carries the registered capabilities.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, errspkg.ErrConfigRequired
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	r.mu.RLock()
	name := r.resolve(cfg.GetPubSubSystem())
	builder, ok := r.builders[name]
	caps := r.capabilities[name]
	r.mu.RUnlock()

	if !ok {
		return Transport{}, fmt.Errorf("unknown transport: %q (registered: %v)", name, r.Names())
	}

	t, err := builder(ctx, cfg, logger)
	if err != nil {
		return Transport{}, fmt.Errorf("build %s transport: %w", name, err)
	}
	t.Capabilities = caps
	return t, nil
}

// Names returns the registered transport names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Has reports whether name, or the transport it aliases, is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builders[r.resolve(name)]
	return ok
}

// Register adds a transport to the default registry.
func Register(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.Register(name, builder, caps)
}

// Alias adds an alias to the default registry.
func Alias(alias, name string) {
	DefaultRegistry.Alias(alias, name)
}

// Build creates a transport using the default registry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}

// GetCapabilities returns capabilities from the default registry.
func GetCapabilities(name string) Capabilities {
	return DefaultRegistry.GetCapabilities(name)
}

// Factory abstracts how a Service obtains its transport.
type Factory interface {
	Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Build calls f.
func (f FactoryFunc) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, cfg, logger)
}

// Static returns a Factory that always yields t. It is handy for tests and
// for services that construct their pub/sub by hand.
func Static(t Transport) Factory {
	return FactoryFunc(func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return t, nil
	})
}

// DefaultFactory builds transports from the default registry.
func DefaultFactory() Factory {
	return DefaultRegistry
}
