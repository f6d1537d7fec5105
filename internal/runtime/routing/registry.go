// Package routing maps parcels to the endpoints that should process them.
package routing

import (
	"reflect"
	"sync"

	errspkg "github.com/drblury/parcelflow/internal/runtime/errors"
	"github.com/drblury/parcelflow/internal/runtime/parcel"
	"github.com/drblury/parcelflow/internal/runtime/policy"
)

type patternEntry struct {
	matcher   Matcher
	endpoints []Endpoint
}

// Registry associates matchers with ordered endpoint lists. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	exact    map[string][]Endpoint
	patterns []*patternEntry
	defaults []policy.Policy
}

// NewRegistry returns an empty registry whose endpoints without their own
// policies fall back to defaultPolicies.
func NewRegistry(defaultPolicies ...policy.Policy) *Registry {
	return &Registry{
		exact:    make(map[string][]Endpoint),
		defaults: defaultPolicies,
	}
}

// Add registers endpoints under matcher. Kind matchers become exact lookups;
// any other matcher is appended to the ordered pattern list. Adding to a
// matcher that is already registered extends its endpoint list.
func (r *Registry) Add(matcher Matcher, endpoints ...Endpoint) error {
	if matcher == nil {
		return errspkg.ErrMatcherRequired
	}
	for _, ep := range endpoints {
		if err := ep.Validate(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if kind, ok := matcher.(Kind); ok {
		r.exact[string(kind)] = append(r.exact[string(kind)], endpoints...)
		return nil
	}

	if entry := r.findPattern(matcher); entry != nil {
		entry.endpoints = append(entry.endpoints, endpoints...)
		return nil
	}
	r.patterns = append(r.patterns, &patternEntry{
		matcher:   matcher,
		endpoints: append([]Endpoint(nil), endpoints...),
	})
	return nil
}

// AddKind registers endpoints under an exact kind.
func (r *Registry) AddKind(kind string, endpoints ...Endpoint) error {
	return r.Add(Kind(kind), endpoints...)
}

func (r *Registry) findPattern(matcher Matcher) *patternEntry {
	// Value.Comparable also inspects interface fields, so a comparable
	// struct holding a slice is treated as unique instead of panicking.
	want := reflect.ValueOf(matcher)
	if !want.Comparable() {
		return nil
	}
	for _, entry := range r.patterns {
		got := reflect.ValueOf(entry.matcher)
		if got.Type() == want.Type() && got.Comparable() && got.Equal(want) {
			return entry
		}
	}
	return nil
}

// Match returns the exact-kind endpoints followed by the endpoints of every
// matching pattern, in registration order. Duplicates are kept.
func (r *Registry) Match(p parcel.Parcel) []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Endpoint
	matched = append(matched, r.exact[p.Kind()]...)
	for _, entry := range r.patterns {
		if entry.matcher.Matches(p) {
			matched = append(matched, entry.endpoints...)
		}
	}
	return matched
}

// Size returns the number of distinct matcher keys.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.exact) + len(r.patterns)
}

// SetDefaultPolicies replaces the fallback policy chain.
func (r *Registry) SetDefaultPolicies(policies ...policy.Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = policies
}

// Policies returns the chain that guards ep: its own policies when it has
// any, the registry defaults otherwise.
func (r *Registry) Policies(ep Endpoint) policy.Chain {
	if len(ep.Policies) > 0 {
		return ep.Policies
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append(policy.Chain(nil), r.defaults...)
}
