package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/iq360/pkg/provider/llm"
	"github.com/MrWong99/iq360/pkg/provider/s2s"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factories is a name → constructor table for one provider kind.
type factories[T any] struct {
	kind string
	mu   sync.RWMutex
	m    map[string]func(ProviderEntry) (T, error)
}

func (f *factories[T]) register(name string, fn func(ProviderEntry) (T, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.m == nil {
		f.m = make(map[string]func(ProviderEntry) (T, error))
	}
	f.m[name] = fn
}

func (f *factories[T]) create(entry ProviderEntry) (T, error) {
	f.mu.RLock()
	fn, ok := f.m[entry.Name]
	f.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	p, err := fn(entry)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("config: create %s/%q: %w", f.kind, entry.Name, err)
	}
	return p, nil
}

func (f *factories[T]) names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.m))
	for n := range f.m {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Registry maps provider names to constructors. It is safe for concurrent
// use. The zero value is not usable; call [NewRegistry].
type Registry struct {
	s2s *factories[s2s.Provider]
	llm *factories[llm.Provider]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		s2s: &factories[s2s.Provider]{kind: "s2s"},
		llm: &factories[llm.Provider]{kind: "llm"},
	}
}

// RegisterS2S registers a speech-to-speech factory. A later registration
// under the same name replaces the earlier one.
func (r *Registry) RegisterS2S(name string, fn func(ProviderEntry) (s2s.Provider, error)) {
	r.s2s.register(name, fn)
}

// RegisterLLM registers an LLM factory.
func (r *Registry) RegisterLLM(name string, fn func(ProviderEntry) (llm.Provider, error)) {
	r.llm.register(name, fn)
}

// CreateS2S builds the speech-to-speech provider named by entry.Name.
func (r *Registry) CreateS2S(entry ProviderEntry) (s2s.Provider, error) {
	return r.s2s.create(entry)
}

// CreateLLM builds the LLM provider named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.create(entry)
}

// Names returns the sorted registered names for kind ("s2s" or "llm").
func (r *Registry) Names(kind string) []string {
	switch kind {
	case "s2s":
		return r.s2s.names()
	case "llm":
		return r.llm.names()
	}
	return nil
}
