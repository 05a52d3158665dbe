// Package persona holds the named voice-agent identities a session can be
// opened with.
//
// A persona is static configuration: an instruction template, a prebuilt
// voice, and a display name. The [Registry] maps identifiers to personas,
// starts out with the built-in Atlas and Echo identities, and accepts
// configured overrides that can be swapped in at runtime.
package persona

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/iq360/pkg/provider/s2s"
)

// Built-in persona identifiers.
const (
	Atlas = "atlas"
	Echo  = "echo"
)

// ErrNotFound is returned by [Registry.Get] for an unknown identifier.
var ErrNotFound = errors.New("persona: not found")

// Persona is one voice-agent identity.
type Persona struct {
	// ID is the lowercase lookup key, e.g. "atlas".
	ID string `yaml:"id" json:"id"`

	// Name is the display name used in status strings and transcripts.
	Name string `yaml:"name" json:"name"`

	// Voice is the provider's prebuilt voice identity, e.g. "Charon".
	Voice string `yaml:"voice" json:"voice"`

	// Role is a short description such as "Strategic Architect".
	Role string `yaml:"role" json:"role"`

	// Instruction is the system prompt sent when the session opens.
	Instruction string `yaml:"instruction" json:"-"`
}

// SessionConfig returns the speech-to-speech configuration for this persona:
// audio responses with transcription in both directions.
func (p Persona) SessionConfig() s2s.SessionConfig {
	return s2s.SessionConfig{
		Instructions:        p.Instruction,
		Voice:               p.Voice,
		ResponseModality:    s2s.ModalityAudio,
		InputTranscription:  true,
		OutputTranscription: true,
	}
}

// Validate reports missing required fields.
func (p Persona) Validate() error {
	var errs []error
	if p.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if p.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if p.Instruction == "" {
		errs = append(errs, errors.New("instruction is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("persona %q: %w", p.ID, err)
	}
	return nil
}

// BuiltIn returns the built-in personas keyed by ID.
func BuiltIn() map[string]Persona {
	return map[string]Persona{
		Atlas: {
			ID:          Atlas,
			Name:        "Atlas",
			Voice:       "Charon",
			Role:        "Strategic Architect",
			Instruction: atlasInstruction,
		},
		Echo: {
			ID:          Echo,
			Name:        "Echo",
			Voice:       "Kore",
			Role:        "Executive Assistant",
			Instruction: echoInstruction,
		},
	}
}

// aliases maps legacy mode names onto persona IDs.
var aliases = map[string]string{
	"sol": Echo,
}

// Registry is a concurrency-safe persona lookup table.
type Registry struct {
	mu       sync.RWMutex
	personas map[string]Persona
	def      string
}

// NewRegistry returns a Registry holding the built-ins merged with extra.
// Entries in extra replace built-ins with the same ID.
func NewRegistry(extra ...Persona) (*Registry, error) {
	r := &Registry{def: Echo}
	if err := r.Replace(extra); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the persona for id. Lookup is case-insensitive and honours
// aliases.
func (r *Registry) Get(id string) (Persona, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	if a, ok := aliases[key]; ok {
		key = a
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.personas[key]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return p, nil
}

// Default returns the persona used when none is requested.
func (r *Registry) Default() Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.personas[r.def]
}

// List returns all personas sorted by ID.
func (r *Registry) List() []Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(r.personas))
	out := make([]Persona, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.personas[id])
	}
	return out
}

// Replace rebuilds the table from the built-ins plus extra. On a validation
// error the current table is left untouched.
func (r *Registry) Replace(extra []Persona) error {
	next := BuiltIn()
	var errs []error
	for _, p := range extra {
		p.ID = strings.ToLower(strings.TrimSpace(p.ID))
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		next[p.ID] = p
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	r.mu.Lock()
	r.personas = next
	r.mu.Unlock()
	return nil
}
