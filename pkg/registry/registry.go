package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/schema"
)

// ErrFinalized is returned when Register is called after Finalize.
var ErrFinalized = errors.New("registry is finalized")

// ErrNotFinalized is returned by lookups that require a finalized registry.
var ErrNotFinalized = errors.New("registry is not finalized")

// Registry holds the state definitions of one agent.
// It is mutable until Finalize succeeds and read-only afterwards.
type Registry struct {
	mu        sync.RWMutex
	terminal  string
	states    map[string]domain.StateDefinition
	order     []string
	finalized bool
}

// New creates an empty registry whose terminal state will be terminal.
func New(terminal string) *Registry {
	return &Registry{
		terminal: terminal,
		states:   make(map[string]domain.StateDefinition),
	}
}

// Register adds a state definition.
// A nil schema is replaced by schema.DefaultResponse.
func (r *Registry) Register(def domain.StateDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("state id cannot be empty")
	}
	if def.ID == domain.NoOp {
		return fmt.Errorf("state id %q is reserved", domain.NoOp)
	}
	if def.Schema == nil {
		def.Schema = schema.DefaultResponse()
	}
	if err := def.Schema.Check(); err != nil {
		return fmt.Errorf("state %q schema: %w", def.ID, err)
	}
	for _, e := range def.Edges {
		if e.To == "" {
			return fmt.Errorf("state %q has an edge with empty target", def.ID)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return ErrFinalized
	}
	if _, exists := r.states[def.ID]; exists {
		return &domain.DuplicateStateError{ID: def.ID}
	}
	r.states[def.ID] = def.Clone()
	r.order = append(r.order, def.ID)
	return nil
}

// Finalize checks the graph and freezes the registry.
// All dangling edges are reported, joined, in registration order.
func (r *Registry) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return nil
	}

	var errs []error
	for _, id := range r.order {
		for _, e := range r.states[id].Edges {
			if _, ok := r.states[e.To]; !ok {
				errs = append(errs, &domain.DanglingEdgeError{From: id, To: e.To})
			}
		}
	}
	if _, ok := r.states[r.terminal]; !ok {
		errs = append(errs, &domain.NoTerminalStateError{ID: r.terminal})
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	r.finalized = true
	return nil
}

// Finalized reports whether Finalize has succeeded.
func (r *Registry) Finalized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finalized
}

// Get returns a copy of the definition for id.
func (r *Registry) Get(id string) (domain.StateDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.states[id]
	if !ok {
		return domain.StateDefinition{}, false
	}
	return def.Clone(), true
}

// MustGet is Get for ids known to be registered, such as edge targets after Finalize.
func (r *Registry) MustGet(id string) domain.StateDefinition {
	def, ok := r.Get(id)
	if !ok {
		panic(fmt.Sprintf("registry: state %q not registered", id))
	}
	return def
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.states[id]
	return ok
}

// Terminal returns the terminal state id.
func (r *Registry) Terminal() string {
	return r.terminal
}

// IDs returns the registered ids sorted alphabetically.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := slices.Clone(r.order)
	slices.Sort(ids)
	return ids
}

// Definitions returns copies of all definitions in registration order.
func (r *Registry) Definitions() []domain.StateDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.StateDefinition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.states[id].Clone())
	}
	return out
}
