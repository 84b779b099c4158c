package dsl

import (
	"fmt"

	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/registry"
)

// Builder collects state declarations.
type Builder struct {
	terminal string
	states   map[string]*StateBuilder
	order    []string
}

// New creates a builder for an agent ending in terminal.
func New(terminal string) *Builder {
	return &Builder{
		terminal: terminal,
		states:   make(map[string]*StateBuilder),
	}
}

// Add declares a state.
// If the state already exists, it returns the existing builder.
func (b *Builder) Add(id string) *StateBuilder {
	if sb, ok := b.states[id]; ok {
		return sb
	}
	sb := &StateBuilder{
		def:     domain.StateDefinition{ID: id},
		builder: b,
	}
	b.states[id] = sb
	b.order = append(b.order, id)
	return sb
}

// Build registers every declared state and finalizes the registry.
func (b *Builder) Build() (*registry.Registry, error) {
	reg := registry.New(b.terminal)
	for _, id := range b.order {
		if err := reg.Register(b.states[id].def); err != nil {
			return nil, fmt.Errorf("failed to register state %q: %w", id, err)
		}
	}
	if err := reg.Finalize(); err != nil {
		return nil, fmt.Errorf("failed to finalize registry: %w", err)
	}
	return reg, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *registry.Registry {
	reg, err := b.Build()
	if err != nil {
		panic(err)
	}
	return reg
}
