package dsl

import (
	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/schema"
)

// StateBuilder provides a fluent API for configuring a state.
type StateBuilder struct {
	def     domain.StateDefinition
	builder *Builder
}

// Prompt sets the static prompt template.
func (s *StateBuilder) Prompt(template string) *StateBuilder {
	s.def.Prompt = template
	return s
}

// Preprocess sets a callable that produces the prompt at turn time.
func (s *StateBuilder) Preprocess(fn domain.PromptFunc) *StateBuilder {
	s.def.Preprocess = fn
	return s
}

// Describe sets a human-readable description used by introspection.
func (s *StateBuilder) Describe(text string) *StateBuilder {
	s.def.Description = text
	return s
}

// Schema sets the expected reply shape.
func (s *StateBuilder) Schema(d *schema.Descriptor) *StateBuilder {
	s.def.Schema = d
	return s
}

// Edge declares a transition to target, described by condition.
func (s *StateBuilder) Edge(target, condition string) *StateBuilder {
	s.def.Edges = append(s.def.Edges, domain.Edge{To: target, Condition: condition})
	return s
}

// Go declares a transition without a condition.
func (s *StateBuilder) Go(target string) *StateBuilder {
	return s.Edge(target, "")
}

// Handle sets the state handler.
func (s *StateBuilder) Handle(h domain.Handler) *StateBuilder {
	s.def.Handler = h
	return s
}

// Terminal clears the outgoing edges.
func (s *StateBuilder) Terminal() *StateBuilder {
	s.def.Edges = nil
	return s
}

// Add continues with another state on the same builder.
func (s *StateBuilder) Add(id string) *StateBuilder {
	return s.builder.Add(id)
}

// Definition returns the definition collected so far.
func (s *StateBuilder) Definition() domain.StateDefinition {
	return s.def.Clone()
}
