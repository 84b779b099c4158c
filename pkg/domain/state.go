package domain

import (
	"context"

	"github.com/aretw0/llmfsm/pkg/schema"
)

// Edge is a declared transition out of a state.
// Condition is descriptive text for the model; the engine never evaluates it.
type Edge struct {
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

// PromptFunc builds the prompt for a state from the latest user input and a
// read-only view of the context. Its result is sent verbatim.
type PromptFunc func(input string, vars map[string]any) (string, error)

// Handler runs after the model reply has been resolved.
// A nil Outcome means "reply with the model's content".
type Handler func(ctx context.Context, turn TurnScope, payload schema.Payload, willTransition bool) (Outcome, error)

// TurnScope is the view of the running turn a handler receives.
// Context writes are staged and only become visible once the turn commits.
type TurnScope interface {
	// Input is the user input of this turn.
	Input() string
	// CurrentState is the state whose handler is running.
	CurrentState() string
	// Proposed is the literal transition value chosen by the model.
	Proposed() string
	// NextState is where the machine will go if nothing overrides it.
	NextState() string
	// SetNextState redirects the turn to a registered state.
	SetNextState(id string) error

	GetContext(key string) (any, bool)
	SetContext(key string, value any) error
	DeleteContext(key string)

	// History returns the committed turns so far.
	History() []TurnRecord
}

// StateDefinition describes one state of the machine.
type StateDefinition struct {
	ID          string
	Description string

	// Prompt is a text/template rendered with the context values.
	Prompt string
	// Preprocess, when set, produces the prompt instead of Prompt.
	Preprocess PromptFunc

	// Schema is the expected reply shape. Nil means schema.DefaultResponse.
	Schema *schema.Descriptor

	// Edges are ordered; the order is kept in prompts and graphs.
	Edges []Edge

	Handler Handler
}

// Targets returns the ids of the declared edges, in order.
func (d StateDefinition) Targets() []string {
	out := make([]string, len(d.Edges))
	for i, e := range d.Edges {
		out[i] = e.To
	}
	return out
}

// HasEdge reports whether id is a declared target.
func (d StateDefinition) HasEdge(id string) bool {
	for _, e := range d.Edges {
		if e.To == id {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with d.
func (d StateDefinition) Clone() StateDefinition {
	d.Edges = append([]Edge(nil), d.Edges...)
	return d
}
