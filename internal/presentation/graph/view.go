package graph

import (
	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/schema"
)

// View is the serializable shape of an agent's graph.
type View struct {
	Initial  string      `json:"initial"`
	Terminal string      `json:"terminal"`
	States   []StateView `json:"states"`
}

// StateView describes one state without its prompt or handler code.
type StateView struct {
	ID          string             `json:"id"`
	Description string             `json:"description,omitempty"`
	Edges       []domain.Edge      `json:"edges,omitempty"`
	Schema      *schema.Descriptor `json:"schema,omitempty"`
	Handler     bool               `json:"handler"`
	Dynamic     bool               `json:"dynamic_prompt,omitempty"`
}

// Describe builds the View of defs.
func Describe(defs []domain.StateDefinition, initial, terminal string) View {
	v := View{
		Initial:  initial,
		Terminal: terminal,
		States:   make([]StateView, 0, len(defs)),
	}
	for _, d := range defs {
		v.States = append(v.States, StateView{
			ID:          d.ID,
			Description: d.Description,
			Edges:       d.Edges,
			Schema:      d.Schema,
			Handler:     d.Handler != nil,
			Dynamic:     d.Preprocess != nil,
		})
	}
	return v
}
