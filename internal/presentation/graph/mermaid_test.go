package graph_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/llmfsm/internal/presentation/graph"
	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/schema"
)

func noop(context.Context, domain.TurnScope, schema.Payload, bool) (domain.Outcome, error) {
	return nil, nil
}

func TestMermaid(t *testing.T) {
	tests := []struct {
		name     string
		defs     []domain.StateDefinition
		contains []string
	}{
		{
			name: "Shapes",
			defs: []domain.StateDefinition{
				{ID: "START"},
				{ID: "WORK", Handler: noop},
				{ID: "PLAIN"},
				{ID: "END"},
			},
			contains: []string{
				`START(("START"))`,
				`WORK[["WORK"]]`,
				`PLAIN["PLAIN"]`,
				`END(["END"])`,
			},
		},
		{
			name: "ID Sanitization",
			defs: []domain.StateDefinition{
				{ID: "show-content"},
				{ID: "a.b/c"},
			},
			contains: []string{
				`show_content["show-content"]`,
				`a_b_c["a.b/c"]`,
			},
		},
		{
			name: "Edges",
			defs: []domain.StateDefinition{
				{ID: "START", Edges: []domain.Edge{
					{To: "END", Condition: `user says "bye"`},
					{To: "OTHER"},
				}},
			},
			contains: []string{
				`START -- "user says 'bye'" --> END`,
				`START --> OTHER`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.Mermaid(tt.defs, "START", "END", nil)
			assert.True(t, strings.HasPrefix(got, "graph TD\n"))
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			assert.NotContains(t, got, "classDef")
		})
	}
}

func TestMermaid_Overlay(t *testing.T) {
	defs := []domain.StateDefinition{
		{ID: "START", Edges: []domain.Edge{{To: "MID"}}},
		{ID: "MID", Edges: []domain.Edge{{To: "END"}}},
		{ID: "END"},
	}
	history := []domain.TurnRecord{
		{PriorState: "START", NextState: "MID"},
		{PriorState: "START", NextState: "MID", Cascade: []string{"MID"}},
	}

	got := graph.Mermaid(defs, "START", "END", graph.OverlayFromHistory("END", history))

	assert.Contains(t, got, "classDef visited")
	assert.Equal(t, 1, strings.Count(got, "class START visited;"))
	assert.Contains(t, got, "class MID visited;")
	assert.Contains(t, got, "class END current;")
}

func TestDescribe(t *testing.T) {
	defs := []domain.StateDefinition{
		{ID: "START", Description: "greets", Edges: []domain.Edge{{To: "END", Condition: "done"}}, Handler: noop},
		{ID: "END"},
	}

	v := graph.Describe(defs, "START", "END")

	assert.Equal(t, "START", v.Initial)
	assert.Equal(t, "END", v.Terminal)
	if assert.Len(t, v.States, 2) {
		assert.True(t, v.States[0].Handler)
		assert.Equal(t, "greets", v.States[0].Description)
		assert.Equal(t, []domain.Edge{{To: "END", Condition: "done"}}, v.States[0].Edges)
		assert.False(t, v.States[1].Handler)
	}
}
