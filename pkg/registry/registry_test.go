package registry_test

import (
	"errors"
	"testing"

	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/registry"
	"github.com/aretw0/llmfsm/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndFinalize(t *testing.T) {
	r := registry.New("B")
	require.NoError(t, r.Register(domain.StateDefinition{
		ID:     "A",
		Prompt: "ask",
		Edges:  []domain.Edge{{To: "B", Condition: "ready"}},
	}))
	require.NoError(t, r.Register(domain.StateDefinition{ID: "B", Prompt: "bye"}))
	require.NoError(t, r.Finalize())

	assert.True(t, r.Finalized())
	assert.Equal(t, []string{"A", "B"}, r.IDs())
	assert.Equal(t, "B", r.Terminal())

	a, ok := r.Get("A")
	require.True(t, ok)
	assert.Equal(t, []string{"B"}, a.Targets())
	assert.NotNil(t, a.Schema, "nil schema defaults to DefaultResponse")
	_, hasContent := a.Schema.Field(schema.ContentField)
	assert.True(t, hasContent)
}

func TestRegistry_Duplicate(t *testing.T) {
	r := registry.New("A")
	require.NoError(t, r.Register(domain.StateDefinition{ID: "A"}))

	err := r.Register(domain.StateDefinition{ID: "A"})
	var dup *domain.DuplicateStateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "A", dup.ID)
}

func TestRegistry_DanglingEdge(t *testing.T) {
	tests := []struct {
		name  string
		edges []domain.Edge
		want  []string
	}{
		{"single", []domain.Edge{{To: "X"}}, []string{"X"}},
		{"several", []domain.Edge{{To: "END"}, {To: "X"}, {To: "Y"}}, []string{"X", "Y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := registry.New("END")
			require.NoError(t, r.Register(domain.StateDefinition{ID: "A", Edges: tt.edges}))
			require.NoError(t, r.Register(domain.StateDefinition{ID: "END"}))

			err := r.Finalize()
			require.ErrorIs(t, err, domain.ErrDanglingEdge)
			assert.False(t, r.Finalized())

			var got []string
			for _, e := range unwrapAll(err) {
				var de *domain.DanglingEdgeError
				if errors.As(e, &de) {
					got = append(got, de.To)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_NoTerminal(t *testing.T) {
	r := registry.New("END")
	require.NoError(t, r.Register(domain.StateDefinition{ID: "A"}))

	err := r.Finalize()
	var nt *domain.NoTerminalStateError
	require.ErrorAs(t, err, &nt)
	assert.Equal(t, "END", nt.ID)
}

func TestRegistry_ImmutableAfterFinalize(t *testing.T) {
	r := registry.New("A")
	require.NoError(t, r.Register(domain.StateDefinition{ID: "A"}))
	require.NoError(t, r.Finalize())

	assert.ErrorIs(t, r.Register(domain.StateDefinition{ID: "B"}), registry.ErrFinalized)
	assert.NoError(t, r.Finalize(), "Finalize is idempotent")
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := registry.New("B")
	edges := []domain.Edge{{To: "B"}}
	require.NoError(t, r.Register(domain.StateDefinition{ID: "A", Edges: edges}))
	require.NoError(t, r.Register(domain.StateDefinition{ID: "B"}))

	edges[0].To = "mutated"
	a, _ := r.Get("A")
	a.Edges[0].To = "also-mutated"

	again, _ := r.Get("A")
	assert.Equal(t, "B", again.Edges[0].To)
}

func TestRegistry_RejectsInvalidDefinitions(t *testing.T) {
	r := registry.New("END")

	assert.Error(t, r.Register(domain.StateDefinition{}))
	assert.Error(t, r.Register(domain.StateDefinition{ID: domain.NoOp}))
	assert.Error(t, r.Register(domain.StateDefinition{ID: "A", Edges: []domain.Edge{{To: ""}}}))
	assert.Error(t, r.Register(domain.StateDefinition{
		ID:     "B",
		Schema: schema.New("bad", schema.Required(schema.TransitionField, schema.String(), "")),
	}))
}

func unwrapAll(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
