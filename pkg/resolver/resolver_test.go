package resolver_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/llmfsm/pkg/adapters/scripted"
	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/llm"
	"github.com/aretw0/llmfsm/pkg/prompt"
	"github.com/aretw0/llmfsm/pkg/resolver"
	"github.com/aretw0/llmfsm/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateA() domain.StateDefinition {
	return domain.StateDefinition{
		ID:     "A",
		Prompt: "Route the user.",
		Edges:  []domain.Edge{{To: "B"}, {To: "C"}},
		Schema: schema.DefaultResponse(),
	}
}

func compose(t *testing.T, def domain.StateDefinition) prompt.Prompt {
	t.Helper()
	p, err := prompt.NewComposer().Compose(context.Background(), def, prompt.Input{Text: "hello"})
	require.NoError(t, err)
	return p
}

func reply(transition, content string) scripted.Step {
	return scripted.Reply(map[string]any{"transition": transition, "content": content})
}

func TestResolve_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		proposed string
		next     string
		will     bool
	}{
		{"declared edge", "B", "B", true},
		{"no-op stays", domain.NoOp, "A", false},
		{"self id stays", "A", "A", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := scripted.New([]scripted.Step{reply(tt.proposed, "ok")})
			r := resolver.New(client)
			def := stateA()

			res, err := r.Resolve(context.Background(), def, compose(t, def))
			require.NoError(t, err)
			assert.Equal(t, tt.proposed, res.Proposed)
			assert.Equal(t, tt.next, res.Next)
			assert.Equal(t, tt.will, res.WillTransition)
			assert.Equal(t, "ok", res.Payload.Content())
			assert.Equal(t, 1, res.Attempts)
		})
	}
}

func TestResolve_RequestCarriesSchemaEnum(t *testing.T) {
	client := scripted.New([]scripted.Step{reply("B", "ok")})
	def := stateA()
	_, err := resolver.New(client, resolver.WithModel("m-1")).Resolve(context.Background(), def, compose(t, def))
	require.NoError(t, err)

	req := client.Requests()[0]
	assert.Equal(t, "m-1", req.Model)
	assert.Equal(t, "DefaultResponse", req.SchemaName)
	props := req.Schema["properties"].(map[string]any)
	transition := props[schema.TransitionField].(map[string]any)
	assert.Equal(t, []any{domain.NoOp, "A", "B", "C"}, transition["enum"])
}

func TestResolve_UnknownTransition(t *testing.T) {
	def := stateA()

	t.Run("error by default", func(t *testing.T) {
		client := scripted.New([]scripted.Step{reply("D", "x")})
		_, err := resolver.New(client).Resolve(context.Background(), def, compose(t, def))

		var ue *domain.UnknownTransitionError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, "D", ue.Proposed)
		assert.Equal(t, []string{"B", "C"}, ue.Allowed)
		assert.ErrorIs(t, err, domain.ErrUnknownTransition)
		assert.Equal(t, 1, client.Calls())
	})

	t.Run("fallback", func(t *testing.T) {
		client := scripted.New([]scripted.Step{reply("D", "x")})
		res, err := resolver.New(client, resolver.WithFallback("C")).Resolve(context.Background(), def, compose(t, def))
		require.NoError(t, err)
		assert.Equal(t, "C", res.Next)
		assert.True(t, res.Fallback)
		assert.True(t, res.WillTransition)
	})

	t.Run("stay", func(t *testing.T) {
		client := scripted.New([]scripted.Step{reply("D", "x")})
		res, err := resolver.New(client, resolver.WithUnknownAsStay()).Resolve(context.Background(), def, compose(t, def))
		require.NoError(t, err)
		assert.Equal(t, "A", res.Next)
		assert.False(t, res.WillTransition)
	})
}

func TestResolve_RetriesInvalidReply(t *testing.T) {
	client := scripted.New([]scripted.Step{
		scripted.Text("I think we should go to B"),
		scripted.Reply(map[string]any{"transition": "B"}),
		reply("B", "fixed"),
	})
	var retries []int
	r := resolver.New(client, resolver.WithRetryHook(func(_ context.Context, stateID string, attempt int, _ error) {
		assert.Equal(t, "A", stateID)
		retries = append(retries, attempt)
	}))
	def := stateA()

	res, err := r.Resolve(context.Background(), def, compose(t, def))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "fixed", res.Payload.Content())
	assert.Equal(t, []int{1, 2}, retries)

	reqs := client.Requests()
	require.Len(t, reqs, 3)
	assert.Len(t, reqs[0].Messages, 2)
	require.Len(t, reqs[2].Messages, 6)
	last := reqs[2].Messages[5]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.True(t, strings.Contains(last.Content, "could not be accepted"))
	assert.Equal(t, llm.RoleAssistant, reqs[2].Messages[4].Role)
}

func TestResolve_SchemaValidationError(t *testing.T) {
	client := scripted.New([]scripted.Step{
		scripted.Text("nope"),
		scripted.Text(`{"transition": "B", "content": 7}`),
	})
	def := stateA()
	_, err := resolver.New(client, resolver.WithMaxRetries(1)).Resolve(context.Background(), def, compose(t, def))

	var se *domain.SchemaValidationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "A", se.StateID)
	assert.Equal(t, 2, se.Attempts)
	assert.Equal(t, `{"transition": "B", "content": 7}`, se.Raw)
	assert.Equal(t, 2, client.Calls())
}

func TestResolve_NoRetries(t *testing.T) {
	client := scripted.New([]scripted.Step{scripted.Text("{}")})
	def := stateA()
	_, err := resolver.New(client, resolver.WithMaxRetries(0)).Resolve(context.Background(), def, compose(t, def))
	assert.ErrorIs(t, err, domain.ErrSchemaValidation)
	assert.Equal(t, 1, client.Calls())
}

func TestResolve_ClientError(t *testing.T) {
	def := stateA()

	client := scripted.New([]scripted.Step{scripted.Fail(llm.NewError(domain.ClientAuth, errors.New("bad key")))})
	_, err := resolver.New(client).Resolve(context.Background(), def, compose(t, def))
	var ce *domain.ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.ClientAuth, ce.Kind)
	assert.Equal(t, "A", ce.StateID)
	assert.False(t, ce.Temporary())

	client = scripted.New([]scripted.Step{scripted.Fail(context.DeadlineExceeded)})
	_, err = resolver.New(client).Resolve(context.Background(), def, compose(t, def))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.ClientTimeout, ce.Kind)
}

func TestResolve_ParsedCompletion(t *testing.T) {
	client := llm.ClientFunc(func(context.Context, llm.Request) (llm.Completion, error) {
		return llm.Completion{
			Text:   "ignored prose",
			Parsed: []byte(`{"transition":"C","content":"structured"}`),
		}, nil
	})
	def := stateA()
	res, err := resolver.New(client).Resolve(context.Background(), def, compose(t, def))
	require.NoError(t, err)
	assert.Equal(t, "C", res.Next)
	assert.Equal(t, "structured", res.Payload.Content())
}

func TestResolve_CustomSchemaOptionalField(t *testing.T) {
	def := domain.StateDefinition{
		ID:    "show_content",
		Edges: []domain.Edge{{To: "quiz"}},
		Schema: schema.New("Lesson",
			schema.Required("lesson", schema.String(), "lesson text"),
			schema.Optional("hint", schema.String(), "optional hint"),
		),
	}
	client := scripted.New([]scripted.Step{
		scripted.Reply(map[string]any{"transition": "quiz", "lesson": "L1", "hint": nil}),
	})
	res, err := resolver.New(client).Resolve(context.Background(), def, compose(t, def))
	require.NoError(t, err)
	assert.Equal(t, "L1", res.Payload.String("lesson"))
	assert.Equal(t, "quiz", res.Next)
}
