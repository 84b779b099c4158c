// Package prompt turns a state definition and the conversation context into
// the messages sent to the model.
package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"text/template"

	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/llm"
)

// Interpolator renders a template string with data.
type Interpolator func(ctx context.Context, text string, data map[string]any) (string, error)

// TokenEstimator counts tokens for a piece of text.
type TokenEstimator func(text string) int

// Input is what the composer needs besides the state definition.
type Input struct {
	// Text is the user input of this turn.
	Text string
	// Forwarded is synthetic input carried over from an override in the previous turn.
	Forwarded string
	// Context is a read-only view of the context store.
	Context map[string]any
}

// Prompt is the composed request content.
type Prompt struct {
	StateID string
	// System holds the state prompt followed by the transition block.
	System string
	// User holds the user input, prefixed with any forwarded input.
	User string
	// Transitions is the enum the reply's transition field must use.
	Transitions []string
	Tokens      int
}

// Messages returns the prompt as chat messages.
func (p Prompt) Messages() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: p.System},
		{Role: llm.RoleUser, Content: p.User},
	}
}

// Text returns the full prompt as a single string, for auditing.
func (p Prompt) Text() string {
	return p.System + "\n\n" + p.User
}

// Composer builds prompts. It has no side effects.
type Composer struct {
	interpolator Interpolator
	estimator    TokenEstimator
}

// Option configures the Composer.
type Option func(*Composer)

// WithInterpolator replaces the default text/template interpolator.
func WithInterpolator(i Interpolator) Option {
	return func(c *Composer) {
		c.interpolator = i
	}
}

// WithEstimator records a token estimate on every prompt.
func WithEstimator(e TokenEstimator) Option {
	return func(c *Composer) {
		c.estimator = e
	}
}

// NewComposer creates a composer.
func NewComposer(opts ...Option) *Composer {
	c := &Composer{interpolator: DefaultInterpolator}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose renders the prompt for def.
// Static prompts are interpolated with the context values plus user_input and sys;
// a Preprocess function is called instead and its result used verbatim.
func (c *Composer) Compose(ctx context.Context, def domain.StateDefinition, in Input) (Prompt, error) {
	var body string
	var err error
	if def.Preprocess != nil {
		body, err = def.Preprocess(in.Text, maps.Clone(in.Context))
	} else {
		body, err = c.interpolator(ctx, def.Prompt, templateData(def.ID, in))
	}
	if err != nil {
		return Prompt{}, &domain.TemplateError{StateID: def.ID, Err: err}
	}

	transitions := Transitions(def)
	block, err := transitionBlock(def, transitions)
	if err != nil {
		return Prompt{}, &domain.TemplateError{StateID: def.ID, Err: err}
	}

	p := Prompt{
		StateID:     def.ID,
		System:      strings.TrimSpace(body) + "\n\n" + block,
		User:        userMessage(in),
		Transitions: transitions,
	}
	if c.estimator != nil {
		p.Tokens = c.estimator(p.Text())
	}
	return p, nil
}

// Transitions returns the legal values of the transition field for def:
// the no-op sentinel, the state's own id, then the declared targets.
func Transitions(def domain.StateDefinition) []string {
	out := []string{domain.NoOp, def.ID}
	seen := map[string]bool{domain.NoOp: true, def.ID: true}
	for _, e := range def.Edges {
		if !seen[e.To] {
			seen[e.To] = true
			out = append(out, e.To)
		}
	}
	return out
}

// DefaultInterpolator renders text as a Go text/template. Missing keys render empty.
func DefaultInterpolator(_ context.Context, text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("prompt").Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return strings.ReplaceAll(sb.String(), "<no value>", ""), nil
}

func templateData(stateID string, in Input) map[string]any {
	data := make(map[string]any, len(in.Context)+2)
	for k, v := range in.Context {
		data[k] = v
	}
	data["user_input"] = in.Text
	data["sys"] = map[string]any{
		"state":     stateID,
		"input":     in.Text,
		"forwarded": in.Forwarded,
	}
	return data
}

type edgeJSON struct {
	Target    string `json:"target"`
	Condition string `json:"condition,omitempty"`
}

type transitionsJSON struct {
	CurrentState string     `json:"current_state"`
	Stay         string     `json:"stay"`
	Transitions  []edgeJSON `json:"transitions"`
}

func transitionBlock(def domain.StateDefinition, allowed []string) (string, error) {
	edges := make([]edgeJSON, 0, len(def.Edges))
	for _, e := range def.Edges {
		edges = append(edges, edgeJSON{Target: e.To, Condition: e.Condition})
	}
	raw, err := json.MarshalIndent(transitionsJSON{
		CurrentState: def.ID,
		Stay:         domain.NoOp,
		Transitions:  edges,
	}, "", "  ")
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("## Transitions\n")
	fmt.Fprintf(&sb, "You are in state %q. Reply with a JSON object that matches the required schema.\n", def.ID)
	fmt.Fprintf(&sb, "Set the %q field to one of: %s.\n", "transition", strings.Join(quoteAll(allowed), ", "))
	fmt.Fprintf(&sb, "Use %q to stay in the current state. Only move when a condition below applies.\n", domain.NoOp)
	sb.WriteString("```json\n")
	sb.Write(raw)
	sb.WriteString("\n```")
	return sb.String(), nil
}

func userMessage(in Input) string {
	if in.Forwarded == "" {
		return in.Text
	}
	if in.Text == "" {
		return in.Forwarded
	}
	return fmt.Sprintf("[system note] %s\n\n%s", in.Forwarded, in.Text)
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
