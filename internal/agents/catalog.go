// Package agents holds the bundled example agents.
//
// Every agent keeps its conversation state in the machine's context store,
// so one registry serves any number of concurrent sessions.
package agents

import (
	"fmt"
	"slices"
	"time"

	"github.com/aretw0/llmfsm"
	"github.com/aretw0/llmfsm/internal/agents/content"
	"github.com/aretw0/llmfsm/pkg/llm"
	"github.com/aretw0/llmfsm/pkg/registry"
)

// Deps are the services agents may use.
type Deps struct {
	Content *content.Loader
	Now     func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Content == nil {
		d.Content = content.New("")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Spec describes one bundled agent.
type Spec struct {
	Name        string
	Description string
	Initial     string
	// Greeting is printed by interactive hosts before the first turn.
	Greeting string
	Build    func(Deps) (*registry.Registry, error)
	// Context seeds new sessions. It may be nil.
	Context func(Deps) (map[string]any, error)
}

// Agent builds the registry and wraps it with client.
func (s Spec) Agent(client llm.Client, deps Deps, opts ...llmfsm.Option) (*llmfsm.Agent, error) {
	deps = deps.withDefaults()
	reg, err := s.Build(deps)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", s.Name, err)
	}
	base := []llmfsm.Option{llmfsm.WithName(s.Name), llmfsm.WithInitialState(s.Initial)}
	if s.Context != nil {
		values, err := s.Context(deps)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", s.Name, err)
		}
		base = append(base, llmfsm.WithInitialContext(values))
	}
	return llmfsm.New(reg, client, append(base, opts...)...)
}

// Catalog lists the bundled agents in display order.
func Catalog() []Spec {
	return []Spec{
		{
			Name:        "switch",
			Description: "Turns a light on and off.",
			Initial:     "START",
			Greeting:    "Hello! I am your light switch assistant.",
			Build:       func(Deps) (*registry.Registry, error) { return Switch() },
			Context:     func(Deps) (map[string]any, error) { return map[string]any{LightKey: "OFF"}, nil },
		},
		{
			Name:        "support",
			Description: "Identifies a customer by name and phone number.",
			Initial:     "START",
			Greeting:    "Hello! I am your customer service assistant. Say something to get started.",
			Build:       func(Deps) (*registry.Registry, error) { return Support() },
		},
		{
			Name:        "medical",
			Description: "Triage with emergency escalation and a final care plan.",
			Initial:     "INITIAL_TRIAGE",
			Greeting:    "Medical triage system initialized. Please describe your medical concern.",
			Build:       Medical,
		},
		{
			Name:        "tutor",
			Description: "Calculus tutor with content, examples and quizzes.",
			Initial:     "show_content",
			Greeting:    "Welcome to the learning session!",
			Build:       Tutor,
			Context:     tutorContext,
		},
		{
			Name:        "tutor-files",
			Description: "Calculus tutor whose prompts are rebuilt from the content files every turn.",
			Initial:     "show_content",
			Greeting:    "Welcome to the learning session!",
			Build:       TutorFiles,
			Context:     func(Deps) (map[string]any, error) { return map[string]any{ContentIDKey: 1}, nil },
		},
	}
}

// Lookup finds an agent by name.
func Lookup(name string) (Spec, bool) {
	specs := Catalog()
	i := slices.IndexFunc(specs, func(s Spec) bool { return s.Name == name })
	if i < 0 {
		return Spec{}, false
	}
	return specs[i], true
}

// Names returns the agent names.
func Names() []string {
	var out []string
	for _, s := range Catalog() {
		out = append(out, s.Name)
	}
	return out
}
