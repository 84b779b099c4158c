package llmfsm

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/llm"
	"github.com/aretw0/llmfsm/pkg/machine"
	"github.com/aretw0/llmfsm/pkg/prompt"
	"github.com/aretw0/llmfsm/pkg/registry"
	"github.com/aretw0/llmfsm/pkg/resolver"
)

// Agent is the high-level entry point of the library.
// It pairs a finalized registry with a model client and hands out machines,
// one per conversation.
type Agent struct {
	Name string

	reg          *registry.Registry
	client       llm.Client
	initial      string
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	composer     *prompt.Composer
	maxCascade   int
	resolverOpts []resolver.Option
	context      map[string]any
}

// Option defines a functional option for configuring the Agent.
type Option func(*Agent)

// WithName sets the agent name recorded on snapshots.
func WithName(name string) Option {
	return func(a *Agent) {
		a.Name = name
	}
}

// WithInitialState sets the state new machines start in.
func WithInitialState(id string) Option {
	return func(a *Agent) {
		a.initial = id
	}
}

// WithLifecycleHooks registers observability hooks on every machine.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(a *Agent) {
		a.hooks = domain.Merge(a.hooks, hooks)
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithComposer replaces the default prompt composer.
func WithComposer(c *prompt.Composer) Option {
	return func(a *Agent) {
		a.composer = c
	}
}

// WithMaxCascade bounds reuse-payload override chains.
func WithMaxCascade(n int) Option {
	return func(a *Agent) {
		a.maxCascade = n
	}
}

// WithResolverOptions configures the transition resolver (retries, fallback, model).
func WithResolverOptions(opts ...resolver.Option) Option {
	return func(a *Agent) {
		a.resolverOpts = append(a.resolverOpts, opts...)
	}
}

// WithInitialContext seeds the context of every new machine.
func WithInitialContext(values map[string]any) Option {
	return func(a *Agent) {
		a.context = values
	}
}

// New creates an agent. The registry must be finalized.
func New(reg *registry.Registry, client llm.Client, opts ...Option) (*Agent, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if !reg.Finalized() {
		return nil, registry.ErrNotFinalized
	}
	if client == nil {
		return nil, fmt.Errorf("model client is required")
	}
	a := &Agent{
		reg:        reg,
		client:     client,
		maxCascade: domain.DefaultMaxCascade,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.initial == "" {
		if defs := reg.Definitions(); len(defs) > 0 {
			a.initial = defs[0].ID
		}
	}
	if !reg.Has(a.initial) {
		return nil, fmt.Errorf("%w: initial state %q", domain.ErrUnknownState, a.initial)
	}
	return a, nil
}

// Registry returns the agent's state registry.
func (a *Agent) Registry() *registry.Registry {
	return a.reg
}

// Initial returns the default initial state.
func (a *Agent) Initial() string {
	return a.initial
}

// Terminal returns the terminal state id.
func (a *Agent) Terminal() string {
	return a.reg.Terminal()
}

// Inspect returns every state definition in registration order.
func (a *Agent) Inspect() []domain.StateDefinition {
	return a.reg.Definitions()
}

// NewMachine starts a conversation. An empty initial uses the agent default.
// Extra options are applied after the agent's own.
func (a *Agent) NewMachine(initial string, opts ...machine.Option) (*machine.Machine, error) {
	if initial == "" {
		initial = a.initial
	}
	base := []machine.Option{
		machine.WithAgent(a.Name),
		machine.WithHooks(a.hooks),
		machine.WithMaxCascade(a.maxCascade),
		machine.WithResolverOptions(a.resolverOpts...),
	}
	if a.logger != nil {
		base = append(base, machine.WithLogger(a.logger))
	}
	if a.composer != nil {
		base = append(base, machine.WithComposer(a.composer))
	}
	if a.context != nil {
		base = append(base, machine.WithInitialContext(a.context))
	}
	return machine.New(a.reg, a.client, initial, a.reg.Terminal(), append(base, opts...)...)
}

// Resume rebuilds a machine from a snapshot.
func (a *Agent) Resume(snap domain.Snapshot, opts ...machine.Option) (*machine.Machine, error) {
	initial := snap.Initial
	if initial == "" || !a.reg.Has(initial) {
		initial = a.initial
	}
	m, err := a.NewMachine(initial, opts...)
	if err != nil {
		return nil, err
	}
	if err := m.Restore(snap); err != nil {
		return nil, err
	}
	return m, nil
}
