// Package machine runs conversations over a finalized registry.
//
// A Machine owns the current state, the context store and the audit trail of
// one conversation. Every turn is atomic: either it commits (context changes,
// new state and a TurnRecord become visible together) or nothing changes.
package machine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/llmfsm/internal/logging"
	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/llm"
	"github.com/aretw0/llmfsm/pkg/prompt"
	"github.com/aretw0/llmfsm/pkg/registry"
	"github.com/aretw0/llmfsm/pkg/resolver"
)

// Machine is one running conversation.
type Machine struct {
	id       string
	agent    string
	reg      *registry.Registry
	composer *prompt.Composer
	resolver *resolver.Resolver

	logger       *slog.Logger
	hooks        domain.LifecycleHooks
	tracer       trace.Tracer
	now          func() time.Time
	maxCascade   int
	resolverOpts []resolver.Option
	initialCtx   map[string]any

	initial  string
	terminal string

	running atomic.Bool

	mu        sync.RWMutex
	current   string
	completed bool
	store     *domain.ContextStore
	history   []domain.TurnRecord
	pending   string
	active    *Turn
}

// Option configures the Machine.
type Option func(*Machine)

// WithLogger configures a logger for the Machine.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithHooks registers lifecycle callbacks. Multiple calls are merged.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Machine) {
		m.hooks = domain.Merge(m.hooks, hooks)
	}
}

// WithComposer replaces the default prompt composer.
func WithComposer(c *prompt.Composer) Option {
	return func(m *Machine) {
		m.composer = c
	}
}

// WithResolver replaces the resolver built from the client.
// Retry hooks configured on r are not connected to the machine's lifecycle hooks.
func WithResolver(r *resolver.Resolver) Option {
	return func(m *Machine) {
		m.resolver = r
	}
}

// WithResolverOptions configures the resolver built around the model client.
func WithResolverOptions(opts ...resolver.Option) Option {
	return func(m *Machine) {
		m.resolverOpts = append(m.resolverOpts, opts...)
	}
}

// WithMaxCascade bounds how many reuse-payload overrides may chain in one turn.
func WithMaxCascade(n int) Option {
	return func(m *Machine) {
		m.maxCascade = max(n, 0)
	}
}

// WithID sets the machine id. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(m *Machine) {
		m.id = id
	}
}

// WithAgent records the name of the agent this machine runs.
func WithAgent(name string) Option {
	return func(m *Machine) {
		m.agent = name
	}
}

// WithInitialContext seeds the context store. New fails if a value cannot
// be encoded as JSON.
func WithInitialContext(values map[string]any) Option {
	return func(m *Machine) {
		m.initialCtx = values
	}
}

// WithTracer sets the OpenTelemetry tracer. The global provider is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(m *Machine) {
		m.tracer = t
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// New creates a machine positioned at initial.
// An empty terminal means the registry's terminal id.
func New(reg *registry.Registry, client llm.Client, initial, terminal string, opts ...Option) (*Machine, error) {
	if !reg.Finalized() {
		return nil, registry.ErrNotFinalized
	}
	if terminal == "" {
		terminal = reg.Terminal()
	}
	if !reg.Has(terminal) {
		return nil, &domain.NoTerminalStateError{ID: terminal}
	}
	if !reg.Has(initial) {
		return nil, fmt.Errorf("%w: initial state %q", domain.ErrUnknownState, initial)
	}

	m := &Machine{
		reg:        reg,
		composer:   prompt.NewComposer(),
		logger:     logging.NewNop(),
		now:        time.Now,
		maxCascade: domain.DefaultMaxCascade,
		initial:    initial,
		terminal:   terminal,
		current:    initial,
		completed:  initial == terminal,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.id == "" {
		m.id = uuid.NewString()
	}
	store, err := domain.LoadContextStore(m.initialCtx)
	if err != nil {
		return nil, fmt.Errorf("initial context: %w", err)
	}
	m.store = store
	if m.tracer == nil {
		m.tracer = otel.Tracer("llmfsm/machine")
	}
	if m.resolver == nil {
		if client == nil {
			return nil, fmt.Errorf("machine: nil model client")
		}
		base := []resolver.Option{
			resolver.WithLogger(m.logger),
			resolver.WithRetryHook(m.emitRetry),
		}
		m.resolver = resolver.New(client, append(base, m.resolverOpts...)...)
	}
	if fb := m.resolver.Fallback(); fb != "" && !reg.Has(fb) {
		return nil, fmt.Errorf("%w: fallback state %q", domain.ErrUnknownState, fb)
	}
	return m, nil
}

// ID returns the machine id.
func (m *Machine) ID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id
}

// Agent returns the agent name, if one was set.
func (m *Machine) Agent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agent
}

// Registry returns the registry the machine runs on.
func (m *Machine) Registry() *registry.Registry { return m.reg }

// Terminal returns the terminal state id.
func (m *Machine) Terminal() string { return m.terminal }

// CurrentState returns the committed state id.
func (m *Machine) CurrentState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsCompleted reports whether the machine reached its terminal state.
func (m *Machine) IsCompleted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.completed
}

// GetContext returns a copy of a committed context value.
// Handlers should read through their TurnScope to see staged writes.
func (m *Machine) GetContext(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.GetCopy(key)
}

// SetContext writes to the running turn's staged context.
// Outside a turn it fails with domain.ErrOutsideTurn.
func (m *Machine) SetContext(key string, value any) error {
	m.mu.RLock()
	turn := m.active
	m.mu.RUnlock()
	if turn == nil {
		return domain.ErrOutsideTurn
	}
	return turn.SetContext(key, value)
}

// Context returns a copy of the committed context.
func (m *Machine) Context() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Snapshot()
}

// History returns a copy of the committed turn records.
func (m *Machine) History() []domain.TurnRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneHistory(m.history)
}

func cloneHistory(recs []domain.TurnRecord) []domain.TurnRecord {
	if recs == nil {
		return nil
	}
	out := make([]domain.TurnRecord, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}

// PendingInput returns the override input that will be forwarded to the next turn.
func (m *Machine) PendingInput() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pending
}

// SetNextState moves the machine to id between turns, without a model call
// and without appending a record. It is meant for host-level commands such as
// quitting a session.
func (m *Machine) SetNextState(id string) error {
	if !m.reg.Has(id) {
		return fmt.Errorf("%w: %q", domain.ErrUnknownState, id)
	}
	if !m.running.CompareAndSwap(false, true) {
		return domain.ErrTurnInProgress
	}
	defer m.running.Store(false)

	m.mu.Lock()
	from := m.current
	m.current = id
	m.completed = id == m.terminal
	m.pending = ""
	m.mu.Unlock()

	m.logger.Info("State forced", "machine", m.id, "from", from, "to", id)
	return nil
}

func (m *Machine) base(t domain.EventType, stateID string) domain.EventBase {
	return domain.EventBase{
		Timestamp: m.now(),
		Type:      t,
		MachineID: m.id,
		StateID:   stateID,
	}
}

func (m *Machine) emitRetry(ctx context.Context, stateID string, attempt int, err error) {
	if m.hooks.OnRetry != nil {
		m.hooks.OnRetry(ctx, &domain.RetryEvent{
			EventBase: m.base(domain.EventRetry, stateID),
			Attempt:   attempt,
			Err:       err,
		})
	}
}
