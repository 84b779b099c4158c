package machine

import (
	"fmt"
	"sync"

	"github.com/aretw0/llmfsm/pkg/domain"
)

// Turn is the handler's view of a running turn. It implements domain.TurnScope.
// Context writes go to a staged copy of the store that only replaces the
// committed one when the turn succeeds.
type Turn struct {
	m        *Machine
	input    string
	proposed string
	history  []domain.TurnRecord

	mu     sync.Mutex
	state  string
	next   string
	staged *domain.ContextStore
	closed bool
}

var _ domain.TurnScope = (*Turn)(nil)

// Input is the user input of this turn.
func (t *Turn) Input() string { return t.input }

// Proposed is the literal transition value chosen by the model.
func (t *Turn) Proposed() string { return t.proposed }

// CurrentState is the state whose handler is running. It changes during a cascade.
func (t *Turn) CurrentState() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// NextState is where the turn will commit unless a handler redirects it.
func (t *Turn) NextState() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

// SetNextState redirects the turn to id, which must be registered.
func (t *Turn) SetNextState(id string) error {
	if !t.m.reg.Has(id) {
		return fmt.Errorf("%w: %q", domain.ErrUnknownState, id)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.ErrOutsideTurn
	}
	t.next = id
	return nil
}

// GetContext reads the staged context.
func (t *Turn) GetContext(key string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.staged.Get(key)
}

// SetContext stages a write. The value must be JSON-serializable.
func (t *Turn) SetContext(key string, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.ErrOutsideTurn
	}
	return t.staged.Set(key, value)
}

// DeleteContext stages a removal.
func (t *Turn) DeleteContext(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.staged.Delete(key)
	}
}

// History returns the turns committed before this one.
func (t *Turn) History() []domain.TurnRecord {
	return cloneHistory(t.history)
}

func (t *Turn) enter(state string) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

func (t *Turn) redirect(id string) {
	t.mu.Lock()
	t.next = id
	t.mu.Unlock()
}

// close stops further writes; a handler that leaks its scope cannot touch the store.
func (t *Turn) close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}
