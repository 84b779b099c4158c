package machine

import (
	"fmt"

	"github.com/aretw0/llmfsm/pkg/domain"
)

// Snapshot captures the committed state of the machine.
func (m *Machine) Snapshot() domain.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.Snapshot{
		MachineID:    m.id,
		Agent:        m.agent,
		Initial:      m.initial,
		Terminal:     m.terminal,
		Current:      m.current,
		Completed:    m.completed,
		Context:      m.store.Snapshot(),
		PendingInput: m.pending,
		History:      cloneHistory(m.history),
		UpdatedAt:    m.now(),
	}
}

// Restore replaces the machine's state with snap.
// The snapshot must come from a machine running on an equivalent registry.
func (m *Machine) Restore(snap domain.Snapshot) error {
	if !m.reg.Has(snap.Current) {
		return fmt.Errorf("%w: snapshot state %q", domain.ErrUnknownState, snap.Current)
	}
	if snap.Terminal != "" && snap.Terminal != m.terminal {
		return fmt.Errorf("snapshot terminal %q does not match machine terminal %q", snap.Terminal, m.terminal)
	}
	store, err := domain.LoadContextStore(snap.Context)
	if err != nil {
		return fmt.Errorf("snapshot context: %w", err)
	}
	if !m.running.CompareAndSwap(false, true) {
		return domain.ErrTurnInProgress
	}
	defer m.running.Store(false)

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.MachineID != "" {
		m.id = snap.MachineID
	}
	if snap.Agent != "" {
		m.agent = snap.Agent
	}
	m.current = snap.Current
	m.completed = snap.Current == m.terminal
	m.store = store
	m.pending = snap.PendingInput
	m.history = cloneHistory(snap.History)
	return nil
}
