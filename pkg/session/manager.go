package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/llmfsm/internal/logging"
	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/machine"
	"github.com/aretw0/llmfsm/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold a session.
const DefaultLockTTL = 30 * time.Second

// Factory builds machines for one agent. *llmfsm.Agent implements it.
type Factory interface {
	NewMachine(initial string, opts ...machine.Option) (*machine.Machine, error)
	Resume(snap domain.Snapshot, opts ...machine.Option) (*machine.Machine, error)
}

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager hosts many conversations over one agent. Every operation on a
// session runs under that session's lock, so turns never interleave.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	agent Factory
	store ports.SnapshotStore
	audit ports.AuditStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker      ports.DistributedLocker // Optional distributed locker
	lockTTL     time.Duration
	maxInput    int
	machineOpts []machine.Option
	logger      *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the lease of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithMaxInputSize bounds user inputs passed to RunTurn. 0 disables the check.
func WithMaxInputSize(n int) Option {
	return func(m *Manager) {
		m.maxInput = n
	}
}

// WithAudit records every committed turn in audit.
func WithAudit(audit ports.AuditStore) Option {
	return func(m *Manager) {
		m.audit = audit
	}
}

// WithMachineOptions applies opts to every machine the manager builds.
func WithMachineOptions(opts ...machine.Option) Option {
	return func(m *Manager) {
		m.machineOpts = append(m.machineOpts, opts...)
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager for agent backed by store.
func NewManager(agent Factory, store ports.SnapshotStore, opts ...Option) *Manager {
	m := &Manager{
		agent:    agent,
		store:    store,
		locks:    make(map[string]*lockEntry),
		lockTTL:  DefaultLockTTL,
		maxInput: DefaultMaxInputSize,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes fn while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// Release even if ctx was cancelled mid-turn.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}
	return fn(ctx)
}

// machine loads the session or starts a fresh one. The bool reports a new session.
func (m *Manager) machine(ctx context.Context, sessionID string) (*machine.Machine, bool, error) {
	snap, err := m.store.Load(ctx, sessionID)
	if err == nil {
		mc, err := m.agent.Resume(snap, m.machineOpts...)
		if err != nil {
			return nil, false, fmt.Errorf("failed to resume session %q: %w", sessionID, err)
		}
		return mc, false, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, false, fmt.Errorf("failed to check session existence: %w", err)
	}

	opts := append([]machine.Option{machine.WithID(sessionID)}, m.machineOpts...)
	mc, err := m.agent.NewMachine("", opts...)
	if err != nil {
		return nil, false, err
	}
	return mc, true, nil
}

// LoadOrStart returns the session's snapshot, creating and persisting a new
// session when none exists.
func (m *Manager) LoadOrStart(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		mc, created, err := m.machine(ctx, sessionID)
		if err != nil {
			return err
		}
		snap = mc.Snapshot()
		if created {
			if err := m.store.Save(ctx, sessionID, snap); err != nil {
				return fmt.Errorf("failed to initialize session: %w", err)
			}
			m.logger.Info("Session started", "session_id", sessionID, "state", snap.Current)
		}
		return nil
	})
	return snap, err
}

// RunTurn sanitizes input, runs one turn of the session and persists the
// result. A failed turn leaves the stored session untouched.
func (m *Manager) RunTurn(ctx context.Context, sessionID, input string) (domain.TurnRecord, error) {
	clean, err := SanitizeInput(input, m.maxInput)
	if err != nil {
		m.logger.Warn("Input rejected", "session_id", sessionID, "size", len(input), "err", err)
		return domain.TurnRecord{}, err
	}
	input = clean

	var rec domain.TurnRecord
	err = m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		mc, _, err := m.machine(ctx, sessionID)
		if err != nil {
			return err
		}
		rec, err = mc.RunTurn(ctx, input)
		if err != nil {
			return err
		}
		if err := m.store.Save(ctx, sessionID, mc.Snapshot()); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		if m.audit != nil {
			if err := m.audit.Append(ctx, sessionID, rec); err != nil {
				m.logger.Warn("Failed to append audit record",
					"session_id", sessionID,
					"record", rec.ID,
					"err", err,
				)
			}
		}
		return nil
	})
	return rec, err
}

// Force moves the session to state without a model call, e.g. to end it.
func (m *Manager) Force(ctx context.Context, sessionID, state string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		mc, _, err := m.machine(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := mc.SetNextState(state); err != nil {
			return err
		}
		snap = mc.Snapshot()
		return m.store.Save(ctx, sessionID, snap)
	})
	return snap, err
}

// Get returns the stored snapshot.
func (m *Manager) Get(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, sessionID)
		return err
	})
	return snap, err
}

// Delete removes the session from the store. The audit trail is kept.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Audit returns the session's committed turns. Without an audit store it
// falls back to the history carried by the snapshot.
func (m *Manager) Audit(ctx context.Context, sessionID string) ([]domain.TurnRecord, error) {
	if m.audit != nil {
		return m.audit.List(ctx, sessionID)
	}
	snap, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return snap.History, nil
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}
