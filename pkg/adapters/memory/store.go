// Package memory provides in-process implementations of the persistence ports.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/aretw0/llmfsm/pkg/domain"
)

// Store implements ports.SnapshotStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]domain.Snapshot
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]domain.Snapshot),
	}
}

// Save persists a copy of the snapshot.
func (s *Store) Save(ctx context.Context, sessionID string, snap domain.Snapshot) error {
	copied := snap.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = copied
	return nil
}

// Load retrieves a copy of the snapshot so callers cannot mutate the store.
func (s *Store) Load(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[sessionID]
	if !ok {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	return snap.Clone(), nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// List returns stored sessions in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.data))
	for id := range s.data {
		sessions = append(sessions, id)
	}
	slices.Sort(sessions)
	return sessions, nil
}

// AuditLog implements ports.AuditStore in memory.
type AuditLog struct {
	data map[string][]domain.TurnRecord
	mu   sync.RWMutex
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{data: make(map[string][]domain.TurnRecord)}
}

// Append stores a copy of rec.
func (a *AuditLog) Append(ctx context.Context, sessionID string, rec domain.TurnRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data[sessionID] = append(a.data[sessionID], rec.Clone())
	return nil
}

// List returns the session's records ordered by Seq.
func (a *AuditLog) List(ctx context.Context, sessionID string) ([]domain.TurnRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]domain.TurnRecord, 0, len(a.data[sessionID]))
	for _, r := range a.data[sessionID] {
		out = append(out, r.Clone())
	}
	slices.SortStableFunc(out, func(x, y domain.TurnRecord) int { return cmp.Compare(x.Seq, y.Seq) })
	return out, nil
}
