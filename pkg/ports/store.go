package ports

import (
	"context"

	"github.com/aretw0/llmfsm/pkg/domain"
)

// SnapshotStore persists machine snapshots so conversations survive restarts.
type SnapshotStore interface {
	// Save persists the snapshot for a given session ID.
	Save(ctx context.Context, sessionID string, snap domain.Snapshot) error

	// Load retrieves the snapshot for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (domain.Snapshot, error)

	// Delete removes the snapshot for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of stored sessions.
	List(ctx context.Context) ([]string, error)
}

// AuditStore keeps the append-only trail of committed turns.
type AuditStore interface {
	// Append stores rec for the session. Records are never updated.
	Append(ctx context.Context, sessionID string, rec domain.TurnRecord) error

	// List returns the session's records ordered by Seq.
	// An unknown session yields an empty slice.
	List(ctx context.Context, sessionID string) ([]domain.TurnRecord, error)
}
