package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractSnapshot(id, current string) domain.Snapshot {
	return domain.Snapshot{
		MachineID: id,
		Agent:     "contract",
		Initial:   "start",
		Terminal:  "END",
		Current:   current,
		Context:   map[string]any{},
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore
// implementation adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := contractSnapshot(sessionID, "start")
		snap.Context["foo"] = "bar"
		snap.Context["count"] = 42
		snap.PendingInput = "forwarded"
		snap.History = []domain.TurnRecord{{
			ID:         "rec-1",
			Seq:        1,
			Input:      "hi",
			PriorState: "start",
			NextState:  "start",
			Payload:    map[string]any{"content": "hello"},
		}}

		require.NoError(t, store.Save(ctx, sessionID, snap), "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, snap.Current, loaded.Current)
		assert.Equal(t, snap.Terminal, loaded.Terminal)
		assert.Equal(t, "forwarded", loaded.PendingInput)
		assert.Equal(t, "bar", loaded.Context["foo"])
		// JSON-backed stores decode numbers as float64.
		assert.NotNil(t, loaded.Context["count"])
		require.Len(t, loaded.History, 1)
		assert.Equal(t, "hello", loaded.History[0].Payload["content"])
	})

	t.Run("Load returns a copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Context["foo"] = "mutated"

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "bar", again.Context["foo"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, contractSnapshot(sessionID, "start")))

		require.NoError(t, store.Delete(ctx, sessionID), "Delete should not return error")

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Save(ctx, id1, contractSnapshot(id1, "start")))
		require.NoError(t, store.Save(ctx, id2, contractSnapshot(id2, "start")))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunAuditStoreContract verifies that an AuditStore keeps records append-only
// and ordered per session.
func RunAuditStoreContract(t *testing.T, store AuditStore) {
	ctx := context.Background()
	sessionID := "contract-audit-" + time.Now().Format("20060102150405")
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := func(seq int, prior, next string) domain.TurnRecord {
		return domain.TurnRecord{
			ID:            sessionID + "-" + prior + "-" + next,
			MachineID:     sessionID,
			Seq:           seq,
			Input:         "input",
			PriorState:    prior,
			ProposedState: next,
			NextState:     next,
			RawOutput:     `{"transition":"` + next + `"}`,
			Payload:       map[string]any{"transition": next},
			Response:      "ok",
			Attempts:      1,
			Duration:      150 * time.Millisecond,
			Timestamp:     ts.Add(time.Duration(seq) * time.Second),
		}
	}

	t.Run("Append and List", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, sessionID, rec(2, "B", "C")))
		require.NoError(t, store.Append(ctx, sessionID, rec(1, "A", "B")))
		require.NoError(t, store.Append(ctx, "other-"+sessionID, rec(1, "X", "Y")))

		got, err := store.List(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 1, got[0].Seq)
		assert.Equal(t, 2, got[1].Seq)
		assert.Equal(t, "A", got[0].PriorState)
		assert.Equal(t, "B", got[0].NextState)
		assert.Equal(t, "B", got[0].Payload["transition"])
		assert.Equal(t, 150*time.Millisecond, got[0].Duration)
		assert.True(t, got[0].Timestamp.Equal(ts.Add(time.Second)))
	})

	t.Run("Unknown session", func(t *testing.T) {
		got, err := store.List(ctx, "missing-"+sessionID)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
