package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/llmfsm/pkg/adapters/sqlite"
	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/ports"
)

func openDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "llmfsm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteStore_Contract(t *testing.T) {
	ports.RunSnapshotStoreContract(t, openDB(t))
}

func TestSQLiteAudit_Contract(t *testing.T) {
	ports.RunAuditStoreContract(t, openDB(t).Audit())
}

func TestSQLite_InMemory(t *testing.T) {
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Save(ctx, "s", domain.Snapshot{Current: "A"}))
	snap, err := db.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "A", snap.Current)
}

func TestSQLite_AppendIsAppendOnly(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	rec := domain.TurnRecord{ID: "r1", Seq: 1, PriorState: "A", NextState: "B"}

	require.NoError(t, db.Append(ctx, "s", rec))
	assert.Error(t, db.Append(ctx, "s", rec))
}

func TestSQLite_Transitions(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	for i, pair := range [][2]string{{"A", "B"}, {"B", "B"}, {"B", "B"}, {"B", "C"}} {
		require.NoError(t, db.Append(ctx, "s", domain.TurnRecord{
			ID:         string(rune('a' + i)),
			Seq:        i + 1,
			PriorState: pair[0],
			NextState:  pair[1],
		}))
	}

	counts, err := db.Transitions(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[[2]string{"A", "B"}])
	assert.Equal(t, 2, counts[[2]string{"B", "B"}])
	assert.Equal(t, 1, counts[[2]string{"B", "C"}])
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	db, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Save(ctx, "s", domain.Snapshot{Current: "B", Context: map[string]any{"k": "v"}}))
	require.NoError(t, db.Close())

	db, err = sqlite.Open(path)
	require.NoError(t, err)
	defer db.Close()
	snap, err := db.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "v", snap.Context["k"])
}
