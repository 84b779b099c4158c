package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/llmfsm/internal/config"
	"github.com/aretw0/llmfsm/internal/logging"
	"github.com/aretw0/llmfsm/pkg/adapters/openai"
	"github.com/aretw0/llmfsm/pkg/adapters/scripted"
	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/llm"
	"github.com/aretw0/llmfsm/pkg/ports"
	"github.com/aretw0/llmfsm/pkg/prompt"
)

func TestNewStores(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	tests := []struct {
		name       string
		cfg        config.StoreConfig
		wantLocker bool
	}{
		{name: "memory", cfg: config.StoreConfig{Kind: "memory"}},
		{name: "file", cfg: config.StoreConfig{Kind: "file", Path: filepath.Join(dir, "sessions")}},
		{name: "sqlite", cfg: config.StoreConfig{Kind: "sqlite", Path: filepath.Join(dir, "db", "llmfsm.db")}},
		{name: "redis", cfg: config.StoreConfig{Kind: "redis", RedisAddr: mr.Addr(), RedisPrefix: "test:"}, wantLocker: true},
		{name: "redis url", cfg: config.StoreConfig{Kind: "redis", RedisAddr: "redis://" + mr.Addr() + "/0"}, wantLocker: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stores, err := NewStores(tt.cfg)
			require.NoError(t, err)
			t.Cleanup(func() { assert.NoError(t, stores.Close()) })

			assert.Equal(t, tt.wantLocker, stores.Locker != nil)
			ports.RunSnapshotStoreContract(t, stores.Snapshots)
			ports.RunAuditStoreContract(t, stores.Audit)
		})
	}
}

func TestNewStores_Protected(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	stores, err := NewStores(config.StoreConfig{
		Kind:          "file",
		Path:          dir,
		EncryptionKey: key,
		MaskKeys:      []string{"^phone"},
	})
	require.NoError(t, err)
	defer stores.Close()

	ctx := context.Background()
	snap := domain.Snapshot{
		Current: "START",
		Context: map[string]any{"phone_number": "555-0100", "user_name": "Ann"},
	}
	require.NoError(t, stores.Snapshots.Save(ctx, "s1", snap))

	loaded, err := stores.Snapshots.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "***", loaded.Context["phone_number"])
	assert.Equal(t, "Ann", loaded.Context["user_name"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Ann")
}

func TestNewStores_BadKeys(t *testing.T) {
	_, err := NewStores(config.StoreConfig{Kind: "memory", EncryptionKey: "not base64!"})
	assert.ErrorContains(t, err, "encryption_key")

	_, err = NewStores(config.StoreConfig{Kind: "memory", EncryptionKey: base64.StdEncoding.EncodeToString([]byte("short"))})
	assert.ErrorContains(t, err, "32 bytes")

	_, err = NewStores(config.StoreConfig{Kind: "memory", MaskKeys: []string{"("}})
	assert.ErrorContains(t, err, "invalid mask pattern")
}

func TestNewStores_UnknownKind(t *testing.T) {
	_, err := NewStores(config.StoreConfig{Kind: "etcd"})
	assert.ErrorContains(t, err, "unknown store kind")
}

func TestNewClient_Scripted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"transition":"END","content":"bye"}]`), 0o644))

	cfg := config.Default()
	cfg.Provider = "scripted"
	cfg.Script = path

	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, &scripted.Client{}, client)

	got, err := client.Complete(context.Background(), llm.Request{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"transition":"END","content":"bye"}`, got.Text)
}

func TestNewClient_ClientRetries(t *testing.T) {
	cfg := config.Default()
	cfg.APIKey = "sk-test"

	cfg.ClientRetries = 0
	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &openai.Client{}, client)

	cfg.ClientRetries = 3
	client, err = NewClient(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, client)
	_, isBare := client.(*openai.Client)
	assert.False(t, isBare, "transport retries wrap the provider client")
}

func TestNewTokenEstimator_FallsBack(t *testing.T) {
	est := NewTokenEstimator("not-a-model", logging.NewNop())
	require.NotNil(t, est)
	text := "Ask whether the user wants the light on."
	assert.Equal(t, prompt.ApproxEstimator(text), est(text))
}

func TestNewClient_Errors(t *testing.T) {
	cfg := config.Default()
	cfg.Provider = "scripted"
	cfg.Script = filepath.Join(t.TempDir(), "missing.json")
	_, err := NewClient(context.Background(), cfg)
	assert.ErrorContains(t, err, "failed to load script")

	cfg.Provider = "llama"
	_, err = NewClient(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown provider")
}
