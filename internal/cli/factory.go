package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go/v3/option"

	"github.com/aretw0/llmfsm/internal/config"
	"github.com/aretw0/llmfsm/pkg/adapters/file"
	"github.com/aretw0/llmfsm/pkg/adapters/gemini"
	"github.com/aretw0/llmfsm/pkg/adapters/memory"
	"github.com/aretw0/llmfsm/pkg/adapters/openai"
	"github.com/aretw0/llmfsm/pkg/adapters/redis"
	"github.com/aretw0/llmfsm/pkg/adapters/scripted"
	"github.com/aretw0/llmfsm/pkg/adapters/sqlite"
	"github.com/aretw0/llmfsm/pkg/llm"
	"github.com/aretw0/llmfsm/pkg/persistence/middleware"
	"github.com/aretw0/llmfsm/pkg/ports"
	"github.com/aretw0/llmfsm/pkg/prompt"
)

// NewClient builds the model client selected by cfg.Provider.
func NewClient(ctx context.Context, cfg config.Config) (llm.Client, error) {
	switch cfg.Provider {
	case "openai":
		var opts []openai.Option
		if cfg.Timeout > 0 {
			opts = append(opts, openai.WithRequestOptions(option.WithRequestTimeout(cfg.Timeout)))
		}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithAPIKey(cfg.APIKey))
		}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Organization != "" {
			opts = append(opts, openai.WithOrganization(cfg.Organization))
		}
		c, err := openai.New(opts...)
		if err != nil {
			return nil, err
		}
		return withClientRetries(c, cfg), nil
	case "gemini":
		var opts []gemini.Option
		if cfg.APIKey != "" {
			opts = append(opts, gemini.WithAPIKey(cfg.APIKey))
		}
		if cfg.Model != "" {
			opts = append(opts, gemini.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
		}
		c, err := gemini.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return withClientRetries(c, cfg), nil
	case "scripted":
		steps, err := scripted.LoadFile(cfg.Script)
		if err != nil {
			return nil, fmt.Errorf("failed to load script: %w", err)
		}
		return scripted.New(steps), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

const (
	defaultSessionsPath = ".llmfsm/sessions"
	defaultSQLitePath   = ".llmfsm/llmfsm.db"
)

// Stores are the persistence backends selected by config.
type Stores struct {
	Snapshots ports.SnapshotStore
	Audit     ports.AuditStore
	// Locker is set for shared backends only.
	Locker  ports.DistributedLocker
	closers []io.Closer
}

// Close releases backend connections.
func (s *Stores) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewStores opens the backend selected by cfg.Kind and wraps its snapshot
// store with masking and encryption when configured.
func NewStores(cfg config.StoreConfig) (*Stores, error) {
	stores, err := openStores(cfg)
	if err != nil {
		return nil, err
	}
	mws, err := storeMiddleware(cfg)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	stores.Snapshots = middleware.Chain(stores.Snapshots, mws...)
	return stores, nil
}

// storeMiddleware masks before encrypting.
func storeMiddleware(cfg config.StoreConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.MaskKeys) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.MaskKeys)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	if cfg.EncryptionKey == "" {
		return mws, nil
	}
	active, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption_key: %w", err)
	}
	enc := middleware.EncryptionConfig{ActiveKey: active}
	for i, k := range cfg.FallbackKeys {
		key, err := base64.StdEncoding.DecodeString(k)
		if err != nil {
			return nil, fmt.Errorf("fallback_keys[%d]: %w", i, err)
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	mw, err := middleware.NewEncryptionMiddleware(enc)
	if err != nil {
		return nil, err
	}
	return append(mws, mw), nil
}

func openStores(cfg config.StoreConfig) (*Stores, error) {
	switch strings.ToLower(cfg.Kind) {
	case "memory":
		return &Stores{Snapshots: memory.NewStore(), Audit: memory.NewAuditLog()}, nil
	case "file", "":
		path := cfg.Path
		if path == "" {
			path = defaultSessionsPath
		}
		return &Stores{
			Snapshots: file.New(path),
			Audit:     file.NewAuditLog(filepath.Join(filepath.Dir(path), "audit")),
		}, nil
	case "redis":
		var opts []redis.Option
		if cfg.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.TTL))
		}
		if cfg.RedisPrefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.RedisPrefix+"session:"))
		}
		var store *redis.Store
		if strings.Contains(cfg.RedisAddr, "://") {
			var err error
			if store, err = redis.NewFromURL(cfg.RedisAddr, opts...); err != nil {
				return nil, err
			}
		} else {
			addr := cfg.RedisAddr
			if addr == "" {
				addr = "localhost:6379"
			}
			store = redis.New(addr, "", 0, opts...)
		}
		auditPrefix, lockPrefix := "", ""
		if cfg.RedisPrefix != "" {
			auditPrefix, lockPrefix = cfg.RedisPrefix+"audit:", cfg.RedisPrefix+"lock:"
		}
		return &Stores{
			Snapshots: store,
			Audit:     redis.NewAuditLog(store.Client(), auditPrefix),
			Locker:    redis.NewLocker(store.Client(), lockPrefix),
			closers:   []io.Closer{store},
		}, nil
	case "sqlite":
		path := cfg.Path
		if path == "" || filepath.Clean(path) == filepath.Clean(defaultSessionsPath) {
			path = defaultSQLitePath
		}
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		return &Stores{Snapshots: db, Audit: db.Audit(), closers: []io.Closer{db}}, nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}

func withClientRetries(c llm.Client, cfg config.Config) llm.Client {
	if cfg.ClientRetries == 0 {
		return c
	}
	return llm.WithRetry(c, llm.RetryConfig{
		MaxAttempts: cfg.ClientRetries + 1,
		Backoff:     500 * time.Millisecond,
	})
}

// NewTokenEstimator counts prompt tokens with tiktoken for an OpenAI model.
// It falls back to prompt.ApproxEstimator when the encoding cannot be loaded.
func NewTokenEstimator(model string, logger *slog.Logger) prompt.TokenEstimator {
	if model == "" {
		model = openai.DefaultModel
	}
	est, err := prompt.NewTikTokenEstimator(model)
	if err != nil {
		logger.Warn("Token counting falls back to an estimate", "model", model, "err", err)
		return prompt.ApproxEstimator
	}
	return est
}
