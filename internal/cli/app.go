// Package cli wires configuration, model clients, stores and agents into the
// hosts run by cmd/llmfsm.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/llmfsm"
	"github.com/aretw0/llmfsm/internal/agents"
	"github.com/aretw0/llmfsm/internal/agents/content"
	"github.com/aretw0/llmfsm/internal/config"
	"github.com/aretw0/llmfsm/internal/logging"
	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/llm"
	"github.com/aretw0/llmfsm/pkg/observability"
	"github.com/aretw0/llmfsm/pkg/prompt"
	"github.com/aretw0/llmfsm/pkg/resolver"
	"github.com/aretw0/llmfsm/pkg/session"
)

// Options select what Bootstrap builds on top of the config.
type Options struct {
	Agent string
	// Client replaces the provider selected by the config.
	Client llm.Client
	// Context is merged over the agent's initial context.
	Context map[string]any
	// LogWriter receives logs. Stderr is used when nil.
	LogWriter io.Writer
	JSONLogs  bool
	// Trace exports OpenTelemetry spans to LogWriter.
	Trace bool
	Now   func() time.Time
}

// App is a ready-to-serve agent with its session manager.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Spec     agents.Spec
	Agent    *llmfsm.Agent
	Sessions *session.Manager
	Metrics  *observability.Metrics
	Registry *prometheus.Registry

	stores        *Stores
	shutdownTrace func(context.Context) error
}

// Bootstrap builds the App described by cfg and opts.
func Bootstrap(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger, level, err := newLogger(cfg.LogLevel, opts)
	if err != nil {
		return nil, err
	}

	spec, ok := agents.Lookup(opts.Agent)
	if !ok {
		return nil, fmt.Errorf("unknown agent %q (available: %s)", opts.Agent, strings.Join(agents.Names(), ", "))
	}

	client := opts.Client
	if client == nil {
		if client, err = NewClient(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to create model client: %w", err)
		}
	}

	var shutdownTrace func(context.Context) error
	if opts.Trace {
		shutdownTrace, err = observability.InitTracing(ctx, observability.TracingConfig{
			ServiceName:    "llmfsm-" + spec.Name,
			ServiceVersion: strings.TrimSpace(llmfsm.Version),
			Stdout:         true,
			Writer:         logWriter(opts),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init tracing: %w", err)
		}
	}

	deps := agents.Deps{Content: ContentLoader(cfg.ContentDir), Now: opts.Now}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	hooks := metrics.Hooks()
	if level <= slog.LevelDebug {
		hooks = domain.Merge(hooks, observability.LoggingHooks(logger))
	}

	estimator := prompt.TokenEstimator(prompt.ApproxEstimator)
	if opts.Client == nil && cfg.Provider == "openai" {
		estimator = NewTokenEstimator(cfg.Model, logger)
	}

	agentOpts := []llmfsm.Option{
		llmfsm.WithLogger(logger),
		llmfsm.WithComposer(prompt.NewComposer(prompt.WithEstimator(estimator))),
		llmfsm.WithLifecycleHooks(hooks),
		llmfsm.WithResolverOptions(resolver.WithMaxRetries(cfg.MaxRetries)),
	}
	if len(opts.Context) > 0 {
		values := map[string]any{}
		if spec.Context != nil {
			base, err := spec.Context(deps)
			if err != nil {
				return nil, fmt.Errorf("agent %s: %w", spec.Name, err)
			}
			maps.Copy(values, base)
		}
		maps.Copy(values, opts.Context)
		agentOpts = append(agentOpts, llmfsm.WithInitialContext(values))
	}
	agent, err := spec.Agent(client, deps, agentOpts...)
	if err != nil {
		return nil, err
	}

	stores, err := NewStores(cfg.Store)
	if err != nil {
		if shutdownTrace != nil {
			_ = shutdownTrace(ctx)
		}
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	mgrOpts := []session.Option{
		session.WithAudit(stores.Audit),
		session.WithLogger(logger),
		session.WithMaxInputSize(cfg.MaxInputSize),
	}
	if stores.Locker != nil {
		mgrOpts = append(mgrOpts, session.WithLocker(stores.Locker))
	}

	logger.Debug("App ready",
		"agent", spec.Name,
		"provider", cfg.Provider,
		"store", cfg.Store.Kind,
	)
	return &App{
		Config:   cfg,
		Logger:   logger,
		Spec:     spec,
		Agent:    agent,
		Sessions: session.NewManager(agent, stores.Snapshots, mgrOpts...),
		Metrics:  metrics,
		Registry: reg,

		stores:        stores,
		shutdownTrace: shutdownTrace,
	}, nil
}

// Close flushes spans and releases the stores.
func (a *App) Close() error {
	var errs []error
	if a.shutdownTrace != nil {
		errs = append(errs, a.shutdownTrace(context.Background()))
	}
	if a.stores != nil {
		errs = append(errs, a.stores.Close())
	}
	return errors.Join(errs...)
}

func newLogger(levelName string, opts Options) (*slog.Logger, slog.Level, error) {
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, level, err
	}
	w := logWriter(opts)
	if opts.JSONLogs {
		return logging.NewJSON(w, level), level, nil
	}
	return logging.NewText(w, level), level, nil
}

func logWriter(opts Options) io.Writer {
	if opts.LogWriter == nil {
		return os.Stderr
	}
	return opts.LogWriter
}

// ContentLoader reads dir when it exists and the bundled data otherwise.
func ContentLoader(dir string) *content.Loader {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return content.New(dir)
		}
	}
	return content.New("")
}
