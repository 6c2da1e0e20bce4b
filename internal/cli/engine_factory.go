package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nvrdftd/evolve-ai-infra"
	"github.com/nvrdftd/evolve-ai-infra/internal/config"
	"github.com/nvrdftd/evolve-ai-infra/internal/workflow"
	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/anthropic"
	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/memory"
	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/openai"
	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/process"
	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/prometheus"
	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/redis"
	"github.com/nvrdftd/evolve-ai-infra/pkg/graph"
	"github.com/nvrdftd/evolve-ai-infra/pkg/observability"
	"github.com/nvrdftd/evolve-ai-infra/pkg/persistence/middleware"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
	"github.com/nvrdftd/evolve-ai-infra/pkg/remediation"
	"github.com/nvrdftd/evolve-ai-infra/pkg/tool"
	backend "github.com/redis/go-redis/v9"
)

// Components is everything a command needs from a configured engine.
type Components struct {
	Engine    *evolve.Engine
	Metrics   *observability.Metrics
	Runs      ports.RunStore
	Knowledge ports.KnowledgeStore
	close     []func() error
}

// Close releases the backing connections.
func (c *Components) Close() error {
	var errs []error
	for _, fn := range c.close {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}

// BuildOption overrides a collaborator that is otherwise derived from the configuration.
type BuildOption func(*buildOptions)

type buildOptions struct {
	model   ports.Model
	metrics ports.MetricsSource
	redis   *backend.Client
}

// WithModel replaces the configured provider.
func WithModel(m ports.Model) BuildOption {
	return func(o *buildOptions) { o.model = m }
}

// WithMetricsSource replaces the Prometheus source.
func WithMetricsSource(s ports.MetricsSource) BuildOption {
	return func(o *buildOptions) { o.metrics = s }
}

// WithRedisClient uses an existing client instead of dialing redis.addr.
func WithRedisClient(c *backend.Client) BuildOption {
	return func(o *buildOptions) { o.redis = c }
}

// Build assembles the engine described by cfg.
// Without redis.addr, runs and knowledge live in memory and locks are in-process.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...BuildOption) (*Components, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Components{Metrics: observability.NewMetrics()}

	var locker ports.DistributedLocker
	client := o.redis
	if client == nil && cfg.Redis.Addr != "" {
		client = backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.close = append(c.close, client.Close)
	}
	if client != nil {
		if err := client.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		c.Runs = redis.NewFromClient(client, redis.WithTTL(cfg.Redis.RunTTL))
		c.Knowledge = redis.NewKnowledge(client, "")
		locker = redis.NewLocker(client, "evolve:")
		logger.Debug("using redis backend", "addr", client.Options().Addr)
	} else {
		c.Runs = memory.NewStore()
		c.Knowledge = memory.NewKnowledge()
		locker = memory.NewLocker()
	}

	runs, err := protectRuns(c.Runs, cfg.Runs)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Runs = runs

	model := o.model
	if model == nil {
		model = newModel(cfg.Agent)
	}

	g, err := buildGraph(cfg, logger, o, model, c.Knowledge, locker)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	hooks := c.Metrics.Hooks()
	c.Engine, err = evolve.New(g,
		evolve.WithLogger(logger),
		evolve.WithLifecycleHooks(hooks),
		evolve.WithLifecycleHooks(observability.LogHooks(logger)),
		evolve.WithRunObserver(c.Metrics),
		evolve.WithRunStore(c.Runs),
	)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return c, nil
}

// protectRuns masks redacted keys, then encrypts, before records reach the store.
func protectRuns(store ports.RunStore, cfg config.RunsConfig) (ports.RunStore, error) {
	var mws []middleware.Middleware
	if len(cfg.RedactKeys) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.RedactKeys)
		if err != nil {
			return nil, fmt.Errorf("runs.redact_keys: %w", err)
		}
		mws = append(mws, pii)
	}
	keys, err := cfg.Keys()
	if err != nil {
		return nil, err
	}
	if len(keys) > 0 {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    keys[0],
			FallbackKeys: keys[1:],
		}))
	}
	return middleware.Chain(store, mws...), nil
}

func newModel(cfg config.AgentConfig) ports.Model {
	if cfg.Provider == config.ProviderAnthropic {
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.Temperature = cfg.Temperature
			o.MaxTokens = int64(cfg.MaxTokens)
			o.BaseURL = cfg.BaseURL
		})
	}
	return openai.NewModel(func(o *openai.Options) {
		if cfg.Model != "" {
			o.Model = cfg.Model
		}
		o.Temperature = cfg.Temperature
		o.MaxTokens = int64(cfg.MaxTokens)
		o.BaseURL = cfg.BaseURL
	})
}

func buildGraph(cfg *config.Config, logger *slog.Logger, o buildOptions, model ports.Model, kb ports.KnowledgeStore, locker ports.DistributedLocker) (*graph.Graph, error) {
	deps := workflow.Dependencies{Model: model, Knowledge: kb, Logger: logger}

	if cfg.Workflow.Graph == config.GraphAssistant {
		tools, err := buildTools(cfg.Agent)
		if err != nil {
			return nil, err
		}
		return workflow.NewAssistant(deps, workflow.AssistantConfig{
			Tools:        tools,
			MaxToolTurns: cfg.Agent.MaxToolTurns,
		})
	}

	deps.Metrics = o.metrics
	if deps.Metrics == nil {
		if cfg.Metrics.Endpoint == "" {
			return nil, errors.New("metrics.endpoint is required for the incident graph")
		}
		src, err := prometheus.New(cfg.Metrics.Endpoint,
			prometheus.WithTimeout(cfg.Metrics.Timeout),
			prometheus.WithCacheTTL(cfg.Metrics.CacheTTL),
			prometheus.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		deps.Metrics = src
	}

	var next ports.Remediator = memory.NewRemediator()
	if cfg.Remediation.WebhookURL != "" {
		next = remediation.NewWebhook(cfg.Remediation.WebhookURL)
	} else {
		logger.Warn("no remediation webhook configured, actions are recorded only")
	}
	deps.Remediator = remediation.NewLocked(next, locker, cfg.Remediation.LockTTL, logger)

	return workflow.NewIncident(deps, workflow.IncidentConfig{
		MaxAttempts:   cfg.Workflow.MaxAttempts,
		Queries:       cfg.Metrics.Queries,
		TopK:          cfg.Workflow.TopK,
		FormatRetries: cfg.Agent.FormatRetries,
	})
}

// buildTools merges the calculator with the process tools of tools_file and
// narrows the result to agent.tools when it is set.
func buildTools(cfg config.AgentConfig) (*tool.Registry, error) {
	reg := workflow.Calculator()
	if cfg.ToolsFile != "" {
		defs, err := process.LoadTools(cfg.ToolsFile)
		if err != nil {
			return nil, err
		}
		runner := process.NewRunner(process.WithBaseDir(filepath.Dir(cfg.ToolsFile)))
		for _, r := range runner.Registrations(defs) {
			if err := reg.Register(r); err != nil {
				return nil, err
			}
		}
	}
	if len(cfg.Tools) == 0 {
		return reg, nil
	}
	return reg.Select(cfg.Tools...)
}
