package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/dealflow/internal/config"
	"github.com/soyeahso/dealflow/internal/hooks"
	"github.com/soyeahso/dealflow/internal/llm"
	"github.com/soyeahso/dealflow/internal/logging"
	"github.com/soyeahso/dealflow/internal/orchestrator"
	"github.com/soyeahso/dealflow/internal/plugin"
	"github.com/soyeahso/dealflow/internal/session"
	"github.com/soyeahso/dealflow/internal/store"
	"github.com/soyeahso/dealflow/internal/telemetry"
	"github.com/soyeahso/dealflow/internal/tool"
	"github.com/soyeahso/dealflow/internal/tools"
)

// app holds the long-lived resources shared by commands. Commands open
// only the layers they need: openApp gives config, logging, the database
// and sessions; loadTools adds plugins; startOrchestrator adds the rest.
type app struct {
	cfg       config.Config
	log       *logging.Logger
	db        *store.DB
	sessions  *session.Store
	hooks     *hooks.Manager
	telemetry *telemetry.Recorder
	plugins   *plugin.Registry
	executor  *tool.Executor
	providers []string
	orch      *orchestrator.Orchestrator

	closers []func() error
}

type appOptions struct {
	// defaultLevel replaces the configured log level when --log-level is
	// not given. One-shot commands use it to keep stderr quiet.
	defaultLevel string
}

// loadConfig reads and validates the config file.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	paths.Apply(&cfg)
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

func openApp(opts appOptions) (_ *app, err error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if logLevel == "" && opts.defaultLevel != "" {
		cfg.Logging.Level = opts.defaultLevel
	}

	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	logger, closer, err := logging.NewWithOptions(logging.Options{
		Level:        cfg.Logging.Level,
		ConsoleStyle: cfg.Logging.ConsoleStyle,
		File:         cfg.Logging.File,
	})
	if err != nil {
		return nil, err
	}
	a.log = logger
	a.closers = append(a.closers, closer.Close)

	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating data directories: %w", err)
	}

	a.db, err = store.Open(cfg.Database.Path, a.log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.closers = append(a.closers, a.db.Close)

	backend, err := a.sessionBackend()
	if err != nil {
		return nil, err
	}
	a.sessions = session.New(backend, a.log,
		session.WithMaxTurns(cfg.Session.MaxTurns),
		session.WithTimeout(cfg.Session.Timeout()),
	)
	return a, nil
}

func (a *app) sessionBackend() (session.Backend, error) {
	switch a.cfg.Session.Store {
	case "sqlite":
		a.log.Info().Str("path", a.cfg.Database.Path).Msg("using SQLite session store")
		return store.NewSQLiteSessionBackend(a.db), nil
	case "memory":
		a.log.Info().Msg("using in-memory session store")
		return session.NewMemoryBackend(), nil
	default:
		b, err := session.NewFileBackend(a.cfg.Session.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening session directory: %w", err)
		}
		a.log.Info().Str("dir", a.cfg.Session.Dir).Msg("using file session store")
		return b, nil
	}
}

// loadTools registers the built-in plugins and initializes the enabled ones.
func (a *app) loadTools(ctx context.Context) error {
	if a.executor != nil {
		return nil
	}
	if a.hooks == nil {
		a.hooks = hooks.NewManager(a.log)
		a.closers = append(a.closers, func() error {
			a.hooks.Wait()
			return nil
		})
	}

	registry := tool.NewRegistry()
	a.plugins = plugin.NewRegistry(registry, a.hooks, a.log, a.cfg.Tools.Disabled...)
	builtin := tools.Builtin(tools.Deps{
		Config:    a.cfg,
		Companies: store.NewCompanyStore(a.db),
		Portfolio: store.NewPortfolioStore(a.db),
	})
	for _, p := range builtin {
		if err := a.plugins.Register(p); err != nil {
			return err
		}
	}
	if err := a.plugins.InitAll(ctx); err != nil {
		return fmt.Errorf("initializing plugins: %w", err)
	}
	a.closers = append(a.closers, func() error {
		a.plugins.CloseAll()
		return nil
	})

	a.executor = tool.NewExecutor(registry, a.log, tool.ExecutorOptions{
		Timeout:        a.cfg.Tools.Timeout(),
		Parallel:       a.cfg.Tools.Parallel,
		MaxConcurrency: a.cfg.Tools.MaxConcurrency,
	})
	return nil
}

// startOrchestrator wires telemetry, the AI client and the orchestrator.
func (a *app) startOrchestrator(ctx context.Context) error {
	if err := a.loadTools(ctx); err != nil {
		return err
	}

	a.telemetry = telemetry.Nop()
	if a.cfg.Telemetry.IsEnabled() {
		rec, err := telemetry.Open(a.cfg.Telemetry.Dir, a.log)
		if err != nil {
			a.log.Warn().Err(err).Msg("telemetry unavailable, continuing without it")
		}
		a.telemetry = rec
		a.closers = append(a.closers, rec.Close)
	}

	var client llm.Client
	registry := llm.NewRegistryFromConfig(a.cfg.AI, a.log)
	a.providers = registry.List()
	if registry.Empty() {
		a.log.Warn().Msg("no AI provider configured, using keyword routing only")
	} else {
		client = llm.NewFailoverClient(registry, a.cfg.AI.Provider, a.cfg.AI.Fallbacks, a.log)
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Config:    a.cfg,
		Sessions:  a.sessions,
		Executor:  a.executor,
		Client:    client,
		Telemetry: a.telemetry,
		Hooks:     a.hooks,
		Log:       a.log,
	})
	if err != nil {
		return err
	}
	a.orch = orch
	a.log.Debug().Strs("handlers", orch.Handlers()).Strs("providers", a.providers).Msg("orchestrator ready")
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
