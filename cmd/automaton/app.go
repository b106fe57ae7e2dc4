package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/monkeygold/automaton"
	"github.com/monkeygold/automaton/container"
	"github.com/monkeygold/automaton/internal/config"
	"github.com/monkeygold/automaton/internal/tracing"
	"github.com/monkeygold/automaton/notify"
	"github.com/monkeygold/automaton/store"
)

// app is everything a command needs, opened from the configuration.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   automaton.Store
	manager *container.Manager
	orch    *automaton.Orchestrator

	closers []func()
}

// openApp loads the configuration and opens the store. The Docker sandbox
// manager is only connected when withSandbox is set. extra publishers
// receive lifecycle events alongside NATS and the webhook.
func openApp(cmd *cobra.Command, flags *rootFlags, withSandbox bool, extra ...automaton.Publisher) (*app, error) {
	cfg, err := config.Load(flags.config, !cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}

	a := &app{cfg: cfg, logger: newLogger(cfg.Log.Level, cfg.Log.Format)}

	st, err := openStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st
	a.onClose(func() {
		if err := st.Close(); err != nil {
			a.logger.Error("store close error", "error", err)
		}
	})

	opts := append(cfg.Options(), automaton.WithLogger(a.logger))

	var sandbox automaton.Sandbox
	if withSandbox {
		m, err := container.NewManager(
			container.WithDefaultImage(cfg.Sandbox.Image),
			container.WithNetworkName(cfg.Sandbox.Network),
			container.WithDiskQuota(cfg.Sandbox.DiskQuota),
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("sandbox manager: %w", err)
		}
		if !m.IsAvailable() {
			a.logger.Warn("docker is not available, sandbox operations will fail")
		}
		a.manager = m
		a.onClose(func() { m.Close() })
		sandbox = m

		publishers := automaton.Publishers(extra)
		if cfg.NATS.URL != "" {
			p, err := notify.NewPublisher(cfg.NATS.URL, a.logger)
			if err != nil {
				a.logger.Warn("nats unavailable, events will not be published", "url", cfg.NATS.URL, "error", err)
			} else {
				a.onClose(p.Close)
				publishers = append(publishers, p)
			}
		}
		if cfg.Webhook.URL != "" {
			publishers = append(publishers, notify.NewWebhook(cfg.Webhook.URL))
		}
		if len(publishers) > 0 {
			opts = append(opts, automaton.WithPublisher(publishers, cfg.NATS.Subject))
		}

		if cfg.Tracing.Enabled {
			shutdown, err := tracing.Init("automaton", version, cfg.Tracing.Output)
			if err != nil {
				a.logger.Warn("tracing disabled", "error", err)
			} else {
				a.onClose(func() { shutdown(context.Background()) })
			}
		}
	}

	a.orch = automaton.NewOrchestrator(st, sandbox, opts...)
	return a, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func openStore(sc config.StoreConfig) (automaton.Store, error) {
	switch sc.Driver {
	case config.DriverMemory:
		return automaton.NewMemoryStore(), nil
	case config.DriverBadger:
		if err := os.MkdirAll(sc.Path, 0o700); err != nil {
			return nil, err
		}
		return store.OpenBadger(sc.Path)
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(sc.Path), 0o700); err != nil {
			return nil, err
		}
		return store.OpenSQLite(sc.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}
}
