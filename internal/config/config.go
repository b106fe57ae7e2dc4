// Package config loads the automaton YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/monkeygold/automaton"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
	DriverMemory = "memory"
)

// Config is the full automaton configuration.
type Config struct {
	// Identity is the parent automaton that spawns children.
	Identity automaton.Identity `yaml:"identity"`

	MaxChildren      int           `yaml:"max_children"`
	MinSpawnInterval time.Duration `yaml:"min_spawn_interval"`

	// Constitution is the local policy document propagated to children.
	Constitution string `yaml:"constitution"`

	Store    StoreConfig        `yaml:"store"`
	Sandbox  SandboxConfig      `yaml:"sandbox"`
	Paths    automaton.Paths    `yaml:"paths"`
	Commands automaton.Commands `yaml:"commands"`
	Timeouts automaton.Timeouts `yaml:"timeouts"`
	NATS     NATSConfig         `yaml:"nats"`
	Webhook  WebhookConfig      `yaml:"webhook"`
	HTTP     HTTPConfig         `yaml:"http"`
	Log      LogConfig          `yaml:"log"`
	Tracing  TracingConfig      `yaml:"tracing"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type SandboxConfig struct {
	Image     string `yaml:"image"`
	Network   string `yaml:"network"`
	DiskQuota bool   `yaml:"disk_quota"`
}

// NATSConfig enables lifecycle event publishing when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// WebhookConfig enables HTTP delivery of lifecycle events when URL is set.
type WebhookConfig struct {
	URL string `yaml:"url"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Output  string `yaml:"output"`
}

// Default returns a configuration with every field set.
func Default() Config {
	return Config{
		Identity:         automaton.Identity{Name: "automaton"},
		MaxChildren:      automaton.DefaultMaxChildren,
		MinSpawnInterval: automaton.DefaultMinSpawnInterval,
		Constitution:     automaton.ConstitutionPath(),
		Store: StoreConfig{
			Driver: DriverSQLite,
			Path:   automaton.DefaultDBPath(),
		},
		Sandbox: SandboxConfig{
			Image:   "debian:bookworm-slim",
			Network: "automaton-network",
		},
		Paths:    automaton.DefaultPaths(),
		Commands: automaton.DefaultCommands(),
		Timeouts: automaton.DefaultTimeouts(),
		NATS:     NATSConfig{Subject: automaton.DefaultEventSubject},
		HTTP:     HTTPConfig{Addr: ":3010"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path over the defaults. A missing file yields
// the defaults when allowMissing is set.
func Load(p string, allowMissing bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(p)
	if err != nil {
		if allowMissing && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", p, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks a configuration for values the orchestrator cannot use.
func Validate(cfg Config) error {
	if cfg.MaxChildren < 1 {
		return fmt.Errorf("max_children must be at least 1, got %d", cfg.MaxChildren)
	}
	if cfg.MinSpawnInterval < 0 {
		return fmt.Errorf("min_spawn_interval must not be negative")
	}

	switch cfg.Store.Driver {
	case DriverSQLite, DriverBadger:
		if cfg.Store.Path == "" {
			return fmt.Errorf("store.path is required for driver %q", cfg.Store.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	for name, p := range map[string]string{
		"paths.config":       cfg.Paths.Config,
		"paths.constitution": cfg.Paths.Constitution,
		"paths.inbox":        cfg.Paths.Inbox,
	} {
		if !path.IsAbs(p) {
			return fmt.Errorf("%s must be an absolute sandbox path, got %q", name, p)
		}
	}

	if cfg.Webhook.URL != "" {
		u, err := url.Parse(cfg.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook.url must be an http(s) URL, got %q", cfg.Webhook.URL)
		}
	}

	if cfg.Commands.InstallRuntime == "" || cfg.Commands.Start == "" || cfg.Commands.Status == "" {
		return fmt.Errorf("commands.install_runtime, commands.start and commands.status are required")
	}
	return nil
}

// Options converts the configuration into orchestrator options.
func (c Config) Options() []automaton.OrchestratorOption {
	return []automaton.OrchestratorOption{
		automaton.WithMaxChildren(c.MaxChildren),
		automaton.WithMinSpawnInterval(c.MinSpawnInterval),
		automaton.WithPaths(c.Paths),
		automaton.WithCommands(c.Commands),
		automaton.WithTimeouts(c.Timeouts),
		automaton.WithConstitution(c.Constitution),
	}
}
