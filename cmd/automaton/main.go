// Package main provides the automaton CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/monkeygold/automaton"
)

var (
	version = "dev"
)

type rootFlags struct {
	config    string
	logLevel  string
	logFormat string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "automaton",
		Short: "Spawn and manage child automatons in isolated sandboxes",
		Long: `automaton provisions child automatons inside Docker sandboxes, starts
them, polls their self-reported status and delivers messages to their inbox.

Spawning is rate limited and bounded by a maximum number of live children.
Configuration is read from $AUTOMATON_HOME/automaton.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.config, "config", automaton.ConfigPath(), "configuration file")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newServeCmd(flags),
		newSpawnCmd(flags),
		newListCmd(flags),
		newStartCmd(flags),
		newPollCmd(flags),
		newSendCmd(flags),
		newLimitsCmd(flags),
		newModificationsCmd(flags),
		newSandboxesCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "automaton %s\n", version)
		},
	}
}

// newLogger builds the process logger and installs it as the slog default.
func newLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
