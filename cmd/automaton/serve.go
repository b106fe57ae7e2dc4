package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/monkeygold/automaton/serve"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control API",
		Long: `Start the HTTP control API for spawning, starting, polling and messaging
children. Lifecycle events are streamed on /api/events and Prometheus
metrics are served on /metrics.`,
		Example: `  automaton serve
  automaton serve --addr :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			broker := serve.NewEventBroker()
			a, err := openApp(cmd, flags, true, broker)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			srv := serve.New(a.orch, broker, serve.Config{Addr: addr, Parent: a.cfg.Identity})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default from config)")
	return cmd
}
