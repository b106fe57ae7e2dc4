package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSandboxesCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandboxes",
		Short: "List sandbox containers managed by automaton",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ids, err := a.manager.ListSandboxes(cmd.Context())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sandboxes.")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <sandbox-id>...",
		Short: "Stop and remove sandbox containers",
		Long: `Stop and remove sandbox containers. The child records that reference them
are left untouched; the next poll marks those children unknown.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags, true)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range args {
				if err := a.manager.RemoveSandbox(cmd.Context(), id); err != nil {
					return fmt.Errorf("remove %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
			}
			return nil
		},
	})
	return cmd
}
