package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/monkeygold/automaton"
)

func newSpawnCmd(flags *rootFlags) *cobra.Command {
	var genesis automaton.GenesisConfig
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "spawn",
		Short:   "Provision a new child in a fresh sandbox",
		Example: `  automaton spawn --name "Researcher" --prompt "Find paid work" --message "Good luck"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags, true)
			if err != nil {
				return err
			}
			defer a.Close()

			child, err := a.orch.Spawn(cmd.Context(), a.cfg.Identity, genesis)
			if err != nil {
				var rl *automaton.RateLimitError
				if errors.As(err, &rl) {
					return fmt.Errorf("%w (retry in %d minute(s))", err, rl.WaitMinutes())
				}
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), child)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Spawned %s (%s) in sandbox %s\n", child.Name, child.ID, child.SandboxID)
			fmt.Fprintf(cmd.OutOrStdout(), "Run 'automaton start %s' to start it.\n", child.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&genesis.Name, "name", "", "child name (required)")
	f.StringVar(&genesis.GenesisPrompt, "prompt", "", "genesis prompt")
	f.StringVar(&genesis.CreatorMessage, "message", "", "message from the creator")
	f.BoolVar(&asJSON, "json", false, "print the child record as JSON")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newListCmd(flags *rootFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List children",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags, false)
			if err != nil {
				return err
			}
			defer a.Close()

			children, err := a.orch.Children(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				if children == nil {
					children = []automaton.ChildRecord{}
				}
				return printJSON(cmd.OutOrStdout(), children)
			}
			printChildren(cmd.OutOrStdout(), children)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newStartCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start <child-id>",
		Short: "Start a provisioned child",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.orch.Start(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Child %s is running\n", args[0])
			return nil
		},
	}
}

func newPollCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "poll <child-id>",
		Short: "Query a child's self-reported status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags, true)
			if err != nil {
				return err
			}
			defer a.Close()

			output, err := a.orch.Poll(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			child, err := a.orch.Child(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Status: %s\n%s\n", child.Status, output)
			return nil
		},
	}
}

func newSendCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send <child-id> <message>",
		Short: "Deliver a message to a child's inbox",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.orch.Send(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Message delivered to %s\n", args[0])
			return nil
		},
	}
}

func newLimitsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "limits",
		Short: "Show spawn limits and whether a spawn is currently allowed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags, false)
			if err != nil {
				return err
			}
			defer a.Close()

			children, err := a.orch.Children(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Live children:      %d / %d\n", automaton.LiveChildren(children), a.orch.MaxChildren())
			fmt.Fprintf(out, "Min spawn interval: %s\n", a.orch.MinSpawnInterval())
			if err := a.orch.CanSpawn(cmd.Context()); err != nil {
				fmt.Fprintf(out, "Can spawn:          no (%v)\n", err)
			} else {
				fmt.Fprintf(out, "Can spawn:          yes\n")
			}
			return nil
		},
	}
}

func newModificationsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "modifications",
		Short: "Show the audit log of self-modifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags, false)
			if err != nil {
				return err
			}
			defer a.Close()

			mods, err := a.orch.Modifications(cmd.Context())
			if err != nil {
				return err
			}
			if len(mods) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No modifications.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTYPE\tDESCRIPTION")
			for _, m := range mods {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.Timestamp.Local().Format(time.DateTime), m.Type, m.Description)
			}
			return w.Flush()
		},
	}
}

func printChildren(out io.Writer, children []automaton.ChildRecord) {
	if len(children) == 0 {
		fmt.Fprintln(out, "No children.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSANDBOX\tCREATED")
	for _, c := range children {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Status, c.SandboxID, c.CreatedAt.Local().Format(time.DateTime))
	}
	w.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
