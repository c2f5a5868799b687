package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kokistudios/ultrathink/internal/report"
	"github.com/kokistudios/ultrathink/internal/storage"
	"github.com/kokistudios/ultrathink/internal/thinking"
	"github.com/kokistudios/ultrathink/internal/ui"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage stored thinking sessions",
	}
	cmd.AddCommand(sessionListCmd())
	cmd.AddCommand(sessionShowCmd())
	cmd.AddCommand(sessionExportCmd())
	cmd.AddCommand(sessionDeleteCmd())
	cmd.AddCommand(sessionWatchCmd())
	return cmd
}

func sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, backend, svc, err := openSession()
			if err != nil {
				return err
			}
			defer backend.Close()

			ids, err := backend.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				ui.EmptyState("No sessions yet.")
				return nil
			}

			var rows [][]string
			for _, id := range ids {
				found, _ := svc.Inspect(cmd.Context(), id, func(sess *thinking.Session) {
					rows = append(rows, []string{
						id,
						strconv.Itoa(sess.Log.Count()),
						strconv.Itoa(sess.Assumptions.Len()),
						strconv.Itoa(len(sess.Assumptions.RiskyIDs())),
						strconv.Itoa(len(sess.Log.BranchIDs())),
					})
				})
				if !found {
					rows = append(rows, []string{id, ui.Red("unreadable"), "-", "-", "-"})
				}
			}
			ui.Table(cmd.OutOrStdout(), []string{"SESSION", "THOUGHTS", "ASSUMPTIONS", "RISKY", "BRANCHES"}, rows)
			return nil
		},
	}
}

// withSession runs fn against stored session id, failing when it is absent.
func withSession(cmd *cobra.Command, id string, fn func(*thinking.Session) error) error {
	_, backend, svc, err := openSession()
	if err != nil {
		return err
	}
	defer backend.Close()

	var fnErr error
	found, err := svc.Inspect(cmd.Context(), id, func(sess *thinking.Session) {
		fnErr = fn(sess)
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("session not found: %s", id)
	}
	return fnErr
}

func sessionShowCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session as a readable report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if asJSON {
				s, backend, svc, err := openSession()
				if err != nil {
					return err
				}
				defer backend.Close()
				resp, err := svc.Snapshot(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp, s.Config.Output.Indent)
			}
			return withSession(cmd, id, func(sess *thinking.Session) error {
				ui.RenderMarkdown(cmd.OutOrStdout(), report.Markdown(id, sess))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the latest snapshot as JSON instead")
	return cmd
}

func sessionExportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "export <session-id>",
		Short:   "Print the full stored record of a session",
		Example: "  ultrathink session export abc123 > abc123.json\n  ultrathink session export abc123 --format yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format: %s (use json or yaml)", format)
			}
			return withSession(cmd, args[0], func(sess *thinking.Session) error {
				rec := thinking.NewRecord(sess)
				if format == "json" {
					return printJSON(cmd.OutOrStdout(), rec, 2)
				}
				data, err := yaml.Marshal(rec)
				if err != nil {
					return fmt.Errorf("failed to marshal session: %w", err)
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or yaml")
	return cmd
}

func sessionDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a stored session",
		Long:  "Delete a stored session. Other sessions referencing its assumptions will report them as unresolved from then on.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			_, backend, _, err := openSession()
			if err != nil {
				return err
			}
			defer backend.Close()

			if !yes {
				if !ui.Interactive() {
					ui.Warning(fmt.Sprintf("Not deleting %s: no terminal to confirm on, pass --yes.", id))
					return nil
				}
				ok, err := ui.Confirm(fmt.Sprintf("Delete session %s?", id))
				if err != nil {
					return err
				}
				if !ok {
					ui.Info("Cancelled (use --yes to skip the prompt).")
					return nil
				}
			}

			if err := backend.Delete(cmd.Context(), id); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("session not found: %s", id)
				}
				return err
			}
			ui.Success(fmt.Sprintf("Deleted session %s", id))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}

func sessionWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Follow a session as thoughts are added",
		Long:  "Print each new thought of a session as other invocations record it. Needs the file storage backend.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			_, backend, _, err := openSession()
			if err != nil {
				return err
			}
			defer backend.Close()

			fs, ok := backend.(*storage.FileStore)
			if !ok {
				return fmt.Errorf("session watch needs the file backend (ultrathink config set storage.backend file)")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			seen := 0
			show := func(data []byte) {
				sess, err := thinking.Decode(data)
				if err != nil {
					ui.Logger.Debug("Skipping unreadable record", "session", id, "err", err)
					return
				}
				thoughts := sess.Log.Thoughts()
				for _, t := range thoughts[min(seen, len(thoughts)):] {
					printThoughtLine(t)
				}
				seen = len(thoughts)
			}
			if data, err := fs.Read(ctx, id); err == nil {
				show(data)
			}

			ui.Info(fmt.Sprintf("Watching %s (Ctrl+C to stop)", id))
			return fs.Watch(ctx, id, show)
		},
	}
}

func printThoughtLine(t thinking.Thought) {
	label := fmt.Sprintf("#%d/%d", t.ThoughtNumber, t.TotalThoughts)
	switch {
	case t.IsBranch():
		label += " " + ui.Accent("⑂ "+*t.BranchID)
	case t.RevisesThought != nil:
		label += " " + ui.Yellow(fmt.Sprintf("↺ %d", *t.RevisesThought))
	}
	ui.KeyValue(label, t.Thought)
	if t.Confidence != nil {
		ui.Detail("confidence:", fmt.Sprintf("%.2f", *t.Confidence))
	}
}
