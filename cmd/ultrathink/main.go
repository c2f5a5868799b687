package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kokistudios/ultrathink/internal/input"
	utmcp "github.com/kokistudios/ultrathink/internal/mcp"
	"github.com/kokistudios/ultrathink/internal/storage"
	"github.com/kokistudios/ultrathink/internal/store"
	"github.com/kokistudios/ultrathink/internal/thinking"
	"github.com/kokistudios/ultrathink/internal/ui"
)

// Set via ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func buildVersion() string {
	if commit == "none" {
		return version
	}
	return fmt.Sprintf("%s (%s, %s)", version, commit, date)
}

// verbose forces debug logging over the configured level.
var verbose bool

func main() {
	root := newRootCmd()
	ran, err := root.ExecuteC()
	if err == nil {
		return
	}
	var status exitStatus
	switch {
	case errors.As(err, &status):
		os.Exit(int(status))
	case ran == root:
		// The root command speaks JSON; subcommands are for humans.
		printError(os.Stderr, err)
	default:
		ui.Error(err.Error())
	}
	os.Exit(1)
}

// exitStatus ends the process with a specific code after the command has
// already reported why.
type exitStatus int

func (e exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

// thoughtFlags holds the root command's per-thought flags.
type thoughtFlags struct {
	thought          string
	total            int
	sessionID        string
	thoughtNumber    int
	confidence       float64
	isRevision       bool
	revises          int
	branchFrom       int
	branchID         string
	uncertaintyNotes string
	outcome          string
	assumptions      string
	dependsOn        string
	invalidates      string
	needsMore        bool
	nextNeeded       bool
	showVersion      bool
}

func newRootCmd() *cobra.Command {
	var (
		noColor bool
		f       thoughtFlags
	)

	rootCmd := &cobra.Command{
		Use:   "ultrathink",
		Short: "Sequential thinking with an assumption ledger",
		Long: "Record one step of a sequential problem-solving session and print the session state as JSON.\n" +
			"Thoughts can revise earlier thoughts, fork branches, and declare, depend on or invalidate assumptions.\n" +
			"Omit --session-id to start a new session; pass the returned session_id to continue it.",
		Example: `  # Start a new thinking session
  ultrathink -t "Analyze this..." -n 5

  # Continue an existing session with a confidence
  ultrathink -t "Answer is X" -n 3 -c 0.8 -s <session-id>

  # Revise or branch
  ultrathink -t "Revising..." -n 3 --is-revision --revises 2 -s <session-id>
  ultrathink -t "Alternative..." -n 3 --branch-from 1 --branch-id alt -s <session-id>

  # Declare and use assumptions
  ultrathink -t "Assuming..." -n 3 --assumptions '[{"id":"A1","text":"X is true","confidence":0.6}]'
  ultrathink -t "Given A1..." -n 3 --depends-on '["A1", "other-session:A2"]' -s <session-id>`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.Init(noColor)
			if verbose {
				ui.SetLevel("debug")
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.showVersion {
				return printJSON(cmd.OutOrStdout(), map[string]string{"version": buildVersion()}, 2)
			}
			if !cmd.Flags().Changed("thought") || !cmd.Flags().Changed("total") {
				return cmd.Help()
			}
			return runThought(cmd, &f)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&noColor, "no-color", false, "Disable colored output")
	pf.BoolVar(&verbose, "verbose", false, "Log debug diagnostics to stderr")

	fl := rootCmd.Flags()
	fl.StringVarP(&f.thought, "thought", "t", "", "The current thinking step")
	fl.IntVarP(&f.total, "total", "n", 0, "Estimated total thoughts needed")
	fl.StringVarP(&f.sessionID, "session-id", "s", "", "Session ID for continuity (omit to create a new session)")
	fl.IntVar(&f.thoughtNumber, "thought-number", 0, "Override auto-numbering (auto-assigned if omitted)")
	fl.Float64VarP(&f.confidence, "confidence", "c", 0, "Confidence level (0.0-1.0)")
	fl.BoolVar(&f.isRevision, "is-revision", false, "Mark this thought as a revision")
	fl.IntVar(&f.revises, "revises", 0, "Thought number being revised (use with --is-revision)")
	fl.IntVar(&f.branchFrom, "branch-from", 0, "Thought number to branch from")
	fl.StringVar(&f.branchID, "branch-id", "", "Identifier for the branch (use with --branch-from)")
	fl.StringVar(&f.uncertaintyNotes, "uncertainty-notes", "", "Explanation for doubts or concerns")
	fl.StringVar(&f.outcome, "outcome", "", "What was achieved or expected")
	fl.StringVar(&f.assumptions, "assumptions", "", "JSON array of assumption objects")
	fl.StringVar(&f.dependsOn, "depends-on", "", "JSON array of assumption IDs this thought depends on")
	fl.StringVar(&f.invalidates, "invalidates", "", "JSON array of assumption IDs proven false")
	fl.BoolVar(&f.needsMore, "needs-more", false, "Flag that more thoughts are needed beyond the estimate")
	fl.BoolVar(&f.nextNeeded, "next-needed", false, "Override next_thought_needed (use --next-needed=false to end)")
	fl.BoolVarP(&f.showVersion, "version", "v", false, "Show version and exit")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", thinking.ErrInvalidRequest, err)
	})

	rootCmd.AddGroup(
		&cobra.Group{ID: "session", Title: "Session Commands:"},
		&cobra.Group{ID: "config", Title: "Configuration:"},
	)

	sessionC := sessionCmd()
	sessionC.GroupID = "session"
	mcpC := mcpServeCmd()
	mcpC.GroupID = "session"

	initC := initCmd()
	initC.GroupID = "config"
	configC := configCmd()
	configC.GroupID = "config"
	doctorC := doctorCmd()
	doctorC.GroupID = "config"

	rootCmd.AddCommand(sessionC, mcpC, initC, configC, doctorC, completionCmd())
	return rootCmd
}

// request builds the thinking request from the flags that were set.
func (f *thoughtFlags) request(cmd *cobra.Command) (thinking.Request, error) {
	set := cmd.Flags().Changed
	req := thinking.Request{
		Thought:       f.thought,
		TotalThoughts: f.total,
		SessionID:     f.sessionID,
	}
	if set("thought-number") {
		req.ThoughtNumber = &f.thoughtNumber
	}
	if set("confidence") {
		req.Confidence = &f.confidence
	}
	if set("is-revision") {
		req.IsRevision = &f.isRevision
	}
	if set("revises") {
		req.RevisesThought = &f.revises
	}
	if set("branch-from") {
		req.BranchFromThought = &f.branchFrom
	}
	if set("branch-id") {
		req.BranchID = &f.branchID
	}
	if set("uncertainty-notes") {
		req.UncertaintyNotes = &f.uncertaintyNotes
	}
	if set("outcome") {
		req.Outcome = &f.outcome
	}
	if set("needs-more") {
		req.NeedsMoreThoughts = &f.needsMore
	}
	if set("next-needed") {
		req.NextThoughtNeeded = &f.nextNeeded
	}

	var err error
	if req.Assumptions, err = input.Assumptions(f.assumptions); err != nil {
		return req, err
	}
	if req.DependsOnAssumptions, err = input.IDs("depends_on_assumptions", f.dependsOn); err != nil {
		return req, err
	}
	if req.InvalidatesAssumptions, err = input.IDs("invalidates_assumptions", f.invalidates); err != nil {
		return req, err
	}
	return req, nil
}

func runThought(cmd *cobra.Command, f *thoughtFlags) error {
	req, err := f.request(cmd)
	if err != nil {
		return err
	}

	s, err := loadStore()
	if err != nil {
		return err
	}
	backend, err := s.OpenBackend(ui.Logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	svc := thinking.NewService(backend, thinking.WithLogger(ui.Logger))
	resp, err := svc.ProcessThought(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp, s.Config.Output.Indent)
}

func printJSON(w io.Writer, v any, indent int) error {
	data, err := json.MarshalIndent(v, "", strings.Repeat(" ", indent))
	if indent == 0 {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printError(w io.Writer, err error) {
	data, merr := json.MarshalIndent(thinking.NewErrorPayload(err), "", "  ")
	if merr != nil {
		fmt.Fprintln(w, err)
		return
	}
	fmt.Fprintln(w, string(data))
}

func loadStore() (*store.Store, error) {
	s, err := store.Load(store.Home())
	if err != nil {
		return nil, fmt.Errorf("cannot load configuration (run 'ultrathink doctor'): %w", err)
	}
	if !verbose {
		if err := ui.SetLevel(s.Config.Log.Level); err != nil {
			return nil, fmt.Errorf("invalid log.level in config.yaml: %w", err)
		}
	}
	return s, nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Initialize ULTRATHINK_HOME directory structure",
		Long:    "Create the ULTRATHINK_HOME directory (<tmp>/ultrathink by default) with sessions/ and config.yaml. Optional: every command works with defaults when config.yaml is missing.",
		Example: "  ultrathink init\n  ultrathink init --force",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := store.Home()
			if err := store.Init(home, force); err != nil {
				return err
			}
			ui.Success("ultrathink initialized")
			ui.Detail("Home:", home)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Reinitialize even if config.yaml already exists")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and edit ultrathink configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configSetCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(s.Config)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: "Set an ultrathink configuration value. Valid keys: " + strings.Join(store.ConfigKeys, ", ") + ".\n\n" +
			"storage.backend: file (default) and sqlite never wait on another ultrathink process; overlapping writes " +
			"to one session race and the last one wins. badger allows a single process at a time: while one call or " +
			"mcp-serve holds it, other calls fail with storage_locked.",
		Example: `  ultrathink config set storage.backend sqlite
  ultrathink config set output.indent 0
  ultrathink config set log.level info`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			if err := s.SetConfigValue(args[0], args[1]); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Set %s = %s", args[0], args[1]))
			if args[0] == "storage.backend" && args[1] == storage.BackendBadger {
				ui.Warning("badger is single-process: calls overlapping another call or mcp-serve fail with storage_locked")
			}
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check health of ULTRATHINK_HOME and stored sessions",
		Long: "Check the home layout, config.yaml and that every stored session decodes. A session that does not " +
			"decode would silently start over on next use, so it is reported here. Corrupt sessions are never deleted.\n\n" +
			"Exit status is 0 when healthy, 1 when only warnings were found and 2 on errors.",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := store.Home()
			mode := "health check"
			if fix {
				mode = "repair mode"
			}
			ui.CommandBanner("doctor", mode)

			if fix {
				repaired := store.FixIssues(home)
				for _, r := range repaired {
					ui.Success(r)
				}
				if len(repaired) == 0 {
					ui.EmptyState("Nothing to repair.")
				}
			}

			issues := diagnose(cmd.Context(), home)
			if len(issues) == 0 {
				ui.Success("Home, config and sessions look good")
				return nil
			}

			code := exitStatus(1)
			rows := make([][]string, 0, len(issues))
			for _, issue := range issues {
				severity := ui.Yellow("warning")
				if issue.Severity == "error" {
					severity = ui.Red("error")
					code = 2
				}
				rows = append(rows, []string{severity, issue.Message})
			}
			ui.Table(cmd.ErrOrStderr(), []string{"SEVERITY", "FINDING"}, rows)
			return code
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "Recreate missing directories and config.yaml, remove leftover temp files")
	return cmd
}

// diagnose runs the home checks and, when the config loads, the per-session
// integrity checks against the configured backend.
func diagnose(ctx context.Context, home string) []store.Issue {
	issues := store.CheckHealth(home)
	s, err := store.Load(home)
	if err != nil {
		return issues
	}
	backend, err := s.OpenBackend(ui.Logger)
	if err != nil {
		return append(issues, store.Issue{Severity: "error", Message: fmt.Sprintf("cannot open %s backend: %v", s.Config.Storage.Backend, err)})
	}
	defer backend.Close()
	return append(issues, store.CheckSessionIntegrity(ctx, backend)...)
}

func completionCmd() *cobra.Command {
	shells := map[string]func(*cobra.Command, io.Writer) error{
		"bash":       func(root *cobra.Command, w io.Writer) error { return root.GenBashCompletionV2(w, true) },
		"zsh":        func(root *cobra.Command, w io.Writer) error { return root.GenZshCompletion(w) },
		"fish":       func(root *cobra.Command, w io.Writer) error { return root.GenFishCompletion(w, true) },
		"powershell": func(root *cobra.Command, w io.Writer) error { return root.GenPowerShellCompletionWithDesc(w) },
	}
	return &cobra.Command{
		Use:       "completion <bash|zsh|fish|powershell>",
		Short:     "Print a shell completion script",
		Example:   "  source <(ultrathink completion bash)\n  ultrathink completion zsh > \"${fpath[1]}/_ultrathink\"",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return shells[args[0]](cmd.Root(), cmd.OutOrStdout())
		},
	}
}

func mcpServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-serve",
		Short: "Run ultrathink as an MCP server",
		Long:  "Start ultrathink as a Model Context Protocol (MCP) server over stdio. One process keeps sessions cached across tool calls.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			backend, err := s.OpenBackend(ui.Logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			svc := thinking.NewService(backend, thinking.WithLogger(ui.Logger))
			server := utmcp.NewServer(svc, backend, s.Config.MCP.Name, buildVersion())
			if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// openSession loads the store and backend for session subcommands.
func openSession() (*store.Store, storage.Backend, *thinking.Service, error) {
	s, err := loadStore()
	if err != nil {
		return nil, nil, nil, err
	}
	backend, err := s.OpenBackend(ui.Logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return s, backend, thinking.NewService(backend, thinking.WithLogger(ui.Logger)), nil
}
