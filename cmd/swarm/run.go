package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/swarm/internal/backend"
	"github.com/aristath/swarm/internal/config"
	"github.com/aristath/swarm/internal/events"
	"github.com/aristath/swarm/internal/orchestrator"
	"github.com/aristath/swarm/internal/persistence"
	"github.com/aristath/swarm/internal/tasklist"
	"github.com/aristath/swarm/internal/tui"
	"github.com/aristath/swarm/internal/worktree"
)

var runCmd = &cobra.Command{
	Use:   "run <tasks-file>",
	Short: "Run every task in a task file",
	Long: `Run every task in a task file. The file is a markdown checklist, a YAML
list or plain lines. A task may carry [depends: 1, 2] to wait for earlier
tasks (numbered from 1 in file order) and [parallel: true] as a hint.
Checked checklist items keep their number and count as already done.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runWorkers       int
	runModel         string
	runBase          string
	runStrategy      string
	runMaxIterations int
	runKeepWorktrees bool
	runNoTUI         bool
	runJSON          bool
)

func init() {
	f := runCmd.Flags()
	f.IntVarP(&runWorkers, "workers", "w", 0, "Number of parallel workers")
	f.StringVarP(&runModel, "model", "m", "", "Agent model id or \"adaptive\"")
	f.StringVarP(&runBase, "base", "b", "", "Branch to fork workers from and merge into (default: current branch)")
	f.StringVar(&runStrategy, "merge-strategy", "", "Merge strategy: ort, ours or theirs")
	f.IntVar(&runMaxIterations, "max-iterations", 0, "Maximum agent turns per task")
	f.BoolVar(&runKeepWorktrees, "keep-worktrees", false, "Leave worker worktrees in place after the run")
	f.BoolVar(&runNoTUI, "no-tui", false, "Log progress to stderr instead of showing the live view")
	f.BoolVar(&runJSON, "json", false, "Print the run summary as JSON")
}

// applyRunFlags overrides cfg with the flags given on the command line.
func applyRunFlags(cmd *cobra.Command, cfg *config.RunConfig) {
	f := cmd.Flags()
	if f.Changed("workers") {
		cfg.Workers = runWorkers
	}
	if f.Changed("model") {
		cfg.Model = runModel
	}
	if f.Changed("base") {
		cfg.BaseBranch = runBase
	}
	if f.Changed("merge-strategy") {
		cfg.MergeStrategy = runStrategy
	}
	if f.Changed("max-iterations") {
		cfg.MaxIterations = runMaxIterations
	}
	if f.Changed("keep-worktrees") {
		cfg.AutoCleanup = !runKeepWorktrees
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(repoDir)
	if err != nil {
		return err
	}

	cfg, err := config.LoadDefault(root)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tasks, err := tasklist.Load(args[0])
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no tasks found in %s", args[0])
	}

	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	provider := worktree.NewGitProvider(worktree.Config{WorktreeDir: cfg.WorktreeDir})

	base := cfg.BaseBranch
	if base == "" {
		base, err = provider.CurrentBranch(ctx, root)
		if err != nil {
			return fmt.Errorf("cannot determine base branch (set base_branch or --base): %w", err)
		}
	}

	// Agent processes run in their own process groups; kill them all once
	// the run is cancelled
	pm := backend.NewProcessManager()
	context.AfterFunc(ctx, func() {
		if err := pm.KillAll(); err != nil {
			log.Printf("ERROR: failed to kill agent processes: %v", err)
		}
	})

	inner, err := backend.New(cfg.BackendConfig(), pm)
	if err != nil {
		return err
	}
	agent := backend.NewResilientAgent(inner, cfg.AgentCommand, backend.NewCircuitBreakerRegistry(), cfg.RetryConfig())

	var store persistence.Store
	if cfg.HistoryDB != "" {
		s, err := persistence.NewSQLiteStore(ctx, filepath.Join(root, cfg.HistoryDB))
		if err != nil {
			log.Printf("WARNING: run history disabled: %v", err)
		} else {
			defer s.Close()
			store = s
		}
	}

	bus := events.NewEventBus()
	defer bus.Close()

	orch, err := orchestrator.New(orchestrator.Options{
		Tasks:            tasks,
		Workers:          cfg.Workers,
		Provider:         provider,
		Agent:            agent,
		Publisher:        bus,
		Store:            store,
		WorktreeDir:      cfg.WorktreeDir,
		AutoCleanup:      cfg.AutoCleanup,
		PreserveUnmerged: cfg.PreserveUnmerged,
		MergeStrategy:    cfg.Strategy(),
	})
	if err != nil {
		return err
	}

	start := time.Now()
	var summary *orchestrator.RunSummary
	if runNoTUI {
		summary, err = runPlain(ctx, orch, bus, root, base)
	} else {
		summary, err = runWithTUI(ctx, cancel, orch, bus, root, base)
	}
	if err != nil {
		if store != nil {
			recordAbortedRun(context.WithoutCancel(ctx), store, persistence.RunRecord{
				ID:           orch.RunID(),
				StartedAt:    start,
				Duration:     time.Since(start),
				TargetBranch: base,
				Workers:      cfg.Workers,
				Err:          err.Error(),
			})
		}
		return fmt.Errorf("run %s: %w", orch.RunID(), err)
	}

	if runJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	} else {
		fmt.Print(summary.String())
	}

	if n := summary.TasksFailed + summary.TasksBlocked; n > 0 || summary.FailedMerges > 0 {
		return fmt.Errorf("run %s: %d tasks did not complete, %d merges failed", summary.RunID, n, summary.FailedMerges)
	}
	return nil
}

func recordAbortedRun(ctx context.Context, store persistence.Store, run persistence.RunRecord) {
	if err := store.SaveRun(ctx, run, nil); err != nil {
		log.Printf("WARNING: failed to record run %s: %v", run.ID, err)
	}
}

type runResult struct {
	summary *orchestrator.RunSummary
	err     error
}

// runWithTUI shows the live view while the run executes. Quitting the view
// early cancels the run; the run still cleans up before this returns.
func runWithTUI(ctx context.Context, cancel context.CancelFunc, orch *orchestrator.Orchestrator, bus *events.EventBus, root, base string) (*orchestrator.RunSummary, error) {
	logFile, err := openLogFile(root)
	if err != nil {
		return nil, err
	}
	defer logFile.Close()
	log.SetOutput(logFile)
	defer log.SetOutput(os.Stderr)
	defer func() {
		if n := bus.Dropped(); n > 0 {
			log.Printf("WARNING: %d events were not delivered to the live view", n)
		}
	}()

	// The model subscribes in New, before any event is published
	p := tea.NewProgram(tui.New(bus, orch.RunID(), cancel), tea.WithAltScreen())

	done := make(chan runResult, 1)
	go func() {
		summary, err := orch.Run(ctx, root, base)
		done <- runResult{summary, err}
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("TUI error: %w", err)
	}

	select {
	case r := <-done:
		return r.summary, r.err
	default:
		fmt.Fprintln(os.Stderr, "Stopping run, cleaning up worktrees...")
	}
	r := <-done
	return r.summary, r.err
}

// runPlain logs progress to stderr and runs to completion.
func runPlain(ctx context.Context, orch *orchestrator.Orchestrator, bus *events.EventBus, root, base string) (*orchestrator.RunSummary, error) {
	sub := bus.Subscribe(1024, events.TopicTask, events.TopicMerge)
	go func() {
		for ev := range sub {
			if line := describeEvent(ev); line != "" {
				log.Print(line)
			}
		}
	}()

	log.Printf("Run %s: %d workers, merging into %s", orch.RunID(), len(orch.Workers()), base)
	return orch.Run(ctx, root, base)
}

// describeEvent renders the events worth a log line; agent output and
// progress counts are left to the TUI.
func describeEvent(ev events.Event) string {
	switch e := ev.(type) {
	case events.TaskStartedEvent:
		return fmt.Sprintf("worker %d: started task %d: %s", e.WorkerID, e.TaskID, e.Text)
	case events.TaskCompletedEvent:
		return fmt.Sprintf("worker %d: completed task %d in %s (%d/%d tokens)",
			e.WorkerID, e.TaskID, e.Duration.Round(time.Second), e.InputTokens, e.OutputTokens)
	case events.TaskFailedEvent:
		return fmt.Sprintf("worker %d: task %d failed: %s", e.WorkerID, e.TaskID, e.Err)
	case events.MergeEvent:
		switch {
		case e.Resolved:
			return fmt.Sprintf("merged %s after resolving %d conflicted files", e.Branch, len(e.ConflictFiles))
		case e.Success:
			return fmt.Sprintf("merged %s", e.Branch)
		default:
			return fmt.Sprintf("merge of %s failed: %s", e.Branch, e.Err)
		}
	}
	return ""
}

// openLogFile opens the run log next to the project config.
func openLogFile(root string) (*os.File, error) {
	dir := filepath.Dir(config.ProjectPath(root))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "swarm.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
