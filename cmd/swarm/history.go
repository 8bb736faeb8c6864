package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/swarm/internal/config"
	"github.com/aristath/swarm/internal/persistence"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past runs, or show the tasks of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(repoDir)
	if err != nil {
		return err
	}
	cfg, err := config.LoadDefault(root)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.HistoryDB == "" {
		return fmt.Errorf("run history is disabled (history_db is empty)")
	}

	dbPath := filepath.Join(root, cfg.HistoryDB)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No runs recorded.")
		return nil
	}

	store, err := persistence.NewSQLiteStore(cmd.Context(), dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 {
		run, err := store.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		tasks, err := store.GetRunTasks(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printRun(os.Stdout, *run, tasks)
	}

	runs, err := store.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	return printRuns(os.Stdout, runs)
}

func printRuns(out io.Writer, runs []persistence.RunRecord) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "No runs recorded.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tDURATION\tBRANCH\tDONE\tFAILED\tBLOCKED\tMERGED\tUNMERGED\tCOST\tERROR")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t$%.4f\t%s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Duration.Round(time.Second),
			r.TargetBranch,
			r.TasksCompleted,
			r.TasksFailed,
			r.TasksBlocked,
			r.SuccessfulMerges,
			r.FailedMerges,
			r.TotalCost,
			r.Err,
		)
	}
	return w.Flush()
}

func printRun(out io.Writer, run persistence.RunRecord, tasks []persistence.TaskRecord) error {
	fmt.Fprintf(out, "Run %s on %s, started %s, took %s\n",
		run.ID, run.TargetBranch, run.StartedAt.Local().Format(time.DateTime), run.Duration.Round(time.Second))
	if run.Err != "" {
		fmt.Fprintf(out, "Stopped early: %s\n", run.Err)
	}
	fmt.Fprintf(out, "Merges: %d successful, %d with conflicts (%d resolved), %d failed\n",
		run.SuccessfulMerges, run.MergeConflicts, run.ResolvedConflicts, run.FailedMerges)
	fmt.Fprintf(out, "Estimated cost: $%.4f\n\n", run.TotalCost)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tSTATUS\tWORKER\tDURATION\tTOKENS\tTEXT")
	for _, t := range tasks {
		worker := "-"
		if t.WorkerID != 0 {
			worker = fmt.Sprintf("%d", t.WorkerID)
		}
		text := t.Text
		if t.Error != "" {
			text += " (" + t.Error + ")"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d/%d\t%s\n",
			t.TaskID, t.Status, worker, t.Duration.Round(time.Second), t.InputTokens, t.OutputTokens, text)
	}
	return w.Flush()
}
