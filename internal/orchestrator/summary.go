package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/swarm/internal/persistence"
	"github.com/aristath/swarm/internal/scheduler"
	"github.com/aristath/swarm/internal/worker"
)

// Merge statuses reported per worker.
const (
	MergeSkipped  = "skipped" // No completed tasks
	MergeMerged   = "merged"
	MergeResolved = "resolved" // Merged after conflict resolution
	MergeFailed   = "failed"
)

// WorkerSummary is the final state of one worker.
type WorkerSummary struct {
	ID             int           `json:"id"`
	Branch         string        `json:"branch"`
	TasksCompleted int           `json:"tasks_completed"`
	TasksFailed    int           `json:"tasks_failed"`
	InputTokens    int           `json:"input_tokens"`
	OutputTokens   int           `json:"output_tokens"`
	Duration       time.Duration `json:"duration"`
	EstimatedCost  float64       `json:"estimated_cost"`
	MergeStatus    string        `json:"merge_status"`
	MergeError     string        `json:"merge_error,omitempty"`
	ConflictFiles  []string      `json:"conflict_files,omitempty"`
}

// TaskSummary is the final state of one task.
type TaskSummary struct {
	ID           int           `json:"id"`
	Text         string        `json:"text"`
	Status       string        `json:"status"`
	WorkerID     int           `json:"worker_id,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	InputTokens  int           `json:"input_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	Model        string        `json:"model,omitempty"`
}

// RunSummary is produced once at the end of a run.
type RunSummary struct {
	RunID             string          `json:"run_id"`
	StartedAt         time.Time       `json:"started_at"`
	Duration          time.Duration   `json:"duration"`
	TargetBranch      string          `json:"target_branch"`
	Workers           []WorkerSummary `json:"workers"`
	Tasks             []TaskSummary   `json:"tasks"`
	TasksCompleted    int             `json:"tasks_completed"`
	TasksFailed       int             `json:"tasks_failed"`
	TasksBlocked      int             `json:"tasks_blocked"`
	SuccessfulMerges  int             `json:"successful_merges"`
	MergeConflicts    int             `json:"merge_conflicts"`    // Merges that hit conflicts
	ResolvedConflicts int             `json:"resolved_conflicts"` // Of those, merged after resolution
	FailedMerges      int             `json:"failed_merges"`
	TotalCost         float64         `json:"total_cost"`
}

func summarizeWorker(w *worker.Worker, out *worker.MergeOutcome) WorkerSummary {
	stats := w.Stats()
	ws := WorkerSummary{
		ID:             w.ID(),
		Branch:         w.Branch(),
		TasksCompleted: stats.TasksCompleted,
		TasksFailed:    stats.TasksFailed,
		InputTokens:    stats.InputTokens,
		OutputTokens:   stats.OutputTokens,
		Duration:       stats.Duration,
		EstimatedCost:  stats.EstimatedCost(),
		MergeStatus:    MergeSkipped,
	}

	if out == nil {
		return ws
	}
	ws.ConflictFiles = out.ConflictFiles
	switch {
	case out.Resolved:
		ws.MergeStatus = MergeResolved
	case out.Success:
		ws.MergeStatus = MergeMerged
	default:
		ws.MergeStatus = MergeFailed
		if out.Err != nil {
			ws.MergeError = out.Err.Error()
		}
	}
	return ws
}

func summarizeTasks(tasks []*scheduler.Task) []TaskSummary {
	out := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		ts := TaskSummary{
			ID:       t.ID,
			Text:     t.Text,
			Status:   t.Status.String(),
			WorkerID: t.WorkerID,
		}
		if t.Result != nil {
			ts.Error = t.Result.Error
			ts.Duration = t.Result.Duration
			ts.InputTokens = t.Result.InputTokens
			ts.OutputTokens = t.Result.OutputTokens
			ts.Model = t.Result.Model
		}
		out = append(out, ts)
	}
	return out
}

// Records converts the summary into history ledger rows.
func (s *RunSummary) Records() (persistence.RunRecord, []persistence.TaskRecord) {
	run := persistence.RunRecord{
		ID:                s.RunID,
		StartedAt:         s.StartedAt,
		Duration:          s.Duration,
		TargetBranch:      s.TargetBranch,
		Workers:           len(s.Workers),
		TasksCompleted:    s.TasksCompleted,
		TasksFailed:       s.TasksFailed,
		TasksBlocked:      s.TasksBlocked,
		SuccessfulMerges:  s.SuccessfulMerges,
		FailedMerges:      s.FailedMerges,
		MergeConflicts:    s.MergeConflicts,
		ResolvedConflicts: s.ResolvedConflicts,
		TotalCost:         s.TotalCost,
	}

	tasks := make([]persistence.TaskRecord, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		tasks = append(tasks, persistence.TaskRecord{
			RunID:        s.RunID,
			TaskID:       t.ID,
			Text:         t.Text,
			Status:       t.Status,
			WorkerID:     t.WorkerID,
			Error:        t.Error,
			Duration:     t.Duration,
			InputTokens:  t.InputTokens,
			OutputTokens: t.OutputTokens,
			Model:        t.Model,
		})
	}
	return run, tasks
}

// String renders the summary for a terminal.
func (s *RunSummary) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run %s finished in %s\n", s.RunID, s.Duration.Round(time.Second))
	fmt.Fprintf(&b, "Tasks: %d completed, %d failed, %d blocked\n", s.TasksCompleted, s.TasksFailed, s.TasksBlocked)
	fmt.Fprintf(&b, "Merges into %s: %d successful, %d with conflicts (%d resolved), %d failed\n",
		s.TargetBranch, s.SuccessfulMerges, s.MergeConflicts, s.ResolvedConflicts, s.FailedMerges)

	for _, w := range s.Workers {
		fmt.Fprintf(&b, "  worker %d: %d done, %d failed, %d/%d tokens, $%.4f, %s",
			w.ID, w.TasksCompleted, w.TasksFailed, w.InputTokens, w.OutputTokens, w.EstimatedCost, w.MergeStatus)
		if w.MergeError != "" {
			fmt.Fprintf(&b, " (%s)", w.MergeError)
		}
		b.WriteString("\n")
	}

	for _, t := range s.Tasks {
		if t.Status == scheduler.TaskCompleted.String() {
			continue
		}
		fmt.Fprintf(&b, "  task %d %s: %s", t.ID, t.Status, t.Text)
		if t.Error != "" {
			fmt.Fprintf(&b, " (%s)", t.Error)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Estimated cost: $%.4f\n", s.TotalCost)
	return b.String()
}
