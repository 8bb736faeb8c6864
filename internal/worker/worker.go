// Package worker runs tasks in an isolated worktree and merges the results
// back into the target branch.
//
// A worker moves through these states:
//
//	idle -> initializing -> idle           (Initialize)
//	idle -> running -> idle                (ExecuteTask, success)
//	idle -> running -> error -> idle       (ExecuteTask, failure)
//	idle -> merging -> done | error        (Merge)
//
// Initialization failure leaves the worker in error.
package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aristath/swarm/internal/backend"
	"github.com/aristath/swarm/internal/events"
	"github.com/aristath/swarm/internal/scheduler"
	"github.com/aristath/swarm/internal/worktree"
)

// State is the lifecycle state of a worker.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateMerging
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateMerging:
		return "merging"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ModelUsage is the token usage attributed to one model.
type ModelUsage struct {
	InputTokens  int
	OutputTokens int
}

// Stats accumulates over the worker's lifetime.
type Stats struct {
	TasksCompleted int
	TasksFailed    int
	InputTokens    int
	OutputTokens   int
	Duration       time.Duration // Time spent executing tasks
	ByModel        map[string]ModelUsage
}

// EstimatedCost prices the usage of every model the worker used.
func (s Stats) EstimatedCost() float64 {
	var cost float64
	for model, u := range s.ByModel {
		cost += backend.EstimateCost(model, u.InputTokens, u.OutputTokens)
	}
	return cost
}

// Config holds the per-worker settings.
type Config struct {
	ID          int    // 1-based
	RunID       string // Namespaces branch and directory names
	WorktreeDir string // Relative to the repository root
	// PreserveUnmerged keeps the branch of a worker whose completed work
	// never reached the target branch.
	PreserveUnmerged bool
	MergeStrategy    worktree.MergeStrategy
}

// InitError is returned when a worker's worktree could not be created.
type InitError struct {
	WorkerID int
	Err      error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("worker %d failed to initialize: %v", e.WorkerID, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// MergeOutcome describes the result of Worker.Merge.
type MergeOutcome struct {
	WorkerID      int
	Branch        string
	Success       bool
	HadConflicts  bool
	Resolved      bool // Conflicts were resolved and committed
	ConflictFiles []string
	CommitHash    string
	Err           error
}

// Worker executes one task at a time in its own worktree.
type Worker struct {
	cfg      Config
	provider worktree.Provider
	agent    backend.Agent
	resolver *ConflictResolver
	pub      events.Publisher

	mu          sync.Mutex
	state       State
	path        string
	branch      string
	currentTask int
	stats       Stats
	merged      bool
}

// New creates a worker. pub may be nil.
func New(cfg Config, provider worktree.Provider, agent backend.Agent, pub events.Publisher) *Worker {
	if cfg.WorktreeDir == "" {
		cfg.WorktreeDir = ".worktrees"
	}
	if pub == nil {
		pub = events.Discard
	}
	return &Worker{
		cfg:      cfg,
		provider: provider,
		agent:    agent,
		resolver: NewConflictResolver(provider, agent),
		pub:      pub,
		state:    StateIdle,
		stats:    Stats{ByModel: make(map[string]ModelUsage)},
	}
}

// ID returns the worker's 1-based id.
func (w *Worker) ID() int { return w.cfg.ID }

// State returns the current state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Path returns the worktree directory, empty before Initialize.
func (w *Worker) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// Branch returns the worker's branch, empty before Initialize.
func (w *Worker) Branch() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.branch
}

// CurrentTask returns the id of the running task, or 0.
func (w *Worker) CurrentTask() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentTask
}

// Stats returns a copy of the accumulated statistics.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.stats
	s.ByModel = make(map[string]ModelUsage, len(w.stats.ByModel))
	for k, v := range w.stats.ByModel {
		s.ByModel[k] = v
	}
	return s
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	branch := w.branch
	w.mu.Unlock()

	w.pub.Emit(events.WorkerStateEvent{
		WorkerID:  w.cfg.ID,
		State:     s.String(),
		Branch:    branch,
		Timestamp: time.Now(),
	})
}

func (w *Worker) addUsage(model string, in, out int) {
	w.stats.InputTokens += in
	w.stats.OutputTokens += out
	if model == "" || (in == 0 && out == 0) {
		return
	}
	u := w.stats.ByModel[model]
	u.InputTokens += in
	u.OutputTokens += out
	w.stats.ByModel[model] = u
}

// names returns the branch and worktree path for this worker.
func (w *Worker) names(root string) (branch, path string) {
	dir := fmt.Sprintf("worker-%d", w.cfg.ID)
	branch = "swarm/" + dir
	if w.cfg.RunID != "" {
		dir = w.cfg.RunID + "-" + dir
		branch = fmt.Sprintf("swarm/%s/worker-%d", w.cfg.RunID, w.cfg.ID)
	}
	return branch, filepath.Join(root, w.cfg.WorktreeDir, dir)
}

// Initialize creates the worker's worktree and branch from baseBranch.
func (w *Worker) Initialize(ctx context.Context, root, baseBranch string) error {
	w.setState(StateInitializing)

	branch, path := w.names(root)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		w.setState(StateError)
		return &InitError{WorkerID: w.cfg.ID, Err: err}
	}

	inst, err := w.provider.CreateInstance(ctx, root, path, branch, baseBranch)
	if err != nil {
		w.setState(StateError)
		return &InitError{WorkerID: w.cfg.ID, Err: err}
	}

	w.mu.Lock()
	w.path = inst.Path
	w.branch = inst.Branch
	w.mu.Unlock()

	w.setState(StateIdle)
	return nil
}

// ExecuteTask runs task in the worktree and returns its result. Failures
// are reported in the result, never as a panic or error return.
func (w *Worker) ExecuteTask(ctx context.Context, task *scheduler.Task) scheduler.TaskResult {
	start := time.Now()

	w.mu.Lock()
	if w.state != StateIdle {
		state := w.state
		w.mu.Unlock()
		return scheduler.TaskResult{Error: fmt.Sprintf("worker %d is %s, not idle", w.cfg.ID, state)}
	}
	w.currentTask = task.ID
	path := w.path
	w.mu.Unlock()

	w.setState(StateRunning)
	w.pub.Emit(events.TaskStartedEvent{
		TaskID:    task.ID,
		WorkerID:  w.cfg.ID,
		Text:      task.Text,
		Timestamp: start,
	})

	resp, err := w.agent.Execute(ctx, backend.TaskRequest{
		WorkDir: path,
		Prompt:  BuildTaskPrompt(task.Text),
		OnEvent: w.forward(task.ID),
	})

	var result scheduler.TaskResult
	switch {
	case err != nil:
		result.Error = err.Error()
	case !resp.Success:
		result.Error = resp.Error
	default:
		if _, cerr := w.provider.CommitAll(ctx, path, commitMessage(task.ID, task.Text)); cerr != nil {
			result.Error = fmt.Sprintf("failed to commit task changes: %v", cerr)
		} else {
			result.Success = true
		}
	}
	if resp != nil {
		result.InputTokens = resp.InputTokens
		result.OutputTokens = resp.OutputTokens
		result.Model = resp.Model
	}
	result.Duration = time.Since(start)

	w.mu.Lock()
	w.currentTask = 0
	w.stats.Duration += result.Duration
	w.addUsage(result.Model, result.InputTokens, result.OutputTokens)
	if result.Success {
		w.stats.TasksCompleted++
	} else {
		w.stats.TasksFailed++
	}
	w.mu.Unlock()

	if result.Success {
		w.pub.Emit(events.TaskCompletedEvent{
			TaskID:       task.ID,
			WorkerID:     w.cfg.ID,
			Duration:     result.Duration,
			InputTokens:  result.InputTokens,
			OutputTokens: result.OutputTokens,
			Model:        result.Model,
			Timestamp:    time.Now(),
		})
	} else {
		w.setState(StateError)
		w.pub.Emit(events.TaskFailedEvent{
			TaskID:    task.ID,
			WorkerID:  w.cfg.ID,
			Err:       result.Error,
			Duration:  result.Duration,
			Timestamp: time.Now(),
		})
	}

	// A failed task does not poison the worker
	w.setState(StateIdle)
	return result
}

// forward turns agent stream events into output events.
func (w *Worker) forward(taskID int) func(backend.StreamEvent) {
	return func(ev backend.StreamEvent) {
		line := ev.ToolAction
		if line == "" {
			line = ev.Text
		}
		if ev.Type == backend.StreamEventResult || line == "" {
			return
		}
		w.pub.Emit(events.AgentOutputEvent{
			TaskID:    taskID,
			WorkerID:  w.cfg.ID,
			Line:      line,
			Timestamp: time.Now(),
		})
	}
}

// Merge merges the worker's branch into targetBranch in root. Conflicts are
// handed to the conflict resolver; if it fails the merge is aborted and
// root is left as it was.
func (w *Worker) Merge(ctx context.Context, root, targetBranch string) MergeOutcome {
	w.setState(StateMerging)
	branch := w.Branch()

	out := MergeOutcome{WorkerID: w.cfg.ID, Branch: branch}

	attempt := w.provider.AttemptMerge(ctx, root, branch, targetBranch, worktree.MergeOptions{
		Message:  fmt.Sprintf("Merge worker %d (%s)", w.cfg.ID, branch),
		Strategy: w.cfg.MergeStrategy,
	})

	switch {
	case attempt.Err != nil:
		out.Err = attempt.Err

	case attempt.Success:
		out.Success = true
		out.CommitHash = attempt.CommitHash

	case attempt.HasConflicts:
		out.HadConflicts = true
		out.ConflictFiles = attempt.ConflictFiles
		w.resolveConflicts(ctx, root, &out)

	default:
		out.Err = fmt.Errorf("merge of %s produced no result", branch)
	}

	w.mu.Lock()
	w.merged = out.Success
	w.mu.Unlock()

	if out.Success {
		w.setState(StateDone)
	} else {
		w.setState(StateError)
	}

	ev := events.MergeEvent{
		WorkerID:      w.cfg.ID,
		Branch:        branch,
		Success:       out.Success,
		Resolved:      out.Resolved,
		ConflictFiles: out.ConflictFiles,
		CommitHash:    out.CommitHash,
		Timestamp:     time.Now(),
	}
	if out.Err != nil {
		ev.Err = out.Err.Error()
	}
	w.pub.Emit(ev)

	return out
}

func (w *Worker) resolveConflicts(ctx context.Context, root string, out *MergeOutcome) {
	res, err := w.resolver.Resolve(ctx, root, w.forward(0))

	w.mu.Lock()
	w.addUsage(res.Model, res.InputTokens, res.OutputTokens)
	w.mu.Unlock()

	if err != nil {
		out.Err = fmt.Errorf("conflict resolution failed: %w", err)
		if abortErr := w.provider.AbortMerge(ctx, root); abortErr != nil {
			log.Printf("ERROR: worker %d: failed to abort merge: %v", w.cfg.ID, abortErr)
		}
		return
	}

	hash, err := w.provider.FinalizeMerge(ctx, root)
	if err != nil {
		out.Err = err
		if abortErr := w.provider.AbortMerge(ctx, root); abortErr != nil {
			log.Printf("ERROR: worker %d: failed to abort merge: %v", w.cfg.ID, abortErr)
		}
		return
	}

	out.Success = true
	out.Resolved = true
	out.CommitHash = hash
}

// Cleanup removes the worktree and branch. It never fails; problems are
// logged. The branch is kept when it holds completed work that was never
// merged and PreserveUnmerged is set.
func (w *Worker) Cleanup(ctx context.Context, root string) {
	w.mu.Lock()
	path, branch := w.path, w.branch
	keepBranch := w.cfg.PreserveUnmerged && !w.merged && w.stats.TasksCompleted > 0
	w.mu.Unlock()

	if path == "" {
		return
	}

	if err := w.provider.RemoveInstance(ctx, root, path, true); err != nil {
		log.Printf("WARNING: worker %d: failed to remove worktree, deleting directory: %v", w.cfg.ID, err)
		if rmErr := os.RemoveAll(path); rmErr != nil {
			log.Printf("WARNING: worker %d: failed to delete %s: %v", w.cfg.ID, path, rmErr)
		}
		if pruneErr := w.provider.PruneStale(ctx, root); pruneErr != nil {
			log.Printf("WARNING: worker %d: failed to prune worktrees: %v", w.cfg.ID, pruneErr)
		}
	}

	if keepBranch {
		log.Printf("WARNING: worker %d: keeping branch %s with unmerged work", w.cfg.ID, branch)
	} else if err := w.provider.DeleteBranch(ctx, root, branch, true); err != nil {
		log.Printf("WARNING: worker %d: failed to delete branch %s: %v", w.cfg.ID, branch, err)
	}

	w.mu.Lock()
	w.path = ""
	w.mu.Unlock()
}
