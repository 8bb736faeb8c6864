// Package orchestrator runs a task list across a fixed pool of workers and
// merges their branches back into the target branch.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/swarm/internal/backend"
	"github.com/aristath/swarm/internal/events"
	"github.com/aristath/swarm/internal/persistence"
	"github.com/aristath/swarm/internal/scheduler"
	"github.com/aristath/swarm/internal/worker"
	"github.com/aristath/swarm/internal/worktree"
)

// ErrDeadlock is returned when tasks remain but none can ever become ready.
var ErrDeadlock = errors.New("task graph deadlocked")

// Options configures an Orchestrator.
type Options struct {
	Tasks    []string // Raw task lines in list order
	Workers  int      // Pool size (default 3)
	Provider worktree.Provider
	Agent    backend.Agent

	Publisher events.Publisher  // Optional
	Store     persistence.Store // Optional run history

	RunID            string // Generated when empty
	WorktreeDir      string // Relative to the repository root (default ".worktrees")
	AutoCleanup      bool   // Remove worktrees after a completed run
	PreserveUnmerged bool
	MergeStrategy    worktree.MergeStrategy
	CleanupTimeout   time.Duration // Bound for cleanup after cancellation (default 30s)
}

// Orchestrator owns the dependency graph and the worker pool for one run.
type Orchestrator struct {
	opts    Options
	graph   *scheduler.Graph
	workers []*worker.Worker
	pub     events.Publisher
}

// completion is a finished task execution reported back to the loop.
type completion struct {
	w      *worker.Worker
	task   *scheduler.Task
	result scheduler.TaskResult
}

// New builds the graph and the worker pool.
func New(opts Options) (*Orchestrator, error) {
	if len(opts.Tasks) == 0 {
		return nil, fmt.Errorf("no tasks to run")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("worktree provider is required")
	}
	if opts.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.WorktreeDir == "" {
		opts.WorktreeDir = ".worktrees"
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()[:8]
	}
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = 30 * time.Second
	}

	pub := opts.Publisher
	if pub == nil {
		pub = events.Discard
	}

	graph := scheduler.NewGraph(opts.Tasks)
	if _, err := graph.Validate(); err != nil {
		log.Printf("WARNING: %v", err)
	}

	o := &Orchestrator{
		opts:  opts,
		graph: graph,
		pub:   pub,
	}
	for i := 1; i <= opts.Workers; i++ {
		o.workers = append(o.workers, worker.New(worker.Config{
			ID:               i,
			RunID:            opts.RunID,
			WorktreeDir:      opts.WorktreeDir,
			PreserveUnmerged: opts.PreserveUnmerged,
			MergeStrategy:    opts.MergeStrategy,
		}, opts.Provider, opts.Agent, pub))
	}

	return o, nil
}

// RunID returns the identifier of this run.
func (o *Orchestrator) RunID() string { return o.opts.RunID }

// Graph returns the run's dependency graph.
func (o *Orchestrator) Graph() *scheduler.Graph { return o.graph }

// Workers returns the worker pool in id order.
func (o *Orchestrator) Workers() []*worker.Worker { return o.workers }

// Run executes the task list against the repository at root and merges the
// results into baseBranch. Initialization failure, deadlock and context
// cancellation are returned as errors with a nil summary; task and merge
// failures are reported in the summary.
func (o *Orchestrator) Run(ctx context.Context, root, baseBranch string) (summary *RunSummary, err error) {
	start := time.Now()

	defer func() {
		ev := events.RunFinishedEvent{RunID: o.opts.RunID, Timestamp: time.Now()}
		if err != nil {
			ev.Err = err.Error()
		}
		o.pub.Emit(ev)
	}()

	// Clean stale worktrees from prior crashes
	if err := o.opts.Provider.PruneStale(ctx, root); err != nil {
		log.Printf("WARNING: failed to prune stale worktrees: %v", err)
	}

	if err := o.initialize(ctx, root, baseBranch); err != nil {
		o.cleanup(ctx, root)
		return nil, err
	}

	o.loop(ctx)

	if ctx.Err() != nil {
		o.cleanup(ctx, root)
		return nil, ctx.Err()
	}

	if o.graph.HasDeadlock() {
		stuck := o.graph.StuckTasks()
		o.cleanup(ctx, root)
		return nil, fmt.Errorf("%w: tasks %v can never become ready", ErrDeadlock, stuck)
	}

	summary = &RunSummary{
		RunID:        o.opts.RunID,
		StartedAt:    start,
		TargetBranch: baseBranch,
	}
	o.mergeAll(ctx, root, baseBranch, summary)

	if o.opts.AutoCleanup {
		o.cleanup(ctx, root)
	}

	stats := o.graph.Stats()
	summary.TasksCompleted = stats.Completed
	summary.TasksFailed = stats.Failed
	summary.TasksBlocked = stats.Blocked
	summary.Tasks = summarizeTasks(o.graph.Tasks())
	for _, ws := range summary.Workers {
		summary.TotalCost += ws.EstimatedCost
	}
	summary.Duration = time.Since(start)

	o.publishProgress()

	if o.opts.Store != nil {
		run, tasks := summary.Records()
		if err := o.opts.Store.SaveRun(ctx, run, tasks); err != nil {
			log.Printf("WARNING: failed to record run %s: %v", o.opts.RunID, err)
		}
	}

	return summary, nil
}

// initialize creates every worker's worktree concurrently. It is all or
// nothing: any failure is returned after every attempt has finished, so the
// caller can clean up a consistent set of worktrees.
func (o *Orchestrator) initialize(ctx context.Context, root, baseBranch string) error {
	var g errgroup.Group
	for _, w := range o.workers {
		g.Go(func() error {
			return w.Initialize(ctx, root, baseBranch)
		})
	}
	return g.Wait()
}

// loop assigns ready tasks to idle workers until nothing is running and
// nothing can be assigned. It is the only caller of ClaimTask and
// CompleteTask.
func (o *Orchestrator) loop(ctx context.Context) {
	done := make(chan completion, len(o.workers))
	idle := append([]*worker.Worker(nil), o.workers...)
	outstanding := 0

	for {
		// Assign lowest-id ready tasks to idle workers in ascending id order
		for ctx.Err() == nil && len(idle) > 0 {
			w := idle[0]
			task, ok := o.graph.ClaimTask(w.ID())
			if !ok {
				break
			}
			idle = idle[1:]
			outstanding++

			go func() {
				done <- completion{w: w, task: task, result: w.ExecuteTask(ctx, task)}
			}()
		}
		o.publishProgress()

		if outstanding == 0 {
			return
		}

		select {
		case c := <-done:
			outstanding--
			o.record(c)
			idle = append(idle, c.w)
			sort.Slice(idle, func(i, j int) bool { return idle[i].ID() < idle[j].ID() })

		case <-ctx.Done():
			// Executions see the same context; wait for them to unwind
			for ; outstanding > 0; outstanding-- {
				o.record(<-done)
			}
			o.publishProgress()
			return
		}
	}
}

func (o *Orchestrator) record(c completion) {
	if err := o.graph.CompleteTask(c.task.ID, c.result); err != nil {
		log.Printf("ERROR: failed to record result of task %d: %v", c.task.ID, err)
	}
}

// mergeAll merges every worker with completed work, one at a time. A failed
// merge never stops the phase.
func (o *Orchestrator) mergeAll(ctx context.Context, root, target string, summary *RunSummary) {
	for _, w := range o.workers {
		if w.Stats().TasksCompleted == 0 {
			summary.Workers = append(summary.Workers, summarizeWorker(w, nil))
			continue
		}

		out := w.Merge(ctx, root, target)
		if out.Success {
			summary.SuccessfulMerges++
		} else {
			summary.FailedMerges++
			log.Printf("WARNING: merge of worker %d (%s) failed: %v", w.ID(), out.Branch, out.Err)
		}
		if out.HadConflicts {
			summary.MergeConflicts++
			if out.Resolved {
				summary.ResolvedConflicts++
			}
		}

		summary.Workers = append(summary.Workers, summarizeWorker(w, &out))
	}
}

// cleanup removes every worker's worktree and then the worktree directory
// itself if nothing else is in it. It runs on a context detached from ctx's
// cancellation so that an interrupted run still cleans up.
func (o *Orchestrator) cleanup(ctx context.Context, root string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CleanupTimeout)
	defer cancel()

	for _, w := range o.workers {
		w.Cleanup(ctx, root)
	}

	// Fails harmlessly when other runs still have worktrees there
	_ = os.Remove(filepath.Join(root, o.opts.WorktreeDir))
}

func (o *Orchestrator) publishProgress() {
	s := o.graph.Stats()
	o.pub.Emit(events.GraphProgressEvent{
		Total:     s.Total,
		Pending:   s.Pending,
		Ready:     s.Ready,
		Running:   s.Running,
		Completed: s.Completed,
		Failed:    s.Failed,
		Blocked:   s.Blocked,
		Timestamp: time.Now(),
	})
}
