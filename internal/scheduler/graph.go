package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

// Stats counts tasks per status.
type Stats struct {
	Total     int
	Pending   int
	Ready     int
	Running   int
	Completed int
	Failed    int
	Blocked   int
}

// Graph tracks a fixed list of tasks and their readiness.
// Task IDs are list positions starting at 1.
type Graph struct {
	mu    sync.RWMutex
	tasks []*Task // tasks[i].ID == i+1
}

// NewGraph builds a graph from task lines in list order and computes the
// initial set of ready tasks.
func NewGraph(lines []string) *Graph {
	g := &Graph{tasks: make([]*Task, 0, len(lines))}
	for i, line := range lines {
		ann := ParseAnnotations(line)
		g.tasks = append(g.tasks, &Task{
			ID:             i + 1,
			Text:           StripDependencyMetadata(line),
			Raw:            line,
			DependsOn:      ann.DependsOn,
			Parallelizable: ann.Parallelizable,
			Status:         TaskPending,
		})
	}
	g.refreshReadiness()
	return g
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// Get returns a snapshot of the task with the given ID.
func (g *Graph) Get(id int) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	t := g.lookup(id)
	if t == nil {
		return nil, false
	}
	return cloneTask(t), true
}

// Tasks returns snapshots of all tasks in ID order.
func (g *Graph) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Task, len(g.tasks))
	for i, t := range g.tasks {
		out[i] = cloneTask(t)
	}
	return out
}

// ReadyTasks returns snapshots of all ready tasks in ID order.
func (g *Graph) ReadyTasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*Task
	for _, t := range g.tasks {
		if t.Status == TaskReady {
			ready = append(ready, cloneTask(t))
		}
	}
	return ready
}

// ClaimTask hands the lowest-ID ready task to workerID and marks it running.
// Returns false when nothing is ready.
func (g *Graph) ClaimTask(workerID int) (*Task, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, t := range g.tasks {
		if t.Status != TaskReady {
			continue
		}
		t.Status = TaskRunning
		t.WorkerID = workerID
		return cloneTask(t), true
	}
	return nil, false
}

// CompleteTask records the result of a running task and recomputes readiness.
func (g *Graph) CompleteTask(id int, result TaskResult) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.lookup(id)
	if t == nil {
		return fmt.Errorf("task %d not found", id)
	}
	if t.Status != TaskRunning {
		return fmt.Errorf("task %d is %s, not running", id, t.Status)
	}

	if result.Success {
		t.Status = TaskCompleted
	} else {
		t.Status = TaskFailed
	}
	r := result
	t.Result = &r

	g.refreshReadiness()
	return nil
}

// Stats returns per-status counts.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stats()
}

// HasDeadlock reports whether pending tasks remain that can never become
// ready: nothing is running and nothing is ready. Blocked tasks are terminal
// and do not count.
func (g *Graph) HasDeadlock() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := g.stats()
	return s.Running == 0 && s.Ready == 0 && s.Pending > 0
}

// IsComplete reports whether every task is completed, failed or blocked.
func (g *Graph) IsComplete() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := g.stats()
	return s.Pending == 0 && s.Ready == 0 && s.Running == 0
}

// StuckTasks returns the IDs of pending tasks, in order. After the execution
// loop has drained these are the tasks a deadlock left behind.
func (g *Graph) StuckTasks() []int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []int
	for _, t := range g.tasks {
		if t.Status == TaskPending {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// Validate checks that every dependency refers to a task in the list and
// that the dependency relation is acyclic. It returns the IDs in a valid
// execution order. The graph still runs when validation fails; unsatisfiable
// tasks surface as a deadlock.
func (g *Graph) Validate() ([]int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var unknown, self []string
	var edges []toposort.Edge
	for _, t := range g.tasks {
		if len(t.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, t.ID})
			continue
		}
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				self = append(self, strconv.Itoa(t.ID))
				continue
			}
			if g.lookup(dep) == nil {
				unknown = append(unknown, fmt.Sprintf("%d->%d", t.ID, dep))
				continue
			}
			// Edge (dep, id) means dep must come before id
			edges = append(edges, toposort.Edge{dep, t.ID})
		}
	}
	if len(self) > 0 {
		return nil, fmt.Errorf("tasks depend on themselves: %s", strings.Join(self, ", "))
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("dependencies on non-existent tasks: %s", strings.Join(unknown, ", "))
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("task graph contains cycle: %w", err)
	}

	order := make([]int, 0, len(g.tasks))
	found := make(map[int]bool, len(g.tasks))
	for _, id := range sorted {
		if id == nil {
			continue
		}
		n := id.(int)
		order = append(order, n)
		found[n] = true
	}

	// Tasks whose only dependencies were dropped from the edge list never
	// reach the sorted output.
	if len(order) != len(g.tasks) {
		var missing []string
		for _, t := range g.tasks {
			if !found[t.ID] {
				missing = append(missing, strconv.Itoa(t.ID))
			}
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("task graph lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

func (g *Graph) lookup(id int) *Task {
	if id < 1 || id > len(g.tasks) {
		return nil
	}
	return g.tasks[id-1]
}

func (g *Graph) stats() Stats {
	s := Stats{Total: len(g.tasks)}
	for _, t := range g.tasks {
		switch t.Status {
		case TaskPending:
			s.Pending++
		case TaskReady:
			s.Ready++
		case TaskRunning:
			s.Running++
		case TaskCompleted:
			s.Completed++
		case TaskFailed:
			s.Failed++
		case TaskBlocked:
			s.Blocked++
		}
	}
	return s
}

// refreshReadiness moves pending tasks to ready or blocked until nothing
// changes. Calling it twice in a row is a no-op. Caller must hold g.mu.
func (g *Graph) refreshReadiness() {
	for {
		changed := false
		for _, t := range g.tasks {
			if t.Status != TaskPending {
				continue
			}
			next := g.resolve(t)
			if next != TaskPending {
				t.Status = next
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

func (g *Graph) resolve(t *Task) TaskStatus {
	allDone := true
	for _, depID := range t.DependsOn {
		dep := g.lookup(depID)
		if dep == nil {
			allDone = false
			continue
		}
		switch dep.Status {
		case TaskFailed, TaskBlocked:
			return TaskBlocked
		case TaskCompleted:
		default:
			allDone = false
		}
	}
	if allDone {
		return TaskReady
	}
	return TaskPending
}
