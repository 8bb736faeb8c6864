package scheduler

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus int

const (
	TaskPending   TaskStatus = iota // Waiting for dependencies
	TaskReady                       // All dependencies completed, can be claimed
	TaskRunning                     // Claimed by a worker
	TaskCompleted                   // Finished successfully
	TaskFailed                      // Finished with error
	TaskBlocked                     // A dependency failed; will never run
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskBlocked
}

// TaskResult is the outcome of one task execution.
type TaskResult struct {
	Success      bool
	Error        string
	Duration     time.Duration
	InputTokens  int
	OutputTokens int
	Model        string
}

// Task represents a unit of work in the graph.
type Task struct {
	ID             int         // 1-based position in the task list
	Text           string      // Display text with scheduling markers removed
	Raw            string      // Line as given, markers included
	DependsOn      []int       // Task IDs this task depends on
	Parallelizable bool        // Informational; scheduling uses DependsOn only
	Status         TaskStatus
	WorkerID       int         // Worker holding the task, 0 when unassigned
	Result         *TaskResult // Populated once the task is completed or failed
}

func cloneTask(t *Task) *Task {
	c := *t
	c.DependsOn = append([]int(nil), t.DependsOn...)
	if t.Result != nil {
		r := *t.Result
		c.Result = &r
	}
	return &c
}
