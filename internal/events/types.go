package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	Topic() string
}

// Topic constants
const (
	TopicTask   = "task"
	TopicWorker = "worker"
	TopicMerge  = "merge"
	TopicRun    = "run"
)

// Event type constants
const (
	EventTypeTaskStarted   = "task.started"
	EventTypeAgentOutput   = "task.output"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeWorkerState   = "worker.state"
	EventTypeMerge         = "merge.result"
	EventTypeGraphProgress = "run.progress"
	EventTypeRunFinished   = "run.finished"
)

// TaskStartedEvent is published when a worker begins a task.
type TaskStartedEvent struct {
	TaskID    int
	WorkerID  int
	Text      string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) Topic() string     { return TopicTask }

// AgentOutputEvent carries one line of agent activity: assistant text or a
// tool action summary.
type AgentOutputEvent struct {
	TaskID    int
	WorkerID  int
	Line      string
	Timestamp time.Time
}

func (e AgentOutputEvent) EventType() string { return EventTypeAgentOutput }
func (e AgentOutputEvent) Topic() string     { return TopicTask }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	TaskID       int
	WorkerID     int
	Duration     time.Duration
	InputTokens  int
	OutputTokens int
	Model        string
	Timestamp    time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) Topic() string     { return TopicTask }

// TaskFailedEvent is published when a task fails.
type TaskFailedEvent struct {
	TaskID    int
	WorkerID  int
	Err       string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) Topic() string     { return TopicTask }

// WorkerStateEvent is published on every worker state transition.
type WorkerStateEvent struct {
	WorkerID  int
	State     string
	Branch    string
	Timestamp time.Time
}

func (e WorkerStateEvent) EventType() string { return EventTypeWorkerState }
func (e WorkerStateEvent) Topic() string     { return TopicWorker }

// MergeEvent is published when a worker's merge finishes.
type MergeEvent struct {
	WorkerID      int
	Branch        string
	Success       bool
	Resolved      bool     // Conflicts occurred and were resolved
	ConflictFiles []string // Files that conflicted, if any
	CommitHash    string
	Err           string
	Timestamp     time.Time
}

func (e MergeEvent) EventType() string { return EventTypeMerge }
func (e MergeEvent) Topic() string     { return TopicMerge }

// GraphProgressEvent is published whenever task counts change.
type GraphProgressEvent struct {
	Total     int
	Pending   int
	Ready     int
	Running   int
	Completed int
	Failed    int
	Blocked   int
	Timestamp time.Time
}

func (e GraphProgressEvent) EventType() string { return EventTypeGraphProgress }
func (e GraphProgressEvent) Topic() string     { return TopicRun }

// RunFinishedEvent is the last event of a run.
type RunFinishedEvent struct {
	RunID     string
	Err       string
	Timestamp time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) Topic() string     { return TopicRun }
