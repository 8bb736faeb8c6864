package backend

// Config defines how the agent CLI is invoked.
type Config struct {
	Type         string   // "claude"
	Command      string   // Executable, defaults to "claude"
	Args         []string // Extra arguments placed before the generated ones
	Model        string   // Concrete model id or "adaptive"
	MaxTurns     int      // Passed as --max-turns when > 0
	SystemPrompt string   // Appended to the CLI's own system prompt
}

// TaskRequest asks the agent to carry out one task inside a worktree.
type TaskRequest struct {
	WorkDir string
	Prompt  string
	// OnEvent, when set, receives every parsed stream event in order.
	OnEvent func(StreamEvent)
}

// TaskResponse is the agent's verdict on a task.
type TaskResponse struct {
	Success      bool
	Output       string // Final result text
	Error        string // Failure reason when !Success
	Completed    bool   // The completion marker was emitted
	InputTokens  int
	OutputTokens int
	Model        string
	CostUSD      float64 // Cost reported by the CLI, 0 when absent
}

// ResolveRequest asks the agent to produce merged content for one file.
type ResolveRequest struct {
	WorkDir string
	Prompt  string
	OnEvent func(StreamEvent)
}

// ResolveResponse carries the resolved file content.
type ResolveResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
}
