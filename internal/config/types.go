package config

// RetryConfig bounds the retries of conflict-resolution calls.
type RetryConfig struct {
	InitialIntervalMs int `json:"initial_interval_ms"`
	MaxIntervalMs     int `json:"max_interval_ms"`
	MaxElapsedSeconds int `json:"max_elapsed_seconds"`
}

// RunConfig is the top-level configuration.
type RunConfig struct {
	Workers     int    `json:"workers"`               // Size of the worker pool
	WorktreeDir string `json:"worktree_dir"`          // Relative to the repository root
	BaseBranch  string `json:"base_branch,omitempty"` // Empty means the branch checked out at start
	Model       string `json:"model"`                 // Concrete model id or "adaptive"

	// MaxIterations caps agent turns per task (passed as --max-turns).
	MaxIterations int `json:"max_iterations,omitempty"`

	AutoCleanup      bool   `json:"auto_cleanup"`
	PreserveUnmerged bool   `json:"preserve_unmerged"`
	MergeStrategy    string `json:"merge_strategy"` // "ort", "ours" or "theirs"

	AgentType    string   `json:"agent_type"`              // Backend type matching backend.Config.Type
	AgentCommand string   `json:"agent_command"`           // CLI binary name
	AgentArgs    []string `json:"agent_args,omitempty"`    // Placed before the generated arguments
	SystemPrompt string   `json:"system_prompt,omitempty"` // Appended to the agent's system prompt

	Retry RetryConfig `json:"retry"`

	// HistoryDB is the SQLite run ledger, relative to the repository root.
	// Empty disables history.
	HistoryDB string `json:"history_db"`
}
