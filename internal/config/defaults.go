package config

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *RunConfig {
	return &RunConfig{
		Workers:          3,
		WorktreeDir:      ".worktrees",
		Model:            "adaptive",
		AutoCleanup:      true,
		PreserveUnmerged: true,
		MergeStrategy:    "ort",
		AgentType:        "claude",
		AgentCommand:     "claude",
		AgentArgs:        []string{"--dangerously-skip-permissions"},
		Retry: RetryConfig{
			InitialIntervalMs: 500,
			MaxIntervalMs:     10000,
			MaxElapsedSeconds: 120,
		},
		HistoryDB: ".swarm/history.db",
	}
}
