package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aristath/swarm/internal/backend"
	"github.com/aristath/swarm/internal/worktree"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Keys absent from a file keep their earlier value.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*RunConfig, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Merge global config if exists
	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	// Merge project config if exists (highest precedence)
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// GlobalPath returns ~/.swarm/config.json.
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".swarm", "config.json"), nil
}

// ProjectPath returns the project config path under root.
func ProjectPath(root string) string {
	return filepath.Join(root, ".swarm", "config.json")
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.swarm/config.json
// Project: <root>/.swarm/config.json
func LoadDefault(root string) (*RunConfig, error) {
	globalPath, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return Load(globalPath, ProjectPath(root))
}

// mergeConfigFile decodes a JSON config file on top of base.
// Missing files are silently skipped. Malformed JSON returns an error.
func mergeConfigFile(base *RunConfig, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil // Missing file is not an error
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	// Decoding into the populated struct only overwrites keys present in the file
	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return nil
}

// Validate reports the first invalid setting.
func (c *RunConfig) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.WorktreeDir == "" || filepath.IsAbs(c.WorktreeDir) || strings.HasPrefix(filepath.Clean(c.WorktreeDir), "..") {
		return fmt.Errorf("worktree_dir must be a path inside the repository, got %q", c.WorktreeDir)
	}
	switch c.MergeStrategy {
	case "", "ort", "ours", "theirs":
	default:
		return fmt.Errorf("unknown merge_strategy %q (want ort, ours or theirs)", c.MergeStrategy)
	}
	if strings.TrimSpace(c.AgentCommand) == "" {
		return fmt.Errorf("agent_command must not be empty")
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must not be negative")
	}
	return nil
}

// Strategy returns the parsed merge strategy.
func (c *RunConfig) Strategy() worktree.MergeStrategy {
	return worktree.ParseMergeStrategy(c.MergeStrategy)
}

// BackendConfig returns the agent settings.
func (c *RunConfig) BackendConfig() backend.Config {
	return backend.Config{
		Type:         c.AgentType,
		Command:      c.AgentCommand,
		Args:         c.AgentArgs,
		Model:        c.Model,
		MaxTurns:     c.MaxIterations,
		SystemPrompt: c.SystemPrompt,
	}
}

// RetryConfig returns the retry settings, falling back to the backend
// defaults for unset values.
func (c *RunConfig) RetryConfig() backend.RetryConfig {
	rc := backend.DefaultRetryConfig()
	if c.Retry.InitialIntervalMs > 0 {
		rc.InitialInterval = time.Duration(c.Retry.InitialIntervalMs) * time.Millisecond
	}
	if c.Retry.MaxIntervalMs > 0 {
		rc.MaxInterval = time.Duration(c.Retry.MaxIntervalMs) * time.Millisecond
	}
	if c.Retry.MaxElapsedSeconds > 0 {
		rc.MaxElapsedTime = time.Duration(c.Retry.MaxElapsedSeconds) * time.Second
	}
	return rc
}
