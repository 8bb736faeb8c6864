package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aristath/swarm/internal/worktree"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	if content == "" {
		return ""
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		globalConfig  string
		projectConfig string
		check         func(t *testing.T, cfg *RunConfig)
	}{
		{
			name: "No config files - returns defaults",
			check: func(t *testing.T, cfg *RunConfig) {
				if cfg.Workers != 3 || cfg.Model != "adaptive" || !cfg.AutoCleanup || !cfg.PreserveUnmerged {
					t.Errorf("defaults = %+v", cfg)
				}
			},
		},
		{
			name:         "Global only - overrides listed keys",
			globalConfig: `{"workers": 5, "model": "claude-opus-4-5"}`,
			check: func(t *testing.T, cfg *RunConfig) {
				if cfg.Workers != 5 || cfg.Model != "claude-opus-4-5" {
					t.Errorf("cfg = %+v", cfg)
				}
				if cfg.WorktreeDir != ".worktrees" {
					t.Errorf("unlisted key lost its default: %q", cfg.WorktreeDir)
				}
			},
		},
		{
			name:          "Project overrides global - project wins",
			globalConfig:  `{"workers": 5, "merge_strategy": "ours"}`,
			projectConfig: `{"workers": 2}`,
			check: func(t *testing.T, cfg *RunConfig) {
				if cfg.Workers != 2 {
					t.Errorf("Workers = %d, want 2", cfg.Workers)
				}
				if cfg.MergeStrategy != "ours" {
					t.Errorf("MergeStrategy = %q, want global value", cfg.MergeStrategy)
				}
			},
		},
		{
			name:          "Nested retry merges per key",
			projectConfig: `{"retry": {"max_elapsed_seconds": 10}}`,
			check: func(t *testing.T, cfg *RunConfig) {
				if cfg.Retry.MaxElapsedSeconds != 10 || cfg.Retry.InitialIntervalMs != 500 {
					t.Errorf("Retry = %+v", cfg.Retry)
				}
			},
		},
		{
			name:          "Explicit false and empty values apply",
			projectConfig: `{"auto_cleanup": false, "history_db": "", "agent_args": []}`,
			check: func(t *testing.T, cfg *RunConfig) {
				if cfg.AutoCleanup || cfg.HistoryDB != "" || len(cfg.AgentArgs) != 0 {
					t.Errorf("cfg = %+v", cfg)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			globalPath := writeConfig(t, tmpDir, "global.json", tt.globalConfig)
			projectPath := writeConfig(t, tmpDir, "project.json", tt.projectConfig)

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	tmpDir := t.TempDir()
	globalPath := writeConfig(t, tmpDir, "global.json", "{invalid json")

	_, err := Load(globalPath, "")
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
	if !strings.Contains(err.Error(), "global.json") {
		t.Errorf("error should mention the file: %v", err)
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}
	if cfg.AgentCommand != "claude" {
		t.Errorf("AgentCommand = %q, want default", cfg.AgentCommand)
	}
}

func TestProjectPath(t *testing.T) {
	if got := ProjectPath("/repo"); got != filepath.Join("/repo", ".swarm", "config.json") {
		t.Errorf("ProjectPath = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*RunConfig)
		wantErr string
	}{
		{"defaults are valid", func(*RunConfig) {}, ""},
		{"zero workers", func(c *RunConfig) { c.Workers = 0 }, "workers"},
		{"absolute worktree dir", func(c *RunConfig) { c.WorktreeDir = "/tmp/wt" }, "worktree_dir"},
		{"escaping worktree dir", func(c *RunConfig) { c.WorktreeDir = "../wt" }, "worktree_dir"},
		{"unknown strategy", func(c *RunConfig) { c.MergeStrategy = "octopus" }, "merge_strategy"},
		{"blank agent command", func(c *RunConfig) { c.AgentCommand = " " }, "agent_command"},
		{"negative iterations", func(c *RunConfig) { c.MaxIterations = -1 }, "max_iterations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeStrategy = "theirs"
	cfg.MaxIterations = 25
	cfg.Retry = RetryConfig{InitialIntervalMs: 250}

	if cfg.Strategy() != worktree.MergeTheirs {
		t.Errorf("Strategy = %v", cfg.Strategy())
	}

	bc := cfg.BackendConfig()
	if bc.Command != "claude" || bc.MaxTurns != 25 || bc.Model != "adaptive" || len(bc.Args) != 1 {
		t.Errorf("BackendConfig = %+v", bc)
	}

	rc := cfg.RetryConfig()
	if rc.InitialInterval != 250*time.Millisecond {
		t.Errorf("InitialInterval = %v", rc.InitialInterval)
	}
	if rc.MaxInterval != 10*time.Second {
		t.Errorf("unset MaxInterval should use the default, got %v", rc.MaxInterval)
	}
}
