package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/swarm/internal/backend"
	"github.com/aristath/swarm/internal/config"
	"github.com/aristath/swarm/internal/events"
	"github.com/aristath/swarm/internal/persistence"
	"github.com/aristath/swarm/internal/worktree"
)

// TestProcessManagerKillAllOnShutdown verifies that ProcessManager.KillAll()
// terminates tracked processes during a simulated shutdown.
func TestProcessManagerKillAllOnShutdown(t *testing.T) {
	pm := backend.NewProcessManager()

	cmd := exec.Command("sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start subprocess: %v", err)
	}
	pm.Track(cmd)
	defer pm.Untrack(cmd)

	ctx, cancel := context.WithCancel(context.Background())
	context.AfterFunc(ctx, func() { pm.KillAll() })
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected process to be killed (non-zero exit), got nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Process did not terminate after cancellation")
	}
}

// TestSignalContextCancellation verifies that signal.NotifyContext produces
// a context that cancels correctly when a signal is received.
func TestSignalContextCancellation(t *testing.T) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGUSR1)
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Failed to send SIGUSR1: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(1 * time.Second):
		t.Fatal("Context did not cancel after SIGUSR1")
	}

	if err := ctx.Err(); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestApplyRunFlags(t *testing.T) {
	cmd := &cobra.Command{}
	f := cmd.Flags()
	f.IntVar(&runWorkers, "workers", 0, "")
	f.StringVar(&runModel, "model", "", "")
	f.StringVar(&runBase, "base", "", "")
	f.StringVar(&runStrategy, "merge-strategy", "", "")
	f.IntVar(&runMaxIterations, "max-iterations", 0, "")
	f.BoolVar(&runKeepWorktrees, "keep-worktrees", false, "")

	for name, value := range map[string]string{
		"workers":        "5",
		"merge-strategy": "theirs",
		"keep-worktrees": "true",
	} {
		if err := f.Set(name, value); err != nil {
			t.Fatalf("Set(%s) failed: %v", name, err)
		}
	}

	cfg := config.DefaultConfig()
	applyRunFlags(cmd, cfg)

	if cfg.Workers != 5 {
		t.Errorf("Workers = %d, want 5", cfg.Workers)
	}
	if cfg.MergeStrategy != "theirs" {
		t.Errorf("MergeStrategy = %q, want theirs", cfg.MergeStrategy)
	}
	if cfg.AutoCleanup {
		t.Error("--keep-worktrees should disable AutoCleanup")
	}

	// Flags that were not given keep the configured values
	defaults := config.DefaultConfig()
	if cfg.Model != defaults.Model || cfg.BaseBranch != defaults.BaseBranch || cfg.MaxIterations != defaults.MaxIterations {
		t.Errorf("unset flags changed config: %+v", cfg)
	}
}

func TestDescribeEvent(t *testing.T) {
	tests := []struct {
		name  string
		event events.Event
		want  string
	}{
		{"started", events.TaskStartedEvent{TaskID: 2, WorkerID: 1, Text: "Add tests"}, "worker 1: started task 2: Add tests"},
		{"failed", events.TaskFailedEvent{TaskID: 3, WorkerID: 2, Err: "boom"}, "worker 2: task 3 failed: boom"},
		{"merged", events.MergeEvent{Branch: "swarm/x/worker-1", Success: true}, "merged swarm/x/worker-1"},
		{"resolved", events.MergeEvent{Branch: "b", Success: true, Resolved: true, ConflictFiles: []string{"a", "b"}}, "merged b after resolving 2 conflicted files"},
		{"merge failed", events.MergeEvent{Branch: "b", Err: "conflict"}, "merge of b failed: conflict"},
		{"output is skipped", events.AgentOutputEvent{Line: "Reading file"}, ""},
		{"progress is skipped", events.GraphProgressEvent{Total: 3}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeEvent(tt.event); got != tt.want {
				t.Errorf("describeEvent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	if err := printRuns(&buf, nil); err != nil {
		t.Fatalf("printRuns failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No runs recorded.") {
		t.Errorf("empty history output = %q", buf.String())
	}

	buf.Reset()
	runs := []persistence.RunRecord{
		{ID: "run2", StartedAt: time.Now(), TargetBranch: "main", TasksCompleted: 3, SuccessfulMerges: 2, FailedMerges: 1, TotalCost: 1.5},
		{ID: "run1", StartedAt: time.Now(), TargetBranch: "main", Err: "task graph deadlocked"},
	}
	if err := printRuns(&buf, runs); err != nil {
		t.Fatalf("printRuns failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got:\n%s", buf.String())
	}
	if !strings.Contains(lines[0], "UNMERGED") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "run2") || !strings.Contains(lines[1], "$1.5000") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if f := strings.Fields(lines[1]); len(f) < 11 || f[8] != "2" || f[9] != "1" {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "task graph deadlocked") {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestPrintRun(t *testing.T) {
	var buf bytes.Buffer
	run := persistence.RunRecord{ID: "abc", TargetBranch: "main", SuccessfulMerges: 2, FailedMerges: 1, MergeConflicts: 1, ResolvedConflicts: 1}
	tasks := []persistence.TaskRecord{
		{TaskID: 1, Text: "one", Status: "completed", WorkerID: 1},
		{TaskID: 2, Text: "two", Status: "blocked"},
		{TaskID: 3, Text: "three", Status: "failed", WorkerID: 2, Error: "tests fail"},
	}
	if err := printRun(&buf, run, tasks); err != nil {
		t.Fatalf("printRun failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Run abc on main",
		"Merges: 2 successful, 1 with conflicts (1 resolved), 1 failed",
		"three (tests fail)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Stopped early") {
		t.Error("run without error should not report stopping early")
	}
}

func setupTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-b", "main")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial")
	return dir
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return string(out)
}

func TestCleanRepo(t *testing.T) {
	tests := []struct {
		name         string
		branches     bool
		wantBranches int
		wantLeft     string
	}{
		{"worktrees only", false, 0, "swarm/run1/worker-1"},
		{"with branches", true, 3, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := setupTestRepo(t)
			p := worktree.NewGitProvider(worktree.Config{})
			ctx := context.Background()

			for _, name := range []string{"worker-1", "worker-2"} {
				path := filepath.Join(root, p.WorktreeDir(), "run1-"+name)
				if _, err := p.CreateInstance(ctx, root, path, "swarm/run1/"+name, "main"); err != nil {
					t.Fatalf("CreateInstance failed: %v", err)
				}
			}
			// A preserved branch without a worktree
			runGit(t, root, "branch", "swarm/run0/worker-1")
			runGit(t, root, "branch", "feature")

			res, err := cleanRepo(ctx, p, root, tt.branches)
			if err != nil {
				t.Fatalf("cleanRepo failed: %v", err)
			}
			if res.Worktrees != 2 {
				t.Errorf("removed %d worktrees, want 2", res.Worktrees)
			}
			if len(res.Branches) != tt.wantBranches {
				t.Errorf("deleted branches %v, want %d", res.Branches, tt.wantBranches)
			}

			if _, err := os.Stat(filepath.Join(root, p.WorktreeDir())); !os.IsNotExist(err) {
				t.Error("worktree directory should be removed once empty")
			}

			left := runGit(t, root, "branch", "--format=%(refname:short)", "--list", "swarm/*")
			if tt.wantLeft == "" && strings.TrimSpace(left) != "" {
				t.Errorf("swarm branches left: %q", left)
			}
			if tt.wantLeft != "" && !strings.Contains(left, tt.wantLeft) {
				t.Errorf("branch %s should be kept, have %q", tt.wantLeft, left)
			}
			if !strings.Contains(runGit(t, root, "branch", "--list", "feature"), "feature") {
				t.Error("non-worker branches must never be deleted")
			}
		})
	}
}
