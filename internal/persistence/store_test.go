package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// testStore creates an in-memory store for testing and registers cleanup.
func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func sampleRun(id string, started time.Time) RunRecord {
	return RunRecord{
		ID:                id,
		StartedAt:         started,
		Duration:          90 * time.Second,
		TargetBranch:      "main",
		Workers:           3,
		TasksCompleted:    4,
		TasksFailed:       1,
		TasksBlocked:      1,
		SuccessfulMerges:  2,
		FailedMerges:      1,
		MergeConflicts:    1,
		ResolvedConflicts: 1,
		TotalCost:         1.25,
	}
}

func TestSaveAndGetRun(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := sampleRun("run-get", started)
	run.Err = "deadlock"
	tasks := []TaskRecord{
		{TaskID: 2, Text: "second", Status: "failed", WorkerID: 1, Error: "tests fail", Duration: 2 * time.Second},
		{TaskID: 1, Text: "first", Status: "completed", WorkerID: 2, InputTokens: 100, OutputTokens: 40, Model: "claude-sonnet-4-5"},
	}

	if err := store.SaveRun(ctx, run, tasks); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := store.GetRun(ctx, "run-get")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Duration != run.Duration || got.TotalCost != run.TotalCost || got.Err != "deadlock" {
		t.Errorf("run = %+v", got)
	}
	if got.ResolvedConflicts != 1 || got.MergeConflicts != 1 || got.SuccessfulMerges != 2 || got.FailedMerges != 1 {
		t.Errorf("merge counters = %+v", got)
	}

	results, err := store.GetRunTasks(ctx, "run-get")
	if err != nil {
		t.Fatalf("GetRunTasks failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].TaskID != 1 || results[1].TaskID != 2 {
		t.Errorf("results not ordered by task id: %+v", results)
	}
	if results[0].Model != "claude-sonnet-4-5" || results[0].InputTokens != 100 {
		t.Errorf("first result = %+v", results[0])
	}
	if results[1].Error != "tests fail" || results[1].Duration != 2*time.Second {
		t.Errorf("second result = %+v", results[1])
	}
	if results[1].RunID != "run-get" {
		t.Errorf("RunID = %q", results[1].RunID)
	}
}

func TestSaveRunIdempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	run := sampleRun("run-idem", time.Now())
	tasks := []TaskRecord{{TaskID: 1, Text: "a", Status: "running"}}
	if err := store.SaveRun(ctx, run, tasks); err != nil {
		t.Fatalf("first SaveRun failed: %v", err)
	}

	run.TasksCompleted = 5
	tasks[0].Status = "completed"
	if err := store.SaveRun(ctx, run, tasks); err != nil {
		t.Fatalf("second SaveRun failed: %v", err)
	}

	got, err := store.GetRun(ctx, "run-idem")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.TasksCompleted != 5 {
		t.Errorf("TasksCompleted = %d, want 5", got.TasksCompleted)
	}

	results, _ := store.GetRunTasks(ctx, "run-idem")
	if len(results) != 1 || results[0].Status != "completed" {
		t.Errorf("results = %+v", results)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.GetRun(context.Background(), "missing")
	if err == nil || !strings.Contains(err.Error(), "run not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"list-a", "list-b", "list-c"} {
		if err := store.SaveRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour)), nil); err != nil {
			t.Fatalf("SaveRun(%s) failed: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "list-c" || runs[2].ID != "list-a" {
		t.Errorf("runs not newest first: %s, %s, %s", runs[0].ID, runs[1].ID, runs[2].ID)
	}

	limited, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns(2) failed: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "list-c" {
		t.Errorf("limited = %+v", limited)
	}
}

func TestSQLiteStoreOnDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	store, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := store.SaveRun(ctx, sampleRun("disk", time.Now()), nil); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	store.Close()

	// Reopen and read back
	store, err = NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()

	if _, err := store.GetRun(ctx, "disk"); err != nil {
		t.Errorf("run lost after reopen: %v", err)
	}
}

func TestSchemaUpgradeAddsFailedMerges(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	// A runs table from before failed merges were recorded
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.ExecContext(ctx, `CREATE TABLE runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		target_branch TEXT NOT NULL,
		workers INTEGER NOT NULL,
		tasks_completed INTEGER NOT NULL,
		tasks_failed INTEGER NOT NULL,
		tasks_blocked INTEGER NOT NULL,
		successful_merges INTEGER NOT NULL,
		merge_conflicts INTEGER NOT NULL,
		resolved_conflicts INTEGER NOT NULL,
		total_cost REAL NOT NULL,
		error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO runs (id, started_at, duration_ms, target_branch, workers,
		tasks_completed, tasks_failed, tasks_blocked, successful_merges, merge_conflicts, resolved_conflicts, total_cost)
		VALUES ('old', ?, 0, 'main', 1, 1, 0, 0, 1, 0, 0, 0)`, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	store, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	old, err := store.GetRun(ctx, "old")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if old.FailedMerges != 0 || old.SuccessfulMerges != 1 {
		t.Errorf("old run = %+v", old)
	}

	run := sampleRun("new", time.Now())
	run.FailedMerges = 2
	if err := store.SaveRun(ctx, run, nil); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	got, err := store.GetRun(ctx, "new")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.FailedMerges != 2 {
		t.Errorf("FailedMerges = %d, want 2", got.FailedMerges)
	}
}

func TestCascadeDelete(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.SaveRun(ctx, sampleRun("cascade", time.Now()), []TaskRecord{{TaskID: 1, Text: "x", Status: "completed"}}); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if _, err := store.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, "cascade"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	results, err := store.GetRunTasks(ctx, "cascade")
	if err != nil {
		t.Fatalf("GetRunTasks failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("task results survived run deletion: %+v", results)
	}
}
