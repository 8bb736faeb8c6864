package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveRun saves a run and its task results in one transaction.
// Saving the same run id again replaces the earlier record.
func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord, tasks []TaskRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, duration_ms, target_branch, workers,
			tasks_completed, tasks_failed, tasks_blocked,
			successful_merges, failed_merges, merge_conflicts, resolved_conflicts, total_cost, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			started_at = excluded.started_at,
			duration_ms = excluded.duration_ms,
			target_branch = excluded.target_branch,
			workers = excluded.workers,
			tasks_completed = excluded.tasks_completed,
			tasks_failed = excluded.tasks_failed,
			tasks_blocked = excluded.tasks_blocked,
			successful_merges = excluded.successful_merges,
			failed_merges = excluded.failed_merges,
			merge_conflicts = excluded.merge_conflicts,
			resolved_conflicts = excluded.resolved_conflicts,
			total_cost = excluded.total_cost,
			error = excluded.error
	`, run.ID, run.StartedAt.UTC(), run.Duration.Milliseconds(), run.TargetBranch, run.Workers,
		run.TasksCompleted, run.TasksFailed, run.TasksBlocked,
		run.SuccessfulMerges, run.FailedMerges, run.MergeConflicts, run.ResolvedConflicts, run.TotalCost, run.Err)
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	// Replace task results for this run
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_results WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to delete old task results: %w", err)
	}

	for _, t := range tasks {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_results (run_id, task_id, text, status, worker_id, error,
				duration_ms, input_tokens, output_tokens, model)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, t.TaskID, t.Text, t.Status, t.WorkerID, t.Error,
			t.Duration.Milliseconds(), t.InputTokens, t.OutputTokens, t.Model)
		if err != nil {
			return fmt.Errorf("failed to insert result for task %d: %w", t.TaskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

const runColumns = `id, started_at, duration_ms, target_branch, workers,
	tasks_completed, tasks_failed, tasks_blocked,
	successful_merges, failed_merges, merge_conflicts, resolved_conflicts, total_cost, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var run RunRecord
	var durationMs int64
	var errStr sql.NullString
	err := row.Scan(&run.ID, &run.StartedAt, &durationMs, &run.TargetBranch, &run.Workers,
		&run.TasksCompleted, &run.TasksFailed, &run.TasksBlocked,
		&run.SuccessfulMerges, &run.FailedMerges, &run.MergeConflicts, &run.ResolvedConflicts, &run.TotalCost, &errStr)
	run.Duration = time.Duration(durationMs) * time.Millisecond
	run.Err = errStr.String
	return run, err
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return &run, nil
}

// ListRuns returns runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// GetRunTasks returns the task results of a run ordered by task id.
func (s *SQLiteStore) GetRunTasks(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, text, status, worker_id, error, duration_ms, input_tokens, output_tokens, model
		FROM task_results
		WHERE run_id = ?
		ORDER BY task_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task results: %w", err)
	}
	defer rows.Close()

	var tasks []TaskRecord
	for rows.Next() {
		t := TaskRecord{RunID: runID}
		var durationMs int64
		var errStr, model sql.NullString
		if err := rows.Scan(&t.TaskID, &t.Text, &t.Status, &t.WorkerID, &errStr, &durationMs, &t.InputTokens, &t.OutputTokens, &model); err != nil {
			return nil, fmt.Errorf("failed to scan task result: %w", err)
		}
		t.Error = errStr.String
		t.Model = model.String
		t.Duration = time.Duration(durationMs) * time.Millisecond
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task results: %w", err)
	}

	return tasks, nil
}
