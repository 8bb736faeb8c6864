package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// RunRecord is one finished run in the ledger.
type RunRecord struct {
	ID                string
	StartedAt         time.Time
	Duration          time.Duration
	TargetBranch      string
	Workers           int
	TasksCompleted    int
	TasksFailed       int
	TasksBlocked      int
	SuccessfulMerges  int
	FailedMerges      int // Branches left unmerged
	MergeConflicts    int
	ResolvedConflicts int
	TotalCost         float64
	Err               string // Why the run stopped early, if it did
}

// TaskRecord is the final state of one task in a run.
type TaskRecord struct {
	RunID        string
	TaskID       int
	Text         string
	Status       string
	WorkerID     int
	Error        string
	Duration     time.Duration
	InputTokens  int
	OutputTokens int
	Model        string
}

// Store defines the persistence interface for the run history.
type Store interface {
	// SaveRun records a run and the final state of its tasks.
	SaveRun(ctx context.Context, run RunRecord, tasks []TaskRecord) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	// ListRuns returns the most recent runs first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	GetRunTasks(ctx context.Context, runID string) ([]TaskRecord, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	// Create parent directories
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// _pragma applies to every pooled connection, not just the first
	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Uses a shared cache so multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	return open(ctx, "file::memory:?mode=memory&cache=shared&_pragma=foreign_keys(1)")
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection for the transaction, one for concurrent readers
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
