package worktree

import "context"

// Provider creates and merges isolated working copies of one repository.
// root is always the repository root; path is a worktree directory.
type Provider interface {
	// CreateInstance checks out a new branch from base into path.
	CreateInstance(ctx context.Context, root, path, branch, base string) (*Instance, error)
	// RemoveInstance deletes the worktree at path.
	RemoveInstance(ctx context.Context, root, path string, force bool) error
	// AttemptMerge merges branch into target inside root.
	AttemptMerge(ctx context.Context, root, branch, target string, opts MergeOptions) MergeAttempt
	// ListConflictedFiles returns the unmerged paths of an in-progress merge.
	ListConflictedFiles(ctx context.Context, root string) ([]string, error)
	// ReadConflictedFile returns the content of file, conflict markers included.
	ReadConflictedFile(root, file string) (string, error)
	// WriteResolvedFile overwrites file with resolved content.
	WriteResolvedFile(root, file, content string) error
	// StageFile marks file as resolved.
	StageFile(ctx context.Context, root, file string) error
	// FinalizeMerge commits an in-progress merge and returns the commit hash.
	FinalizeMerge(ctx context.Context, root string) (string, error)
	// AbortMerge restores root to its state before AttemptMerge.
	AbortMerge(ctx context.Context, root string) error
	// DeleteBranch removes branch from root.
	DeleteBranch(ctx context.Context, root, branch string, force bool) error
	// PruneStale drops metadata of worktrees whose directories are gone.
	PruneStale(ctx context.Context, root string) error
	// CommitAll commits every change in the worktree at path. It reports
	// false when there was nothing to commit.
	CommitAll(ctx context.Context, path, message string) (bool, error)
}
