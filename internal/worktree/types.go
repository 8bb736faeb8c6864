package worktree

// MergeStrategy selects how git resolves hunks that both sides touched.
type MergeStrategy int

const (
	// MergeOrt uses git's default ort strategy; overlapping edits conflict.
	MergeOrt MergeStrategy = iota
	// MergeOurs keeps the target branch side of overlapping hunks.
	MergeOurs
	// MergeTheirs keeps the worker branch side of overlapping hunks.
	MergeTheirs
)

// String returns the strategy name as used in configuration.
func (s MergeStrategy) String() string {
	switch s {
	case MergeOurs:
		return "ours"
	case MergeTheirs:
		return "theirs"
	default:
		return "ort"
	}
}

// ParseMergeStrategy maps a configuration value to a strategy. Unknown
// values fall back to MergeOrt.
func ParseMergeStrategy(s string) MergeStrategy {
	switch s {
	case "ours":
		return MergeOurs
	case "theirs":
		return MergeTheirs
	default:
		return MergeOrt
	}
}

// args returns the git merge flags for the strategy.
func (s MergeStrategy) args() []string {
	switch s {
	case MergeOurs:
		return []string{"-X", "ours"}
	case MergeTheirs:
		return []string{"-X", "theirs"}
	default:
		return nil
	}
}

// Instance describes a worktree checked out for one worker.
type Instance struct {
	Path   string // Absolute path to the worktree directory
	Branch string // Branch checked out in the worktree
	Head   string // HEAD commit at creation time, or current HEAD from List
}

// MergeOptions controls AttemptMerge.
type MergeOptions struct {
	Message  string
	Strategy MergeStrategy
}

// MergeAttempt is the outcome of merging a worker branch into the target.
//
// Exactly one of three shapes is returned:
//   - Success with CommitHash set: the merge commit exists.
//   - HasConflicts with ConflictFiles: the merge is in progress in the
//     repository root and must be finalized or aborted.
//   - Err set: the merge could not be attempted; the root is unchanged.
type MergeAttempt struct {
	Success         bool
	HasConflicts    bool
	ConflictFiles   []string
	ConflictDetails string // git output describing the conflicts
	CommitHash      string
	Err             error
}

// Config configures a GitProvider.
type Config struct {
	WorktreeDir string // Directory under the repository root for worktrees (default ".worktrees")
}
