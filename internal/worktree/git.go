package worktree

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitProvider implements Provider with git worktrees.
type GitProvider struct {
	config Config
	locks  *RepoLocks
}

var _ Provider = (*GitProvider)(nil)

// NewGitProvider creates a provider that shells out to git.
func NewGitProvider(cfg Config) *GitProvider {
	if cfg.WorktreeDir == "" {
		cfg.WorktreeDir = ".worktrees"
	}
	return &GitProvider{config: cfg, locks: NewRepoLocks()}
}

// WorktreeDir returns the configured directory for worktrees, relative to
// the repository root.
func (p *GitProvider) WorktreeDir() string {
	return p.config.WorktreeDir
}

// git runs a git subcommand in dir and returns its combined output.
func (p *GitProvider) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_EDITOR=true")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("git %s failed: %w (output: %s)", args[0], err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// CreateInstance creates a worktree at path on a new branch based on base.
func (p *GitProvider) CreateInstance(ctx context.Context, root, path, branch, base string) (*Instance, error) {
	p.locks.Lock(root)
	defer p.locks.Unlock(root)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create worktree parent: %w", err)
	}

	if _, err := p.git(ctx, root, "worktree", "add", "-b", branch, path, base); err != nil {
		return nil, fmt.Errorf("failed to create worktree: %w", err)
	}

	head, err := p.git(ctx, path, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD commit: %w", err)
	}

	return &Instance{
		Path:   path,
		Branch: branch,
		Head:   strings.TrimSpace(head),
	}, nil
}

// RemoveInstance removes the worktree at path.
func (p *GitProvider) RemoveInstance(ctx context.Context, root, path string, force bool) error {
	p.locks.Lock(root)
	defer p.locks.Unlock(root)

	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)

	if _, err := p.git(ctx, root, args...); err != nil {
		return fmt.Errorf("failed to remove worktree: %w", err)
	}
	return nil
}

// AttemptMerge checks out target in root and merges branch into it with a
// merge commit. On conflict the merge is left in progress.
func (p *GitProvider) AttemptMerge(ctx context.Context, root, branch, target string, opts MergeOptions) MergeAttempt {
	p.locks.Lock(root)
	defer p.locks.Unlock(root)

	if _, err := p.git(ctx, root, "checkout", target); err != nil {
		return MergeAttempt{Err: fmt.Errorf("failed to checkout target branch: %w", err)}
	}

	message := opts.Message
	if message == "" {
		message = fmt.Sprintf("Merge %s into %s", branch, target)
	}

	args := []string{"merge", "--no-ff"}
	args = append(args, opts.Strategy.args()...)
	args = append(args, "-m", message, branch)

	output, mergeErr := p.git(ctx, root, args...)
	if mergeErr == nil {
		head, err := p.git(ctx, root, "rev-parse", "HEAD")
		if err != nil {
			return MergeAttempt{Err: fmt.Errorf("merge succeeded but HEAD is unreadable: %w", err)}
		}
		return MergeAttempt{Success: true, CommitHash: strings.TrimSpace(head)}
	}

	files, err := p.conflictedFiles(ctx, root)
	if err != nil {
		files = parseConflictFiles(output)
	}
	if len(files) == 0 {
		// Not a content conflict: dirty tree, unknown branch, etc.
		// Clear any half-started merge so the root stays usable.
		_, _ = p.git(ctx, root, "merge", "--abort")
		return MergeAttempt{Err: fmt.Errorf("merge failed: %w", mergeErr)}
	}

	return MergeAttempt{
		HasConflicts:    true,
		ConflictFiles:   files,
		ConflictDetails: conflictSummary(output),
	}
}

// ListConflictedFiles returns paths git reports as unmerged.
func (p *GitProvider) ListConflictedFiles(ctx context.Context, root string) ([]string, error) {
	return p.conflictedFiles(ctx, root)
}

func (p *GitProvider) conflictedFiles(ctx context.Context, root string) ([]string, error) {
	output, err := p.git(ctx, root, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicted files: %w", err)
	}

	var files []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// ReadConflictedFile returns the working tree content of file.
func (p *GitProvider) ReadConflictedFile(root, file string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, file))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	return string(data), nil
}

// WriteResolvedFile replaces file with content, keeping its permissions.
func (p *GitProvider) WriteResolvedFile(root, file, content string) error {
	full := filepath.Join(root, file)

	mode := os.FileMode(0644)
	if info, err := os.Stat(full); err == nil {
		mode = info.Mode().Perm()
	}

	if err := os.WriteFile(full, []byte(content), mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", file, err)
	}
	return nil
}

// StageFile adds file to the index.
func (p *GitProvider) StageFile(ctx context.Context, root, file string) error {
	if _, err := p.git(ctx, root, "add", "--", file); err != nil {
		return fmt.Errorf("failed to stage %s: %w", file, err)
	}
	return nil
}

// FinalizeMerge commits the in-progress merge with git's prepared message.
func (p *GitProvider) FinalizeMerge(ctx context.Context, root string) (string, error) {
	p.locks.Lock(root)
	defer p.locks.Unlock(root)

	if _, err := p.git(ctx, root, "commit", "--no-edit"); err != nil {
		return "", fmt.Errorf("failed to commit merge: %w", err)
	}

	head, err := p.git(ctx, root, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get merge commit: %w", err)
	}
	return strings.TrimSpace(head), nil
}

// AbortMerge runs git merge --abort.
func (p *GitProvider) AbortMerge(ctx context.Context, root string) error {
	p.locks.Lock(root)
	defer p.locks.Unlock(root)

	if _, err := p.git(ctx, root, "merge", "--abort"); err != nil {
		return fmt.Errorf("failed to abort merge: %w", err)
	}
	return nil
}

// DeleteBranch deletes branch, with -D when force is set.
func (p *GitProvider) DeleteBranch(ctx context.Context, root, branch string, force bool) error {
	p.locks.Lock(root)
	defer p.locks.Unlock(root)

	flag := "-d"
	if force {
		flag = "-D"
	}
	if _, err := p.git(ctx, root, "branch", flag, branch); err != nil {
		return fmt.Errorf("failed to delete branch %s: %w", branch, err)
	}
	return nil
}

// PruneStale cleans up stale worktree metadata.
func (p *GitProvider) PruneStale(ctx context.Context, root string) error {
	p.locks.Lock(root)
	defer p.locks.Unlock(root)

	if _, err := p.git(ctx, root, "worktree", "prune"); err != nil {
		return fmt.Errorf("failed to prune worktrees: %w", err)
	}
	return nil
}

// CommitAll stages and commits everything in the worktree at path.
func (p *GitProvider) CommitAll(ctx context.Context, path, message string) (bool, error) {
	if _, err := p.git(ctx, path, "add", "-A"); err != nil {
		return false, fmt.Errorf("failed to stage changes: %w", err)
	}

	status, err := p.git(ctx, path, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("failed to read status: %w", err)
	}
	if strings.TrimSpace(status) == "" {
		return false, nil
	}

	if _, err := p.git(ctx, path, "commit", "-m", message); err != nil {
		return false, fmt.Errorf("failed to commit changes: %w", err)
	}
	return true, nil
}

// List returns all worktrees attached to the repository at root, the main
// working tree included.
func (p *GitProvider) List(ctx context.Context, root string) ([]Instance, error) {
	output, err := p.git(ctx, root, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}

	var instances []Instance
	var current Instance

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			// Empty line ends an entry
			if current.Path != "" {
				instances = append(instances, current)
				current = Instance{}
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "worktree "):
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}

	if current.Path != "" {
		instances = append(instances, current)
	}

	return instances, nil
}

// CurrentBranch returns the branch checked out in root.
func (p *GitProvider) CurrentBranch(ctx context.Context, root string) (string, error) {
	output, err := p.git(ctx, root, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(output)
	if branch == "HEAD" {
		return "", errors.New("repository is in detached HEAD state")
	}
	return branch, nil
}

// Branches returns the local branches matching the glob pattern.
func (p *GitProvider) Branches(ctx context.Context, root, pattern string) ([]string, error) {
	output, err := p.git(ctx, root, "branch", "--format=%(refname:short)", "--list", pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	var branches []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

// parseConflictFiles extracts paths from "CONFLICT (...): Merge conflict in <file>" lines.
func parseConflictFiles(output string) []string {
	var conflicts []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "CONFLICT") && strings.Contains(line, "in ") {
			parts := strings.Split(line, "in ")
			if len(parts) > 1 {
				conflicts = append(conflicts, strings.TrimSpace(parts[len(parts)-1]))
			}
		}
	}
	return conflicts
}

// conflictSummary keeps only the CONFLICT lines of merge output.
func conflictSummary(output string) string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "CONFLICT") {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	return strings.Join(lines, "\n")
}
