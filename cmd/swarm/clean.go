package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/swarm/internal/config"
	"github.com/aristath/swarm/internal/worktree"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove worktrees left behind by earlier runs",
	Long: `Remove the worker worktrees of earlier runs. Worker branches hold
unmerged work and are kept unless --branches is given.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

var cleanBranches bool

func init() {
	cleanCmd.Flags().BoolVar(&cleanBranches, "branches", false, "Also delete every swarm/* branch")
}

func runClean(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(repoDir)
	if err != nil {
		return err
	}
	cfg, err := config.LoadDefault(root)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	provider := worktree.NewGitProvider(worktree.Config{WorktreeDir: cfg.WorktreeDir})
	res, err := cleanRepo(cmd.Context(), provider, root, cleanBranches)
	if err != nil {
		return err
	}

	fmt.Printf("Removed %d worktrees", res.Worktrees)
	if cleanBranches {
		fmt.Printf(" and %d branches", len(res.Branches))
	}
	fmt.Println()
	return nil
}

type cleanResult struct {
	Worktrees int
	Branches  []string
}

// branchPrefix is the namespace of every worker branch.
const branchPrefix = "swarm/"

// cleanRepo removes every worker worktree of root and, when branches is set,
// every worker branch. Individual failures are logged and skipped.
func cleanRepo(ctx context.Context, p *worktree.GitProvider, root string, branches bool) (cleanResult, error) {
	var res cleanResult

	if err := p.PruneStale(ctx, root); err != nil {
		log.Printf("WARNING: failed to prune stale worktrees: %v", err)
	}

	instances, err := p.List(ctx, root)
	if err != nil {
		return res, err
	}
	for _, inst := range instances {
		if !strings.HasPrefix(inst.Branch, branchPrefix) {
			continue
		}
		if err := p.RemoveInstance(ctx, root, inst.Path, true); err != nil {
			log.Printf("WARNING: failed to remove worktree %s: %v", inst.Path, err)
			continue
		}
		res.Worktrees++
	}

	// Fails harmlessly when the directory holds anything else
	_ = os.Remove(filepath.Join(root, p.WorktreeDir()))

	if !branches {
		return res, nil
	}

	names, err := p.Branches(ctx, root, branchPrefix+"*")
	if err != nil {
		return res, err
	}
	for _, name := range names {
		if err := p.DeleteBranch(ctx, root, name, true); err != nil {
			log.Printf("WARNING: failed to delete branch %s: %v", name, err)
			continue
		}
		res.Branches = append(res.Branches, name)
	}
	return res, nil
}
