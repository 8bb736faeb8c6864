package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "swarm",
	Short: "Run a task list in parallel across git worktrees",
	Long: `swarm splits a task list across a pool of workers. Each worker runs a
coding agent in its own git worktree and branch; when every task has finished
or can no longer run, the branches are merged back one at a time and merge
conflicts are handed to the agent to resolve.`,
	SilenceUsage: true,
}

var repoDir string

func init() {
	rootCmd.PersistentFlags().StringVarP(&repoDir, "repo", "C", ".", "Repository root")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
