package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aristath/swarm/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to the project (or global) config file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var (
	configGlobal bool
	configForce  bool
)

func init() {
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&configGlobal, "global", false, "Write ~/.swarm/config.json instead of the project file")
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(repoDir)
	if err != nil {
		return err
	}
	cfg, err := config.LoadDefault(root)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := configInitPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.Save(config.DefaultConfig(), path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func configInitPath() (string, error) {
	if configGlobal {
		return config.GlobalPath()
	}
	root, err := filepath.Abs(repoDir)
	if err != nil {
		return "", err
	}
	return config.ProjectPath(root), nil
}
