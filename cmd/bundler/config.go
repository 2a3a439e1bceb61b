package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"bundlegraph/internal/config"
)

var (
	configForce      bool
	configShowFormat string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage bundler configuration",
	Long:  "Create and inspect the bundler.toml configuration of a project",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default bundler.toml",
	Long: `Write the default configuration to bundler.toml in the context directory.

Examples:
  bundler config init
  bundler config init -C ./app --force`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the configuration after defaults, the config file and BUNDLER_*
environment overrides are applied.`,
	RunE: runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configShowCmd.Flags().StringVar(&configShowFormat, "format", "json", "Output format (json)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(contextDir)
	if err != nil {
		return err
	}
	path := filepath.Join(root, config.ConfigFile)
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if configShowFormat != "json" {
		return fmt.Errorf("unsupported format: %s", configShowFormat)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
