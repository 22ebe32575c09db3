package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/looter/nuclide/internal/config"
	"github.com/looter/nuclide/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage user configuration",
		Long: `Manage the user configuration file.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/filesearch/config.yaml)
  3. Environment variables (FILESEARCH_*)

Per-root custom search commands live in .filesearch.yaml at each root.`,
		Example: `  # Create user config with defaults
  filesearch config init

  # Show effective configuration
  filesearch config show

  # Print user config file path
  filesearch config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create user configuration file",
		Long: `Create the user configuration file with default values.

With --force an existing file is backed up and rewritten with current
defaults filled in; values already set are kept.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Rewrite existing configuration (a backup is kept)")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, defaults")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	configPath := config.GetUserConfigPath()

	cfg := config.NewConfig()
	var backupPath string
	if config.UserConfigExists() {
		if !force {
			out.Warning("User configuration already exists")
			out.Statusf("📁", "Location: %s", configPath)
			out.Newline()
			out.Status("💡", "Use --force to rewrite it with new defaults (your settings are kept)")
			return nil
		}

		var err error
		if backupPath, err = config.BackupUserConfig(); err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
		existing, err := config.LoadUserConfig()
		if err != nil {
			return fmt.Errorf("failed to load existing config: %w", err)
		}
		if existing != nil {
			cfg = existing
		}
	}

	if err := os.MkdirAll(config.GetUserConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := cfg.WriteYAML(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Wrote user configuration")
	out.Statusf("📁", "Location: %s", configPath)
	if backupPath != "" {
		out.Statusf("💾", "Backup: %s", backupPath)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	out := output.New(cmd.OutOrStdout())

	var (
		cfg *config.Config
		err error
	)
	switch source {
	case "merged":
		cfg, err = config.Load()
	case "user":
		cfg, err = config.LoadUserConfig()
		if err == nil && cfg == nil {
			out.Warning("No user configuration file found")
			out.Statusf("📁", "Expected at: %s", config.GetUserConfigPath())
			out.Status("💡", "Run 'filesearch config init' to create one")
			return nil
		}
	case "defaults":
		cfg = config.NewConfig()
	default:
		return fmt.Errorf("unknown source %q (want merged, user or defaults)", source)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if jsonOutput {
		return out.JSON(cfg)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
