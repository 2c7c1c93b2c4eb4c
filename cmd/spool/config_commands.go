package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"spool/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and bootstrap the configuration file",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write the annotated sample configuration",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveInitTarget(args)
			if err != nil {
				return err
			}

			if _, err := os.Stat(target); err == nil && !force {
				return fmt.Errorf("%s already exists; pass --force to replace it", target)
			} else if err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("check config path: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sample configuration written to %s\n", target)
			fmt.Fprintln(out, "Point staging_dir and library_dir at real storage, then start spoold.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing configuration file")
	return cmd
}

func resolveInitTarget(args []string) (string, error) {
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		return config.ExpandPath(args[0])
	}
	return config.DefaultConfigPath()
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and report the resolved settings",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var requested string
			if ctx.configFlag != nil {
				requested = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, path, exists, err := config.Load(requested)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if exists {
				fmt.Fprintf(out, "Loaded %s\n", path)
			} else {
				fmt.Fprintf(out, "No file at %s; defaults in effect\n", path)
			}
			fmt.Fprintf(out, "  staging_dir  %s\n", cfg.Paths.StagingDir)
			fmt.Fprintf(out, "  library_dir  %s\n", cfg.Paths.LibraryDir)
			fmt.Fprintf(out, "  log_dir      %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "  api_bind     %s\n", cfg.Paths.APIBind)
			fmt.Fprintf(out, "  workers      %d\n", cfg.Workers.Count)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
