package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pollwatch/config"
)

// validateCmd validates a config file without starting the service.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a pollwatch configuration file without starting the service.

This command parses the YAML, expands environment variables, validates
all fields and expands grids. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pollwatch validate -c config.yaml
  pollwatch validate --config /etc/pollwatch/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	targets, err := config.BuildTargets(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	direct := len(cfg.Targets)
	store := "memory"
	if cfg.Redis.Addr != "" {
		store = "redis " + cfg.Redis.Addr
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:      %d\n", cfg.Port)
	fmt.Fprintf(out, "  Wait time: %s\n", cfg.WaitTime.Duration())
	fmt.Fprintf(out, "  Max tries: %d\n", cfg.MaxTries)
	fmt.Fprintf(out, "  Store:     %s\n", store)
	fmt.Fprintf(out, "  Targets:   %d direct + %d from grids = %d total\n",
		direct, len(targets)-direct, len(targets))

	return nil
}
