// Package main is the entry point for the pollwatch CLI.
//
// pollwatch can be used as a library or as a standalone binary with YAML
// configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	pollwatch serve -c config.yaml      # Poll configured targets and serve the API
//	pollwatch watch <url> [<url>...]    # Poll until done, then exit
//	pollwatch validate -c config.yaml   # Validate configuration
//	pollwatch version                   # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "pollwatch",
	Short: "Poll long-running job status endpoints until they finish",
	Long: `pollwatch polls HTTP status resources of long-running jobs, such as
a data file upload being processed, until a success check passes, a fatal
error occurs, or the attempt budget runs out.

Quick start:
  pollwatch watch https://tdp.example.gov/v1/data_files/42/summary/

Or run it as a service with a config file:
  1. Create a config file (pollwatch.yaml)
  2. Run: pollwatch serve -c pollwatch.yaml
  3. Follow sessions at http://localhost:8080/api/sessions

Example config:
  port: 8080
  wait_time: 2s
  max_tries: 30
  targets:
    - id: file-42
      url: https://tdp.example.gov/v1/data_files/42/summary/
      success: status:Pending`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this pollwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pollwatch %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger on stderr for CLI use.
func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})), nil
}

// logLevel returns the --log-level flag, or fallback when it was not set.
func logLevel(cmd *cobra.Command, fallback string) string {
	f := cmd.Flag("log-level")
	if f == nil {
		return fallback
	}
	if !f.Changed && fallback != "" {
		return fallback
	}
	return f.Value.String()
}
