// Package main is the entry point for the statestore CLI.
//
// statestore is usually embedded as a library. This CLI runs script files
// against a store, validates them, and serves a store over HTTP for
// inspection.
//
// Usage:
//
//	statestore run -c script.yaml      # Apply a script and print the report
//	statestore validate -c script.yaml # Validate a script
//	statestore serve -c script.yaml    # Serve a seeded store over HTTP
//	statestore version                 # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "statestore",
	Short: "An in-memory observable state store",
	Long: `statestore holds a state value and a data value in memory.

State updates are deep-merged and notify the subscriptions whose selector
covers a changed field. Data updates are shallow and notify nobody.

Quick start:
  1. Create a script file (script.yaml)
  2. Run: statestore run -c script.yaml
  3. Or serve it: statestore serve -c script.yaml

Example script:
  state:
    count: 0
  subscriptions:
    - name: counter
      key: count
  steps:
    - set_state:
        count: 1`,
	SilenceUsage: true,
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// newLogger creates a JSON logger for CLI use at the level named by the
// --log-level flag.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	name, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", name, err)
	}

	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})), nil
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this statestore binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "statestore %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
