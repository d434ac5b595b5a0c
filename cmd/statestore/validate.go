package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/statestore/config"
)

// validateCmd validates a script file without running it.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a script file",
	Long: `Validate a statestore script without running it.

This command parses the YAML or TOML, expands environment variables, compiles
match expressions and checks every step. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Script is valid
  1 - Script is invalid (error details printed to stderr)

Example:
  statestore validate -c script.yaml
  statestore validate --config /etc/statestore/script.toml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to script file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid script: %w", err)
	}

	selects := map[string]int{}
	for _, sub := range cfg.Subscriptions {
		selects[sub.Selects()]++
	}
	actions := map[string]int{}
	for _, step := range cfg.Steps {
		actions[step.Action()]++
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Script is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  State fields:  %d\n", len(cfg.State))
	fmt.Fprintf(out, "  Data fields:   %d\n", len(cfg.Data))
	fmt.Fprintf(out, "  Subscriptions: %d key + %d match + %d all = %d total\n",
		selects["key"], selects["match"], selects["all"], len(cfg.Subscriptions))
	fmt.Fprintf(out, "  Steps:         %d set_state + %d set_data + %d unsubscribe = %d total\n",
		actions["set_state"], actions["set_data"], actions["unsubscribe"], len(cfg.Steps))

	return nil
}
