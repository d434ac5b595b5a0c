package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/statestore"
	"github.com/jpalmerr/statestore/config"
	"github.com/jpalmerr/statestore/script"
)

// runCmd applies a script and prints the report.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a script against a fresh store",
	Long: `Run a script against a fresh store and print what happened.

The store is seeded with the script's state and data, its subscriptions
are registered, and its steps are applied in order. The report lists every
notification with the step that caused it, followed by the final state and
data, as JSON.

With --query, only the JSONPath query result over the final state is printed.

Example:
  statestore run -c script.yaml
  statestore run -c script.toml --query '$.user.name'`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", "", "path to script file (required)")
	runCmd.Flags().StringP("query", "q", "", "JSONPath query over the final state")
	runCmd.Flags().Bool("timestamp-ids", false, "use millisecond timestamp store ids instead of UUIDs")
	_ = runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load script: %w", err)
	}

	opts := []statestore.Option{statestore.WithLogger(logger)}
	if ts, _ := cmd.Flags().GetBool("timestamp-ids"); ts {
		opts = append(opts, statestore.WithTimestampIDs())
	}

	report, err := script.Run(cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to run script: %w", err)
	}

	logger.Debug("script finished",
		"store_id", report.StoreID,
		"steps", len(cfg.Steps),
		"notifications", len(report.Notifications),
	)

	var out any = report
	if query, _ := cmd.Flags().GetString("query"); query != "" {
		result, err := script.Query(report.State, query)
		if err != nil {
			return err
		}
		out = result
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
