package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var monitorSendAlerts bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print a pipeline metrics snapshot and evaluate alert thresholds",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Collector.Collect(ctx)
		if err != nil {
			return err
		}

		alerts := env.Alerter.Evaluate(snap)
		if monitorSendAlerts && len(alerts) > 0 {
			sent := env.Alerter.SendAlerts(ctx, alerts)
			zap.L().Info("alerts dispatched", zap.Int("sent", sent))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"metrics": snap,
			"alerts":  alerts,
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Relaunch failed runs whose retry window has passed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		relaunched, err := env.Driver.SweepFailedRuns(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("sweep complete", zap.Int("relaunched", relaunched))

		// Relaunched runs execute in the background; wait for them before
		// tearing down the store.
		shutdownCtx, cancel := newShutdownContext()
		defer cancel()
		return env.Driver.Shutdown(shutdownCtx)
	},
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorSendAlerts, "send-alerts", false, "deliver triggered alerts to the configured webhook")
	rootCmd.AddCommand(monitorCmd, sweepCmd)
}
