package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/notify"
	"github.com/Shivanand-hulikatti/event-registration/internal/service"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [event-id...]",
	Short: "Recompute reserved seat counts from confirmed registrations",
	Long: `Recompute each event's reserved_count from its confirmed registrations
and print the before/after counts as JSON. With no arguments every event is
reconciled.

Examples:
  eventreg reconcile
  eventreg reconcile 1f0c7d1e-5c0b-4d53-9a43-3f3a2d1c9e10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		store, closeStore, err := openStore(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer closeStore()

		svc := service.New(store, notify.Discard{}, log, service.Options{})

		var results []model.ReconcileResult
		if len(args) == 0 {
			results, err = svc.ReconcileAll(cmd.Context())
		} else {
			for _, id := range args {
				var res model.ReconcileResult
				if res, err = svc.Reconcile(cmd.Context(), id); err != nil {
					break
				}
				results = append(results, res)
			}
		}

		drifted := 0
		for _, res := range results {
			if res.Drifted() {
				drifted++
			}
		}
		log.Info("reconcile finished", zap.Int("events", len(results)), zap.Int("drifted", drifted))

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(results); encErr != nil {
			return encErr
		}
		return err
	},
}
