package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-registration/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		if cfg.Store.Driver != "postgres" {
			return errors.New("migrate needs store.driver=postgres")
		}
		pool, err := database.NewPool(cmd.Context(), cfg.Database, log)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := database.Migrate(cmd.Context(), pool); err != nil {
			return err
		}
		log.Info("schema applied", zap.String("dbname", cfg.Database.DBName))
		return nil
	},
}
