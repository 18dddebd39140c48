// cmd/main.go is the application entry point.
// It wires together all layers behind the eventreg command tree.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-registration/internal/config"
	"github.com/Shivanand-hulikatti/event-registration/internal/database"
	"github.com/Shivanand-hulikatti/event-registration/internal/logger"
	"github.com/Shivanand-hulikatti/event-registration/internal/notify"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "eventreg",
	Short:         "Event registration under capacity",
	Long:          `eventreg serves the event registration API and runs its maintenance tasks.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (environment variables with the EVENTREG_ prefix override it)")
	rootCmd.AddCommand(serveCmd, migrateCmd, reconcileCmd, remindCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the logger every command shares.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.App.Environment, cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log.With(zap.String("app", cfg.App.Name)), nil
}

// openStore returns the configured store and a function that releases it.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Store, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		log.Warn("using in-memory store; data is lost on exit")
		return repository.NewMemoryStore(), func() {}, nil
	default:
		pool, err := database.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		log.Info("connected to PostgreSQL", zap.String("host", cfg.Database.Host), zap.String("dbname", cfg.Database.DBName))
		return repository.NewPostgresStore(pool), pool.Close, nil
	}
}

// newSender returns the configured email sender.
func newSender(cfg config.NotifyConfig, log *zap.Logger) notify.Sender {
	if cfg.Sender == "sendgrid" {
		return notify.NewSendGridSender(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.SendGrid.FromName)
	}
	return notify.NewLogSender(log.Named("email"))
}

func newRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
