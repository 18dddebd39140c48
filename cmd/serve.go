package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/event-registration/internal/config"
	"github.com/Shivanand-hulikatti/event-registration/internal/handler"
	"github.com/Shivanand-hulikatti/event-registration/internal/notify"
	"github.com/Shivanand-hulikatti/event-registration/internal/scheduler"
	"github.com/Shivanand-hulikatti/event-registration/internal/service"
	"github.com/Shivanand-hulikatti/event-registration/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, notification workers and reminder scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	tp, err := telemetry.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	g, gctx := errgroup.WithContext(ctx)

	dispatcher, closeDispatcher := startDispatcher(gctx, g, cfg, log)
	defer closeDispatcher()

	svc := service.New(store, dispatcher, log, service.Options{
		SchemaTTL: cfg.Cache.SchemaTTL,
		Tracer:    tp.Tracer(),
	})

	if cfg.Reminder.Enabled {
		reminders, err := scheduler.NewReminders(svc, dispatcher, cfg.Reminder, log.Named("reminders"))
		if err != nil {
			return err
		}
		reminders.Start(gctx)
		g.Go(func() error {
			<-gctx.Done()
			reminders.Stop()
			return nil
		})
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler.NewRouter(svc, cfg.Auth, cfg.Server.AllowedOrigins, log.Named("http")),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info("server stopped")
		return nil
	})

	return g.Wait()
}

// startDispatcher builds the configured notification backend and runs its
// workers in g. The returned function releases backend connections once g
// has finished.
func startDispatcher(ctx context.Context, g *errgroup.Group, cfg *config.Config, log *zap.Logger) (notify.Dispatcher, func()) {
	log = log.Named("notify")
	sender := newSender(cfg.Notify, log)

	if cfg.Notify.Backend == "redis" {
		client := newRedisClient(cfg.Redis)
		q := notify.NewRedisQueue(client, cfg.Notify.RedisKey, sender, cfg.Notify.MaxRetries, cfg.Notify.RetryBackoff, log)
		if _, err := q.Requeue(ctx); err != nil {
			log.Warn("could not requeue in-flight notifications", zap.Error(err))
		}
		for i := 0; i < cfg.Notify.Workers; i++ {
			g.Go(func() error { return q.Run(ctx) })
		}
		return q, func() { _ = client.Close() }
	}

	q := notify.NewQueue(sender, notify.QueueConfig{
		Workers:      cfg.Notify.Workers,
		QueueSize:    cfg.Notify.QueueSize,
		MaxRetries:   cfg.Notify.MaxRetries,
		RetryBackoff: cfg.Notify.RetryBackoff,
	}, log)
	q.Start(ctx)
	g.Go(func() error {
		q.Wait()
		return nil
	})
	return q, func() {}
}
