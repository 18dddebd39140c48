package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/event-registration/internal/notify"
	"github.com/Shivanand-hulikatti/event-registration/internal/scheduler"
	"github.com/Shivanand-hulikatti/event-registration/internal/service"
)

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Run one reminder sweep and exit",
	Long: `Send reminders to confirmed attendees of events starting within
[now+reminder.lead, now+reminder.lead+reminder.window).

With notify.backend=redis the reminders are queued for the serve workers;
otherwise they are delivered before the command exits.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
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

		var dispatcher notify.Dispatcher
		sender := newSender(cfg.Notify, log)
		if cfg.Notify.Backend == "redis" {
			client := newRedisClient(cfg.Redis)
			defer func() { _ = client.Close() }()
			dispatcher = notify.NewRedisQueue(client, cfg.Notify.RedisKey, sender, cfg.Notify.MaxRetries, cfg.Notify.RetryBackoff, log)
		} else {
			dispatcher = notify.NewDirect(sender, cfg.Notify.MaxRetries, cfg.Notify.RetryBackoff, log)
		}

		svc := service.New(store, notify.Discard{}, log, service.Options{})
		reminders, err := scheduler.NewReminders(svc, dispatcher, cfg.Reminder, log)
		if err != nil {
			return err
		}

		sent, err := reminders.RunOnce(cmd.Context(), time.Now().UTC())
		fmt.Fprintf(cmd.OutOrStdout(), "%d reminders dispatched\n", sent)
		return err
	},
}
