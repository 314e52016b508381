package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/iliyamo/eventdesk/internal/config"
	"github.com/iliyamo/eventdesk/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Deliver queued notifications",
	Long: `Consume the notifications queue and append each message to the
delivery log in NOTIFY_LOG_DIR. Reset codes reach users only through this
worker.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Notify.Enabled {
		return errors.New("notifications are disabled (NOTIFY_ENABLED=false)")
	}
	log.WithField("queue", cfg.Notify.Queue).Info("Starting notification worker")
	if err := newConsumer(cfg).Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Notification worker stopped")
	return nil
}

func newConsumer(cfg config.Config) *queue.Consumer {
	return &queue.Consumer{
		URL:    cfg.Notify.URL,
		Queue:  cfg.Notify.Queue,
		LogDir: cfg.Notify.LogDir,
		Log:    log,
	}
}
