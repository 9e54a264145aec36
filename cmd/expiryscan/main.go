// Command expiryscan runs the daily circulation sweep: it reminds
// members about loans falling due soon and flags loans already overdue.
// Intended to run from cron once a day.
package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"librarium/internal/config"
	"librarium/internal/notify"
	"librarium/internal/scanner"
	"librarium/internal/util"
	"librarium/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel, "expiryscan")

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.NotifyQueue)
		if err != nil {
			log.Fatalf("failed to connect notifier: %v", err)
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
	}

	sc, err := scanner.New(scanner.Config{
		Store:       st,
		Notifier:    notifier,
		Logger:      logger,
		SoonDueDays: cfg.SoonDueDays,
	})
	if err != nil {
		log.Fatalf("failed to init scanner: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var reminders, overdue int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := sc.ScanSoonDue(gctx)
		reminders = n
		return err
	})
	g.Go(func() error {
		n, err := sc.ScanOverdue(gctx)
		overdue = n
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("scan failed", "error", err)
		log.Fatalf("scan failed: %v", err)
	}

	slog.Info("scan complete", "reminders", reminders, "overdue", overdue)
}
