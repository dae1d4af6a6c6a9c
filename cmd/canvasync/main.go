package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"canvasync/internal/config"
	"canvasync/internal/feed"
	"canvasync/internal/ledger"
	applog "canvasync/internal/log"
	"canvasync/internal/reconcile"
	"canvasync/internal/todoist"
)

type flagConfig struct {
	configPath string
	once       bool
	dryRun     bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		applog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	applog.SetLevel(applog.ParseLevel(conf.LogLevel))

	if err := conf.Validate(); err != nil {
		applog.Error("configuration incomplete", err)
		os.Exit(1)
	}

	applog.Info("canvasync starting",
		"version", "0.1.0",
		"project", conf.ProjectName,
		"ledger", conf.LedgerPath,
		"schedule", conf.Schedule,
		"once", flags.once,
		"dry_run", flags.dryRun,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		applog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.once {
		if err := runCycle(ctx, conf, flags.dryRun); err != nil {
			applog.Error("sync failed", err)
			os.Exit(1)
		}
		return
	}

	// Daemon mode: one immediate cycle, then on schedule.
	if err := runCycle(ctx, conf, flags.dryRun); err != nil {
		applog.Error("initial sync failed; waiting for next scheduled run", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(conf.Schedule, func() {
		if err := runCycle(ctx, conf, flags.dryRun); err != nil {
			applog.Error("scheduled sync failed; waiting for next run", err)
		}
	}); err != nil {
		applog.Error("invalid schedule", err, "schedule", conf.Schedule)
		os.Exit(1)
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	applog.Info("canvasync exiting")
}

// runCycle performs one fetch → reconcile → persist pass. Fetch and parse
// failures are fatal for the cycle and leave the ledger untouched — no
// reconciliation happens against stale data, and the ledger keeps its old
// timestamp so a persistent upstream outage stays visible.
func runCycle(ctx context.Context, conf *config.Config, dryRun bool) error {
	start := time.Now()
	now := start.UTC()

	led := ledger.Load(conf.LedgerPath)

	fetcher := feed.NewFetcher(conf.RequestTimeout(), conf.CacheDir)
	body, err := fetcher.Fetch(ctx, conf.FeedURL)
	if err != nil {
		return err
	}

	raws, err := feed.Parse(body)
	if err != nil {
		return err
	}
	raws = feed.ExpandRecurrences(raws, now, conf.Horizon())
	events := feed.NormalizeAll(raws, now, feed.TierConfig{
		Thresholds:  conf.Thresholds(),
		DefaultTier: conf.DefaultPriority,
	})

	// The adapter is built per cycle so its name→id caches stay run-scoped.
	var store reconcile.TaskStore = todoist.NewClient(conf.APIToken, conf.RequestTimeout())
	if dryRun {
		store = dryRunStore{}
	}

	rec := reconcile.New(store, led, reconcile.Config{
		ProjectName:  conf.ProjectName,
		ReminderLead: conf.ReminderLead(),
	})
	stats := rec.Run(ctx, events)

	if dryRun {
		applog.Info("dry run complete; ledger not saved",
			"created", stats.Created,
			"updated", stats.Updated,
			"skipped", stats.Skipped,
			"completed", stats.Completed,
			"failed", stats.Failed,
		)
		return nil
	}

	if err := led.Save(); err != nil {
		return err
	}

	applog.Info("sync complete",
		"created", stats.Created,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"completed", stats.Completed,
		"failed", stats.Failed,
		"events", len(events),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.BoolVar(&cfg.once, "once", false, "Run one sync cycle and exit")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "Log the plan without touching the task store or the ledger")

	flag.Parse()

	return cfg
}
