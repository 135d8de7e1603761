package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/FranksOps/bubblescope/internal/bot"
	"github.com/FranksOps/bubblescope/internal/metrics"
	"github.com/FranksOps/bubblescope/internal/session"
	"github.com/FranksOps/bubblescope/internal/storage"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	res, err := a.resolver()
	if err != nil {
		return err
	}
	pipe, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	store, err := a.storage(ctx)
	if err != nil {
		return err
	}
	sessions, err := a.sessions(ctx)
	if err != nil {
		return err
	}

	api, err := tgbotapi.NewBotAPI(a.cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	api.Debug = a.cfg.Telegram.Debug
	a.logger.Info("authorized on telegram", "account", api.Self.UserName)

	if a.cfg.Metrics.Port > 0 {
		var routes []metrics.Route
		if r, ok := store.(storage.Reader); ok {
			routes = append(routes, metrics.Route{Pattern: storage.RoutePrefix, Handler: storage.Handler(r, a.logger)})
		}
		srv := metrics.Start(a.cfg.Metrics.Port, a.logger, routes...)
		a.onClose(func() error { return srv.Stop(context.Background()) })
		a.logger.Info("http server listening", "port", a.cfg.Metrics.Port, "artifacts", len(routes) > 0)
	}

	sched, err := schedule(a, store, sessions)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	b := bot.New(api, res, pipe, sessions, bot.Config{RequestTimeout: a.cfg.Pipeline.RequestTimeout}, a.logger.With("component", "bot"))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()

	a.logger.Info("bot started")
	b.Start(ctx, updates)
	a.logger.Info("bot stopped")
	return nil
}

// schedule registers the housekeeping jobs: selection expiry for in-memory
// sessions and artifact retention for stores that can prune.
func schedule(a *app, store storage.Backend, sessions session.Store) (*cron.Cron, error) {
	c := cron.New()

	if p, ok := sessions.(session.Purger); ok {
		_, err := c.AddFunc(a.cfg.Session.PurgeSchedule, func() {
			if n := p.Purge(time.Now()); n > 0 {
				a.logger.Debug("purged expired selections", "count", n)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("session.purge_schedule: %w", err)
		}
	}

	p, ok := store.(storage.Pruner)
	if !ok || a.cfg.Storage.Retention <= 0 {
		return c, nil
	}
	retention := a.cfg.Storage.Retention
	_, err := c.AddFunc(a.cfg.Storage.PruneSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		n, err := p.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			a.logger.Error("artifact prune failed", "err", err)
			return
		}
		a.logger.Info("pruned artifacts", "count", n, "retention", retention)
	})
	if err != nil {
		return nil, fmt.Errorf("storage.prune_schedule: %w", err)
	}
	return c, nil
}
