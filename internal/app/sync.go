package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"lending-snapshots/internal/alerting"
	"lending-snapshots/internal/scheduler"
	"lending-snapshots/internal/service"
)

// Sync refreshes the trailing window of several networks into the database,
// once or on the configured cadence until interrupted.
func (a *App) Sync(ctx context.Context, opts SyncOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn 未配置，无法同步")
	}
	defer closeStore()

	names := opts.Networks
	if len(names) == 0 {
		names = a.Config.Sync.Networks
	}
	if len(names) == 0 {
		names = a.Config.NetworkNames()
	}

	var services []*service.Service
	for _, n := range names {
		name, network, err := a.resolveNetwork(n)
		if err != nil {
			return err
		}
		svc, closeSvc, err := a.newService(name, network, nil, store)
		if err != nil {
			return err
		}
		defer closeSvc()
		services = append(services, svc)
	}

	syncer, err := service.NewSyncer(services, service.SyncOptions{
		Lookback:  a.Config.Sync.Lookback,
		Retention: a.Config.Sync.Retention,
		LockKey:   a.Config.Sync.AdvisoryLockKey,
		Locker:    store,
		Pruner:    store,
		Notifier:  a.newNotifier(),
		MaxLag:    a.Config.Alerting.MaxLagBlocks,
	}, a.Logger)
	if err != nil {
		return err
	}

	if opts.Once {
		return syncer.Tick(ctx, time.Now().UTC())
	}

	sched, err := scheduler.New(scheduler.Options{
		Interval:   a.Config.Sync.Interval,
		Align:      a.Config.Sync.Align,
		RunOnStart: a.Config.Sync.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	a.Logger.Info().Strs("networks", names).Dur("interval", a.Config.Sync.Interval).Msg("starting sync")
	err = syncer.Run(ctx, sched)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("sync terminated with error")
		return err
	}

	a.Logger.Info().Msg("sync stopped")
	return nil
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled || !a.Config.Alerting.Telegram.Enabled {
		return nil
	}
	cfg := a.Config.Alerting.Telegram
	telegram := alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	return alerting.NewCooldown(telegram, a.Config.Alerting.Cooldown)
}
