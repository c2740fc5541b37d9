package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"lending-snapshots/internal/alerting"
	"lending-snapshots/internal/scheduler"
	"lending-snapshots/internal/storage"
)

// Pruner drops persisted sessions older than a cutoff.
type Pruner interface {
	DeleteSessionsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// SyncOptions configure periodic refreshes.
type SyncOptions struct {
	Lookback  time.Duration
	Retention time.Duration
	LockKey   int64
	Locker    storage.AdvisoryLocker
	Pruner    Pruner
	Notifier  alerting.Notifier
	MaxLag    uint64
}

// Syncer refreshes a trailing window for several networks on every scheduler tick.
type Syncer struct {
	services []*Service
	opts     SyncOptions
	logger   zerolog.Logger
}

// NewSyncer builds a syncer over the given per-network services.
func NewSyncer(services []*Service, opts SyncOptions, logger zerolog.Logger) (*Syncer, error) {
	if len(services) == 0 {
		return nil, errors.New("no networks to sync")
	}
	if opts.Lookback <= 0 {
		return nil, errors.New("sync lookback must be positive")
	}
	return &Syncer{
		services: services,
		opts:     opts,
		logger:   logger.With().Str("component", "syncer").Logger(),
	}, nil
}

// Run drives Tick from the scheduler until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context, sched *scheduler.Scheduler) error {
	if sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return sched.Run(ctx, s.Tick)
}

// Tick runs one session per network over [tick-lookback, tick]. A failing network is
// logged and the rest still run; the joined error is returned.
func (s *Syncer) Tick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	window := Window{From: tick.Add(-s.opts.Lookback), To: tick}
	var errs []error
	for _, svc := range s.services {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := svc.Run(ctx, window)
		if err != nil {
			s.logger.Error().Err(err).Str("network", svc.Network()).Msg("network sync failed")
			errs = append(errs, fmt.Errorf("%s: %w", svc.Network(), err))
			s.notify(ctx, alerting.Notification{
				Tick:    tick,
				Network: svc.Network(),
				Kind:    alerting.KindSyncFailed,
				Err:     err.Error(),
			})
			continue
		}
		if s.opts.MaxLag > 0 && res.Head > 0 && res.Lag > s.opts.MaxLag {
			s.notify(ctx, alerting.Notification{
				Tick:    tick,
				Network: svc.Network(),
				Kind:    alerting.KindIndexingLag,
				Lag:     res.Lag,
				MaxLag:  s.opts.MaxLag,
				Cursor:  res.Cursor,
			})
		}
		s.logger.Info().
			Str("network", svc.Network()).
			Int("snapshots", res.Snapshots).
			Msg("network synced")
	}

	s.prune(ctx, tick)
	return errors.Join(errs...)
}

func (s *Syncer) notify(ctx context.Context, note alerting.Notification) {
	if s.opts.Notifier == nil {
		return
	}
	if err := s.opts.Notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("network", note.Network).Str("kind", note.Kind).Msg("failed to dispatch alert")
	}
}

func (s *Syncer) prune(ctx context.Context, tick time.Time) {
	if s.opts.Pruner == nil || s.opts.Retention <= 0 {
		return
	}
	cutoff := tick.Add(-s.opts.Retention)
	removed, err := s.opts.Pruner.DeleteSessionsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Time("cutoff", cutoff).Msg("failed to prune sessions")
		return
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("pruned old sessions")
	}
}

func (s *Syncer) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.opts.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.opts.Locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
