package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lending-snapshots/internal/fetcher"
	"lending-snapshots/internal/normalize"
	"lending-snapshots/internal/render"
	"lending-snapshots/internal/snapshot"
	"lending-snapshots/internal/storage"
)

// SnapshotSource yields every raw snapshot in a unix-second window.
type SnapshotSource interface {
	Fetch(ctx context.Context, from, to int64) ([]snapshot.RawSnapshot, error)
}

// Window bounds a fetch session; both ends are inclusive.
type Window struct {
	From time.Time
	To   time.Time
}

// Validate rejects empty or inverted windows.
func (w Window) Validate() error {
	if w.From.IsZero() || w.To.IsZero() {
		return errors.New("window bounds are required")
	}
	if w.From.After(w.To) {
		return fmt.Errorf("window start %s is after end %s", w.From.Format(time.RFC3339), w.To.Format(time.RFC3339))
	}
	return nil
}

// Result summarises one fetch session.
type Result struct {
	SessionID uuid.UUID
	Network   string
	Window    Window
	Tables    snapshot.Tables
	Snapshots int
	Cursor    int64
	Head      uint64
	Lag       uint64
	Persisted bool
	Elapsed   time.Duration
}

// Options wire the collaborators of a Service. Only Network, Source and Normalizer are required.
type Options struct {
	Network    string
	Source     SnapshotSource
	Normalizer *normalize.Normalizer
	Renderers  []render.Renderer
	Store      storage.SessionStore
	Head       fetcher.BlockHeightFetcher
}

// Service runs fetch sessions for one network.
type Service struct {
	network    string
	source     SnapshotSource
	normalizer *normalize.Normalizer
	renderers  []render.Renderer
	store      storage.SessionStore
	head       fetcher.BlockHeightFetcher
	logger     zerolog.Logger
}

// New constructs the session service.
func New(opts Options, logger zerolog.Logger) (*Service, error) {
	if opts.Source == nil {
		return nil, errors.New("snapshot source not configured")
	}
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = normalize.New(time.UTC)
	}
	return &Service{
		network:    opts.Network,
		source:     opts.Source,
		normalizer: normalizer,
		renderers:  opts.Renderers,
		store:      opts.Store,
		head:       opts.Head,
		logger:     logger.With().Str("component", "service").Str("network", opts.Network).Logger(),
	}, nil
}

// Network is the name of the network this service fetches from.
func (s *Service) Network() string {
	return s.network
}

// Run executes one session: fetch every page, normalize, then hand the tables to each
// renderer. Fetch and normalization failures abort the session with no output.
func (s *Service) Run(ctx context.Context, window Window) (Result, error) {
	if err := window.Validate(); err != nil {
		return Result{}, err
	}

	started := time.Now()
	res := Result{SessionID: uuid.New(), Network: s.network, Window: window}
	logger := s.logger.With().Str("session", res.SessionID.String()).Logger()

	logger.Info().
		Time("from", window.From).
		Time("to", window.To).
		Msg("fetch session started")

	raw, err := s.source.Fetch(ctx, window.From.Unix(), window.To.Unix())
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s snapshots: %w", s.network, err)
	}
	res.Snapshots = len(raw)

	cursor, err := fetcher.NextCursor(raw)
	if err != nil {
		return Result{}, err
	}
	res.Cursor = cursor

	tables, err := s.normalizer.Tables(raw)
	if err != nil {
		return Result{}, fmt.Errorf("normalize %s snapshots: %w", s.network, err)
	}
	res.Tables = tables

	logger.Info().
		Int("snapshots", len(raw)).
		Int("rate_rows", len(tables.Rates)).
		Int64("cursor", cursor).
		Msg("snapshots normalized")

	for _, r := range s.renderers {
		if err := r.Render(ctx, tables); err != nil {
			return Result{}, fmt.Errorf("render: %w", err)
		}
	}

	if s.store != nil {
		session := &storage.Session{
			ID:           res.SessionID,
			Network:      s.network,
			WindowStart:  window.From,
			WindowEnd:    window.To,
			Cursor:       cursor,
			SnapshotRows: len(tables.Metrics),
			RateRows:     len(tables.Rates),
		}
		if err := s.store.SaveSession(ctx, session, tables); err != nil {
			logger.Error().Err(err).Msg("failed to persist session")
		} else {
			res.Persisted = true
		}
	}

	if s.head != nil && cursor > 0 {
		head, err := s.head.LatestBlock(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("chain head lookup failed")
		} else {
			res.Head = head
			res.Lag = fetcher.IndexingLag(head, cursor)
			logger.Info().Uint64("head", head).Uint64("lag_blocks", res.Lag).Msg("indexing lag")
		}
	}

	res.Elapsed = time.Since(started)
	logger.Info().Dur("elapsed", res.Elapsed).Msg("fetch session finished")
	return res, nil
}
