package fetcher

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"lending-snapshots/internal/snapshot"
)

// DefaultPageSize is the largest page the hosted subgraphs serve.
const DefaultPageSize = 1000

// PaginatorOptions tune the paging loop.
type PaginatorOptions struct {
	PageSize          int
	RequestsPerSecond float64
	Burst             int
}

// Paginator walks a snapshot source with a block-number cursor until it returns an empty page.
type Paginator struct {
	querier  SnapshotQuerier
	pageSize int
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// NewPaginator builds a paginator. A non-positive RequestsPerSecond disables throttling.
func NewPaginator(querier SnapshotQuerier, opts PaginatorOptions, logger zerolog.Logger) *Paginator {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Paginator{
		querier:  querier,
		pageSize: pageSize,
		limiter:  limiter,
		logger:   logger.With().Str("component", "paginator").Logger(),
	}
}

// Fetch returns every snapshot with a timestamp in [from, to]. Pages are requested one
// at a time; the first failing request aborts the session and nothing is returned.
func (p *Paginator) Fetch(ctx context.Context, from, to int64) ([]snapshot.RawSnapshot, error) {
	var acc []snapshot.RawSnapshot
	cursor := int64(0)

	for page := 1; ; page++ {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("wait for page %d: %w", page, err)
			}
		}

		records, err := p.querier.QuerySnapshots(ctx, PageQuery{
			First:      p.pageSize,
			AfterBlock: cursor,
			From:       from,
			To:         to,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch page %d (after block %d): %w", page, cursor, err)
		}
		if len(records) == 0 {
			p.logger.Debug().Int("pages", page).Int("records", len(acc)).Msg("empty page, pagination finished")
			break
		}

		acc = append(acc, records...)

		next, err := NextCursor(acc)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		if next <= cursor {
			return nil, &snapshot.SchemaError{
				Field: "blockNumber",
				Err:   fmt.Errorf("page %d did not advance the cursor past block %d", page, cursor),
			}
		}

		p.logger.Debug().
			Int("page", page).
			Int("records", len(records)).
			Int64("cursor", next).
			Msg("page accumulated")
		cursor = next
	}

	if acc == nil {
		acc = []snapshot.RawSnapshot{}
	}
	return acc, nil
}

// NextCursor is the highest block number across everything accumulated so far.
// It returns 0 for an empty accumulator.
func NextCursor(acc []snapshot.RawSnapshot) (int64, error) {
	var highest int64
	for _, item := range acc {
		block, err := snapshot.ParseBlock(item.BlockNumber)
		if err != nil {
			return 0, err
		}
		if block > highest {
			highest = block
		}
	}
	return highest, nil
}
