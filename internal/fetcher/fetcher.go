package fetcher

import (
	"context"

	"lending-snapshots/internal/snapshot"
)

// PageQuery selects one page of daily snapshots, ordered by ascending block number.
type PageQuery struct {
	First      int
	AfterBlock int64 // exclusive
	From       int64 // inclusive, unix seconds
	To         int64 // inclusive, unix seconds
}

// SnapshotQuerier issues a single page request against a snapshot source.
// An empty result signals the end of the data.
type SnapshotQuerier interface {
	QuerySnapshots(ctx context.Context, q PageQuery) ([]snapshot.RawSnapshot, error)
}

// BlockHeightFetcher reports the latest block of the chain a subgraph indexes.
type BlockHeightFetcher interface {
	LatestBlock(ctx context.Context) (uint64, error)
}
