package fetcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// ChainHeadOptions parameterise the RPC head lookup.
type ChainHeadOptions struct {
	RPCURL  string
	Timeout time.Duration
}

// ChainHead reads the latest block from an Ethereum-compatible RPC node.
type ChainHead struct {
	opts      ChainHeadOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewChainHead builds a chain head reader.
func NewChainHead(opts ChainHeadOptions, logger zerolog.Logger) *ChainHead {
	return &ChainHead{opts: opts, logger: logger.With().Str("component", "chain_head").Logger()}
}

// LatestBlock returns the current block height of the chain.
func (c *ChainHead) LatestBlock(ctx context.Context) (uint64, error) {
	if c.opts.RPCURL == "" {
		return 0, errors.New("rpc url not configured")
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	c.logger.Debug().Uint64("head", head).Msg("chain head fetched")
	return head, nil
}

// Close releases the RPC connection, if any.
func (c *ChainHead) Close() {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

func (c *ChainHead) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

// IndexingLag is how many blocks the subgraph data trails the chain head.
func IndexingLag(head uint64, cursor int64) uint64 {
	if cursor <= 0 || uint64(cursor) >= head {
		return 0
	}
	return head - uint64(cursor)
}

var _ BlockHeightFetcher = (*ChainHead)(nil)
