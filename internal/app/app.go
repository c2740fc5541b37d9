package app

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"

	"lending-snapshots/internal/aggregate"
	"lending-snapshots/internal/config"
	"lending-snapshots/internal/fetcher"
	"lending-snapshots/internal/normalize"
	"lending-snapshots/internal/render"
	"lending-snapshots/internal/service"
	"lending-snapshots/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// FetchOptions configure the fetch command.
type FetchOptions struct {
	Network string
	Window  service.Window
	Persist bool
}

// ExportOptions hold parameters for exporting a session.
type ExportOptions struct {
	Network   string
	Window    service.Window
	Dir       string
	Formats   []string
	MaxPoints int
	Upload    bool
	Persist   bool
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Limit int
}

// SyncOptions configure the sync job.
type SyncOptions struct {
	Networks []string
	Once     bool
}

func (a *App) rateFilter() aggregate.RateFilter {
	return aggregate.RateFilter{Min: a.Config.Aggregate.MinRate, Max: a.Config.Aggregate.MaxRate}
}

func (a *App) resolveNetwork(name string) (string, config.NetworkConfig, error) {
	if name == "" {
		name = a.Config.App.DefaultNetwork
	}
	network, err := a.Config.Network(name)
	if err != nil {
		return "", config.NetworkConfig{}, err
	}
	if network.Backfilling {
		a.Logger.Warn().Str("network", name).Msg("subgraph is still backfilling; history may be incomplete")
	}
	return name, network, nil
}

// newService wires subgraph, paginator, normalizer and the optional chain head for one network.
// The returned closer releases the RPC connection.
func (a *App) newService(name string, network config.NetworkConfig, renderers []render.Renderer, store *storage.Store) (*service.Service, func(), error) {
	loc, err := a.Config.Location()
	if err != nil {
		return nil, nil, err
	}

	subgraph := fetcher.NewSubgraph(fetcher.SubgraphOptions{
		Endpoint:  network.Endpoint,
		Timeout:   a.Config.Subgraph.RequestTimeout,
		UserAgent: a.Config.Subgraph.UserAgent,
	}, a.Logger)

	paginator := fetcher.NewPaginator(subgraph, fetcher.PaginatorOptions{
		PageSize:          a.Config.Subgraph.PageSize,
		RequestsPerSecond: a.Config.Subgraph.RequestsPerSecond,
		Burst:             a.Config.Subgraph.Burst,
	}, a.Logger)

	opts := service.Options{
		Network:    name,
		Source:     paginator,
		Normalizer: normalize.New(loc),
		Renderers:  renderers,
	}
	if store != nil {
		opts.Store = store
	}

	closer := func() {}
	if network.RPCURL != "" {
		head := fetcher.NewChainHead(fetcher.ChainHeadOptions{
			RPCURL:  network.RPCURL,
			Timeout: a.Config.Chain.RequestTimeout,
		}, a.Logger)
		opts.Head = head
		closer = head.Close
	}

	svc, err := service.New(opts, a.Logger)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return svc, closer, nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}
