package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shurcooL/graphql"

	"lending-snapshots/internal/snapshot"
	"lending-snapshots/internal/version"
)

// BigInt is the subgraph scalar used for block numbers and timestamps.
// The type name is what appears in the generated variable declarations.
type BigInt string

// SubgraphOptions parameterise the GraphQL snapshot source.
type SubgraphOptions struct {
	Endpoint  string
	Timeout   time.Duration
	UserAgent string
}

// Subgraph queries marketDailySnapshots from a Messari lending subgraph.
type Subgraph struct {
	opts    SubgraphOptions
	logger  zerolog.Logger
	client  *graphql.Client
	timeout time.Duration
}

// NewSubgraph constructs a subgraph querier.
func NewSubgraph(opts SubgraphOptions, logger zerolog.Logger) *Subgraph {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = version.UserAgent()
	}

	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: &statusTransport{base: http.DefaultTransport, userAgent: ua},
	}

	return &Subgraph{
		opts:    opts,
		logger:  logger.With().Str("component", "subgraph").Str("endpoint", opts.Endpoint).Logger(),
		client:  graphql.NewClient(opts.Endpoint, httpClient),
		timeout: timeout,
	}
}

type gqlRate struct {
	Rate string
	Side string
	Type string
}

type gqlSnapshot struct {
	BlockNumber string
	Timestamp   string
	Market      struct {
		ID   string `graphql:"id"`
		Name string
	}
	TotalValueLockedUSD         string
	DailyDepositUSD             string
	DailyWithdrawUSD            string
	DailyBorrowUSD              string
	DailyLiquidateUSD           string
	DailyRepayUSD               string
	DailySupplySideRevenueUSD   string
	DailyProtocolSideRevenueUSD string
	Rates                       []gqlRate
}

type snapshotsQuery struct {
	MarketDailySnapshots []gqlSnapshot `graphql:"marketDailySnapshots(first: $first, orderBy: blockNumber, orderDirection: asc, where: {blockNumber_gt: $afterBlock, timestamp_gte: $from, timestamp_lte: $to})"`
}

// QuerySnapshots requests one page of snapshots.
func (s *Subgraph) QuerySnapshots(ctx context.Context, q PageQuery) ([]snapshot.RawSnapshot, error) {
	if s.opts.Endpoint == "" {
		return nil, errors.New("subgraph endpoint not configured")
	}
	if q.First <= 0 {
		return nil, errors.New("page size must be greater than zero")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var query snapshotsQuery
	variables := map[string]interface{}{
		"first":      graphql.Int(q.First),
		"afterBlock": BigInt(strconv.FormatInt(q.AfterBlock, 10)),
		"from":       BigInt(strconv.FormatInt(q.From, 10)),
		"to":         BigInt(strconv.FormatInt(q.To, 10)),
	}

	if err := s.client.Query(ctx, &query, variables); err != nil {
		return nil, s.classify(err)
	}

	out := make([]snapshot.RawSnapshot, 0, len(query.MarketDailySnapshots))
	for i, item := range query.MarketDailySnapshots {
		raw, err := item.toRaw()
		if err != nil {
			return nil, fmt.Errorf("marketDailySnapshots[%d]: %w", i, err)
		}
		out = append(out, raw)
	}

	s.logger.Debug().
		Int64("after_block", q.AfterBlock).
		Int("records", len(out)).
		Msg("page received")
	return out, nil
}

func (s *Subgraph) classify(err error) error {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return &snapshot.TransportError{Endpoint: s.opts.Endpoint, StatusCode: statusErr.code, Err: statusErr}
	}
	if isTransportFailure(err) {
		return &snapshot.TransportError{Endpoint: s.opts.Endpoint, Err: err}
	}
	// graphql "errors" payloads and bodies that do not decode into the query shape
	return &snapshot.SchemaError{Field: "marketDailySnapshots", Err: err}
}

func isTransportFailure(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, io.ErrUnexpectedEOF)
}

func (g gqlSnapshot) toRaw() (snapshot.RawSnapshot, error) {
	required := []struct {
		field string
		value string
	}{
		{"blockNumber", g.BlockNumber},
		{"timestamp", g.Timestamp},
		{"market.id", g.Market.ID},
		{"market.name", g.Market.Name},
		{"totalValueLockedUSD", g.TotalValueLockedUSD},
		{"dailyDepositUSD", g.DailyDepositUSD},
		{"dailyWithdrawUSD", g.DailyWithdrawUSD},
		{"dailyBorrowUSD", g.DailyBorrowUSD},
		{"dailyLiquidateUSD", g.DailyLiquidateUSD},
		{"dailyRepayUSD", g.DailyRepayUSD},
		{"dailySupplySideRevenueUSD", g.DailySupplySideRevenueUSD},
		{"dailyProtocolSideRevenueUSD", g.DailyProtocolSideRevenueUSD},
	}
	for _, r := range required {
		if r.value == "" {
			return snapshot.RawSnapshot{}, &snapshot.SchemaError{Field: r.field, Err: errors.New("missing value")}
		}
	}

	rates := make([]snapshot.RawRate, 0, len(g.Rates))
	for j, r := range g.Rates {
		if r.Rate == "" || r.Side == "" || r.Type == "" {
			return snapshot.RawSnapshot{}, &snapshot.SchemaError{Field: fmt.Sprintf("rates[%d]", j), Err: errors.New("missing rate, side or type")}
		}
		rates = append(rates, snapshot.RawRate{Rate: r.Rate, Side: r.Side, Type: r.Type})
	}

	return snapshot.RawSnapshot{
		BlockNumber:                 g.BlockNumber,
		Timestamp:                   g.Timestamp,
		Market:                      snapshot.RawMarket{ID: g.Market.ID, Name: g.Market.Name},
		TotalValueLockedUSD:         g.TotalValueLockedUSD,
		DailyDepositUSD:             g.DailyDepositUSD,
		DailyWithdrawUSD:            g.DailyWithdrawUSD,
		DailyBorrowUSD:              g.DailyBorrowUSD,
		DailyLiquidateUSD:           g.DailyLiquidateUSD,
		DailyRepayUSD:               g.DailyRepayUSD,
		DailySupplySideRevenueUSD:   g.DailySupplySideRevenueUSD,
		DailyProtocolSideRevenueUSD: g.DailyProtocolSideRevenueUSD,
		Rates:                       rates,
	}, nil
}

// statusTransport stamps the user agent and turns non-2xx answers into errors,
// so the graphql client never tries to decode an error page.
type statusTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &httpStatusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string {
	if e.body != "" {
		return fmt.Sprintf("subgraph responded %d: %s", e.code, e.body)
	}
	return fmt.Sprintf("subgraph responded %d", e.code)
}

var _ SnapshotQuerier = (*Subgraph)(nil)
