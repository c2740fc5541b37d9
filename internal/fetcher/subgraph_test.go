package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"lending-snapshots/internal/snapshot"
)

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func snapshotJSON(block int64, asset string) map[string]any {
	return map[string]any{
		"blockNumber":                 strconv.FormatInt(block, 10),
		"timestamp":                   "1709251200",
		"market":                      map[string]any{"id": "0x" + asset, "name": asset},
		"totalValueLockedUSD":         "1000.5",
		"dailyDepositUSD":             "1234.999",
		"dailyWithdrawUSD":            "1",
		"dailyBorrowUSD":              "2",
		"dailyLiquidateUSD":           "0",
		"dailyRepayUSD":               "3",
		"dailySupplySideRevenueUSD":   "0.5",
		"dailyProtocolSideRevenueUSD": "0.25",
		"rates": []map[string]any{
			{"rate": "3.25", "side": "LENDER", "type": "VARIABLE"},
			{"rate": "5.5", "side": "BORROWER", "type": "STABLE"},
		},
	}
}

func writeData(w http.ResponseWriter, items []map[string]any) {
	if items == nil {
		items = []map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{"marketDailySnapshots": items},
	})
}

func newTestSubgraph(url string) *Subgraph {
	return NewSubgraph(SubgraphOptions{Endpoint: url, Timeout: time.Second, UserAgent: "test"}, noopLogger())
}

func TestSubgraphQuerySuccess(t *testing.T) {
	var got gqlRequest
	var userAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		writeData(w, []map[string]any{snapshotJSON(42, "DAI")})
	}))
	defer srv.Close()

	records, err := newTestSubgraph(srv.URL).QuerySnapshots(context.Background(), PageQuery{First: 1000, AfterBlock: 7, From: 100, To: 200})
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}

	if !strings.Contains(got.Query, "marketDailySnapshots(") || !strings.Contains(got.Query, "blockNumber_gt: $afterBlock") {
		t.Fatalf("查询语句不正确: %s", got.Query)
	}
	if !strings.Contains(got.Query, "orderBy: blockNumber") || !strings.Contains(got.Query, "orderDirection: asc") {
		t.Fatalf("查询应按 blockNumber 升序: %s", got.Query)
	}
	if got.Variables["afterBlock"] != "7" || got.Variables["from"] != "100" || got.Variables["to"] != "200" {
		t.Fatalf("变量不正确: %#v", got.Variables)
	}
	if first, ok := got.Variables["first"].(float64); !ok || first != 1000 {
		t.Fatalf("first 变量应为 1000: %#v", got.Variables["first"])
	}
	if userAgent != "test" {
		t.Fatalf("User-Agent 应为 test, 实际 %s", userAgent)
	}

	if len(records) != 1 {
		t.Fatalf("应返回 1 条记录, 实际 %d", len(records))
	}
	rec := records[0]
	if rec.BlockNumber != "42" || rec.Market.Name != "DAI" || rec.Market.ID != "0xDAI" {
		t.Fatalf("记录字段不正确: %+v", rec)
	}
	if rec.DailyDepositUSD != "1234.999" {
		t.Fatalf("金额字段应保持原始字符串, 实际 %s", rec.DailyDepositUSD)
	}
	if len(rec.Rates) != 2 || rec.Rates[1].Side != "BORROWER" || rec.Rates[1].Type != "STABLE" {
		t.Fatalf("rates 不正确: %+v", rec.Rates)
	}
}

func TestSubgraphHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "indexer unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestSubgraph(srv.URL).QuerySnapshots(context.Background(), PageQuery{First: 10})
	var transportErr *snapshot.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("HTTP 502 应返回 TransportError, 实际 %v", err)
	}
	if transportErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("状态码应为 502, 实际 %d", transportErr.StatusCode)
	}
}

func TestSubgraphUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestSubgraph(url).QuerySnapshots(context.Background(), PageQuery{First: 10})
	var transportErr *snapshot.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("连接失败应返回 TransportError, 实际 %v", err)
	}
}

func TestSubgraphTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	sg := NewSubgraph(SubgraphOptions{Endpoint: srv.URL, Timeout: 50 * time.Millisecond}, noopLogger())
	start := time.Now()
	_, err := sg.QuerySnapshots(context.Background(), PageQuery{First: 10})
	elapsed := time.Since(start)

	var transportErr *snapshot.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("请求超时应返回 TransportError, 实际 %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("超时未生效, 耗时 %s", elapsed)
	}
}

func TestSubgraphGraphQLErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "Type `MarketDailySnapshot` has no field `rates`"}},
		})
	}))
	defer srv.Close()

	_, err := newTestSubgraph(srv.URL).QuerySnapshots(context.Background(), PageQuery{First: 10})
	var schemaErr *snapshot.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("GraphQL errors 应返回 SchemaError, 实际 %v", err)
	}
}

func TestSubgraphMissingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		item := snapshotJSON(1, "DAI")
		delete(item, "timestamp")
		writeData(w, []map[string]any{item})
	}))
	defer srv.Close()

	_, err := newTestSubgraph(srv.URL).QuerySnapshots(context.Background(), PageQuery{First: 10})
	var schemaErr *snapshot.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("缺少字段应返回 SchemaError, 实际 %v", err)
	}
	if schemaErr.Field != "timestamp" {
		t.Fatalf("缺少的字段应为 timestamp, 实际 %s", schemaErr.Field)
	}
}

func TestSubgraphMissingEndpoint(t *testing.T) {
	if _, err := NewSubgraph(SubgraphOptions{}, noopLogger()).QuerySnapshots(context.Background(), PageQuery{First: 1}); err == nil {
		t.Fatal("未配置 endpoint 时应报错")
	}
}

func TestPaginatorOverSubgraph(t *testing.T) {
	pages := map[string][]map[string]any{
		"0":  {snapshotJSON(5, "DAI"), snapshotJSON(10, "USDC")},
		"10": {snapshotJSON(15, "WETH")},
	}
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		after, _ := req.Variables["afterBlock"].(string)
		seen = append(seen, after)
		writeData(w, pages[after])
	}))
	defer srv.Close()

	p := NewPaginator(newTestSubgraph(srv.URL), PaginatorOptions{}, noopLogger())
	records, err := p.Fetch(context.Background(), 0, 2000000000)
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("应返回 3 条记录, 实际 %d", len(records))
	}
	if strings.Join(seen, ",") != "0,10,15" {
		t.Fatalf("游标序列应为 0,10,15, 实际 %v", seen)
	}
}
