package service

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lending-snapshots/internal/normalize"
	"lending-snapshots/internal/render"
	"lending-snapshots/internal/snapshot"
	"lending-snapshots/internal/storage"
)

func rawSnapshot(block int64, ts int64, asset string) snapshot.RawSnapshot {
	return snapshot.RawSnapshot{
		BlockNumber:                 strconv.FormatInt(block, 10),
		Timestamp:                   strconv.FormatInt(ts, 10),
		Market:                      snapshot.RawMarket{ID: "0x" + asset, Name: asset},
		TotalValueLockedUSD:         "1000.5",
		DailyDepositUSD:             "10",
		DailyWithdrawUSD:            "0",
		DailyBorrowUSD:              "5",
		DailyLiquidateUSD:           "0",
		DailyRepayUSD:               "1",
		DailySupplySideRevenueUSD:   "0.5",
		DailyProtocolSideRevenueUSD: "0.05",
		Rates: []snapshot.RawRate{
			{Rate: "3.2", Side: snapshot.SideBorrower, Type: snapshot.TypeVariable},
			{Rate: "1.1", Side: snapshot.SideLender, Type: snapshot.TypeVariable},
		},
	}
}

type fakeSource struct {
	items    []snapshot.RawSnapshot
	err      error
	from, to int64
	calls    int
}

func (f *fakeSource) Fetch(ctx context.Context, from, to int64) ([]snapshot.RawSnapshot, error) {
	f.calls++
	f.from, f.to = from, to
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type recordingRenderer struct {
	tables []snapshot.Tables
	err    error
}

func (r *recordingRenderer) Render(ctx context.Context, tables snapshot.Tables) error {
	r.tables = append(r.tables, tables)
	return r.err
}

type memStore struct {
	saved  []storage.Session
	err    error
	pruned []time.Time
}

func (m *memStore) SaveSession(ctx context.Context, session *storage.Session, tables snapshot.Tables) error {
	if m.err != nil {
		return m.err
	}
	session.CreatedAt = time.Now().UTC()
	m.saved = append(m.saved, *session)
	return nil
}

func (m *memStore) ListRecentSessions(ctx context.Context, limit int) ([]storage.Session, error) {
	return m.saved, nil
}

func (m *memStore) DeleteSessionsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	m.pruned = append(m.pruned, olderThan)
	return 0, nil
}

type fixedHead struct {
	head uint64
	err  error
}

func (f fixedHead) LatestBlock(ctx context.Context) (uint64, error) {
	return f.head, f.err
}

func testWindow() Window {
	return Window{
		From: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
	}
}

func TestRunFullSession(t *testing.T) {
	src := &fakeSource{items: []snapshot.RawSnapshot{
		rawSnapshot(10, 1709251200, "DAI"),
		rawSnapshot(15, 1709337600, "USDC"),
	}}
	renderer := &recordingRenderer{}
	store := &memStore{}

	svc, err := New(Options{
		Network:    "ethereum",
		Source:     src,
		Normalizer: normalize.New(time.UTC),
		Renderers:  []render.Renderer{renderer},
		Store:      store,
		Head:       fixedHead{head: 40},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("创建服务失败: %v", err)
	}

	res, err := svc.Run(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("会话不应失败: %v", err)
	}

	if src.from != testWindow().From.Unix() || src.to != testWindow().To.Unix() {
		t.Fatalf("窗口应以 unix 秒传给数据源: %d-%d", src.from, src.to)
	}
	if res.Snapshots != 2 || len(res.Tables.Metrics) != 2 || len(res.Tables.Rates) != 4 {
		t.Fatalf("表行数不正确: %+v", res)
	}
	if res.Cursor != 15 || res.Head != 40 || res.Lag != 25 {
		t.Fatalf("游标或延迟不正确: cursor=%d head=%d lag=%d", res.Cursor, res.Head, res.Lag)
	}
	if len(renderer.tables) != 1 {
		t.Fatalf("渲染器应被调用一次, 实际 %d", len(renderer.tables))
	}
	if !res.Persisted || len(store.saved) != 1 {
		t.Fatalf("会话应被持久化")
	}
	saved := store.saved[0]
	if saved.ID != res.SessionID || saved.Network != "ethereum" || saved.RateRows != 4 || saved.Cursor != 15 {
		t.Fatalf("持久化内容不正确: %+v", saved)
	}
}

func TestRunFetchFailureProducesNoOutput(t *testing.T) {
	src := &fakeSource{err: &snapshot.TransportError{Endpoint: "x", Err: errors.New("boom")}}
	renderer := &recordingRenderer{}
	store := &memStore{}
	svc, _ := New(Options{Network: "ethereum", Source: src, Renderers: []render.Renderer{renderer}, Store: store}, zerolog.Nop())

	_, err := svc.Run(context.Background(), testWindow())
	var transportErr *snapshot.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("应保留 TransportError, 实际 %v", err)
	}
	if len(renderer.tables) != 0 || len(store.saved) != 0 {
		t.Fatal("失败的会话不应产生任何输出")
	}
}

func TestRunCoercionFailureProducesNoOutput(t *testing.T) {
	bad := rawSnapshot(10, 1709251200, "DAI")
	bad.DailyBorrowUSD = "n/a"
	src := &fakeSource{items: []snapshot.RawSnapshot{bad}}
	renderer := &recordingRenderer{}
	svc, _ := New(Options{Network: "ethereum", Source: src, Renderers: []render.Renderer{renderer}}, zerolog.Nop())

	_, err := svc.Run(context.Background(), testWindow())
	var coercionErr *snapshot.CoercionError
	if !errors.As(err, &coercionErr) {
		t.Fatalf("应返回 CoercionError, 实际 %v", err)
	}
	if len(renderer.tables) != 0 {
		t.Fatal("强制转换失败时不应渲染")
	}
}

func TestRunEmptyWindowStillRenders(t *testing.T) {
	src := &fakeSource{items: []snapshot.RawSnapshot{}}
	renderer := &recordingRenderer{}
	svc, _ := New(Options{Network: "ethereum", Source: src, Renderers: []render.Renderer{renderer}, Head: fixedHead{head: 99}}, zerolog.Nop())

	res, err := svc.Run(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("空窗口不应报错: %v", err)
	}
	if !res.Tables.Empty() || len(renderer.tables) != 1 {
		t.Fatalf("空窗口应渲染空表: %+v", res.Tables)
	}
	if res.Head != 0 {
		t.Fatal("没有游标时不应查询链头")
	}
}

func TestRunStoreFailureIsLogged(t *testing.T) {
	src := &fakeSource{items: []snapshot.RawSnapshot{rawSnapshot(10, 1709251200, "DAI")}}
	svc, _ := New(Options{Network: "ethereum", Source: src, Store: &memStore{err: errors.New("db down")}}, zerolog.Nop())

	res, err := svc.Run(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("持久化失败不应中断会话: %v", err)
	}
	if res.Persisted {
		t.Fatal("持久化失败时 Persisted 应为 false")
	}
}

func TestRunRendererFailure(t *testing.T) {
	src := &fakeSource{items: []snapshot.RawSnapshot{rawSnapshot(10, 1709251200, "DAI")}}
	store := &memStore{}
	svc, _ := New(Options{Network: "ethereum", Source: src, Renderers: []render.Renderer{&recordingRenderer{err: errors.New("disk full")}}, Store: store}, zerolog.Nop())

	res, err := svc.Run(context.Background(), testWindow())
	if err == nil {
		t.Fatal("渲染失败应返回错误")
	}
	if !res.Tables.Empty() || res.Snapshots != 0 || res.Cursor != 0 {
		t.Fatalf("渲染失败时不应返回部分结果: %+v", res)
	}
	if len(store.saved) != 0 {
		t.Fatal("渲染失败时不应保存会话")
	}
}

func TestRunRejectsInvertedWindow(t *testing.T) {
	src := &fakeSource{}
	svc, _ := New(Options{Network: "ethereum", Source: src}, zerolog.Nop())
	w := testWindow()
	w.From, w.To = w.To, w.From
	if _, err := svc.Run(context.Background(), w); err == nil {
		t.Fatal("起点晚于终点时应报错")
	}
	if src.calls != 0 {
		t.Fatal("非法窗口不应发起请求")
	}
}

func TestNewRequiresSource(t *testing.T) {
	if _, err := New(Options{Network: "ethereum"}, zerolog.Nop()); err == nil {
		t.Fatal("缺少数据源时应报错")
	}
}
