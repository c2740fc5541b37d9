package normalize

import (
	"errors"
	"testing"
	"time"

	"lending-snapshots/internal/snapshot"
)

func rawSnapshot(block, ts, asset string, rates ...snapshot.RawRate) snapshot.RawSnapshot {
	return snapshot.RawSnapshot{
		BlockNumber:                 block,
		Timestamp:                   ts,
		Market:                      snapshot.RawMarket{ID: "0x" + asset, Name: asset},
		TotalValueLockedUSD:         "1000000.75",
		DailyDepositUSD:             "1234.999",
		DailyWithdrawUSD:            "10",
		DailyBorrowUSD:              "20.5",
		DailyLiquidateUSD:           "0",
		DailyRepayUSD:               "3.3",
		DailySupplySideRevenueUSD:   "12.5",
		DailyProtocolSideRevenueUSD: "1.25",
		Rates:                       rates,
	}
}

func TestNormalizeRowCounts(t *testing.T) {
	raw := []snapshot.RawSnapshot{
		rawSnapshot("5", "1709251200", "DAI",
			snapshot.RawRate{Rate: "3.25", Side: "LENDER", Type: "VARIABLE"},
			snapshot.RawRate{Rate: "4.1", Side: "BORROWER", Type: "VARIABLE"},
			snapshot.RawRate{Rate: "7", Side: "BORROWER", Type: "STABLE"},
		),
		rawSnapshot("10", "1709337600", "USDC"),
		rawSnapshot("15", "1709424000", "WETH",
			snapshot.RawRate{Rate: "0.5", Side: "LENDER", Type: "STABLE"},
		),
	}

	rates, metrics, err := New(nil).Normalize(raw)
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if len(metrics) != len(raw) {
		t.Fatalf("metrics 行数应为 %d, 实际 %d", len(raw), len(metrics))
	}
	if len(rates) != 4 {
		t.Fatalf("rates 行数应为 4, 实际 %d", len(rates))
	}

	wantAssets := []string{"DAI", "DAI", "DAI", "WETH"}
	for i, row := range rates {
		if row.Asset != wantAssets[i] {
			t.Fatalf("第 %d 行资产应为 %s, 实际 %s", i, wantAssets[i], row.Asset)
		}
	}
	if rates[0].Type != snapshot.LenderVariable || rates[2].Type != snapshot.BorrowerStable {
		t.Fatalf("rate 顺序或类型不正确: %+v", rates)
	}
	if rates[0].Rate != 3.25 {
		t.Fatalf("rate 应为 3.25, 实际 %v", rates[0].Rate)
	}
}

func TestNormalizeCoercion(t *testing.T) {
	_, metrics, err := New(nil).Normalize([]snapshot.RawSnapshot{rawSnapshot("1", "1709251200", "DAI")})
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	m := metrics[0]
	if m.DailyDepositUSD != 1234 {
		t.Fatalf("dailyDepositUSD 应截断为 1234, 实际 %d", m.DailyDepositUSD)
	}
	if m.TVL != 1000000 || m.DailyBorrowUSD != 20 || m.DailyRepayUSD != 3 {
		t.Fatalf("金额字段截断不正确: %+v", m)
	}
	if m.DailySupplySideRevenueUSD != 12.5 || m.DailyProtocolSideRevenueUSD != 1.25 {
		t.Fatalf("收入字段应保留小数: %+v", m)
	}
	if m.Asset != "DAI" {
		t.Fatalf("Asset 应取 market.name, 实际 %s", m.Asset)
	}
}

func TestNormalizeNegativeAmountTruncatesTowardZero(t *testing.T) {
	raw := rawSnapshot("1", "1709251200", "DAI")
	raw.DailyDepositUSD = "-12.9"

	_, metrics, err := New(nil).Normalize([]snapshot.RawSnapshot{raw})
	if err != nil {
		t.Fatalf("负数金额不应导致失败: %v", err)
	}
	if metrics[0].DailyDepositUSD != -12 {
		t.Fatalf("-12.9 应向零截断为 -12, 实际 %d", metrics[0].DailyDepositUSD)
	}
}

func TestNormalizeDaySharedWithRates(t *testing.T) {
	// 2024-03-01T23:30:00Z
	raw := []snapshot.RawSnapshot{rawSnapshot("1", "1709335800", "DAI",
		snapshot.RawRate{Rate: "1", Side: "LENDER", Type: "STABLE"},
		snapshot.RawRate{Rate: "2", Side: "BORROWER", Type: "STABLE"},
	)}

	zone := time.FixedZone("UTC+9", 9*3600)
	rates, metrics, err := New(zone).Normalize(raw)
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if got := metrics[0].Day.Format(snapshot.DayLayout); got != "2024-03-02" {
		t.Fatalf("Day 应按配置时区计算, 实际 %s", got)
	}
	for _, r := range rates {
		if !r.Day.Equal(metrics[0].Day) {
			t.Fatalf("rate 的 Day 应与 snapshot 一致: %v vs %v", r.Day, metrics[0].Day)
		}
	}
}

func TestNormalizeCoercionFailureFailsWholeSession(t *testing.T) {
	bad := rawSnapshot("2", "1709337600", "USDC")
	bad.TotalValueLockedUSD = "not-a-number"
	raw := []snapshot.RawSnapshot{rawSnapshot("1", "1709251200", "DAI"), bad, rawSnapshot("3", "1709424000", "WETH")}

	rates, metrics, err := New(nil).Normalize(raw)
	var coerceErr *snapshot.CoercionError
	if !errors.As(err, &coerceErr) {
		t.Fatalf("应返回 CoercionError, 实际 %v", err)
	}
	if coerceErr.Field != "totalValueLockedUSD" {
		t.Fatalf("出错字段应为 totalValueLockedUSD, 实际 %s", coerceErr.Field)
	}
	if rates != nil || metrics != nil {
		t.Fatal("失败时不应返回部分结果")
	}
}

func TestNormalizeBadRateType(t *testing.T) {
	raw := []snapshot.RawSnapshot{rawSnapshot("1", "1709251200", "DAI",
		snapshot.RawRate{Rate: "1", Side: "LENDER", Type: "FIXED"},
	)}
	_, _, err := New(nil).Normalize(raw)
	var schemaErr *snapshot.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("未知 rate 类型应返回 SchemaError, 实际 %v", err)
	}
}

func TestNormalizeKeepsDuplicates(t *testing.T) {
	dup := rawSnapshot("7", "1709251200", "DAI", snapshot.RawRate{Rate: "1", Side: "LENDER", Type: "VARIABLE"})
	tables, err := New(nil).Tables([]snapshot.RawSnapshot{dup, dup})
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if len(tables.Metrics) != 2 || len(tables.Rates) != 2 {
		t.Fatalf("重复 snapshot 应原样保留: %d metrics, %d rates", len(tables.Metrics), len(tables.Rates))
	}
}

func TestNormalizeEmpty(t *testing.T) {
	tables, err := New(nil).Tables(nil)
	if err != nil {
		t.Fatalf("空输入不应报错: %v", err)
	}
	if !tables.Empty() {
		t.Fatal("空输入应产生空表")
	}
}
