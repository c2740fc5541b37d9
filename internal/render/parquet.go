package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"lending-snapshots/internal/snapshot"
)

type rateParquetRecord struct {
	Day   int32   `parquet:"name=day, type=INT32, convertedtype=DATE"`
	Type  string  `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Asset string  `parquet:"name=asset, type=BYTE_ARRAY, convertedtype=UTF8"`
	Rate  float64 `parquet:"name=rate, type=DOUBLE"`
}

type metricParquetRecord struct {
	Day                         int32   `parquet:"name=day, type=INT32, convertedtype=DATE"`
	TVL                         int64   `parquet:"name=tvl, type=INT64"`
	DailyDepositUSD             int64   `parquet:"name=daily_deposit_usd, type=INT64"`
	DailyWithdrawUSD            int64   `parquet:"name=daily_withdraw_usd, type=INT64"`
	Asset                       string  `parquet:"name=asset, type=BYTE_ARRAY, convertedtype=UTF8"`
	DailyBorrowUSD              int64   `parquet:"name=daily_borrow_usd, type=INT64"`
	DailyLiquidateUSD           int64   `parquet:"name=daily_liquidate_usd, type=INT64"`
	DailyRepayUSD               int64   `parquet:"name=daily_repay_usd, type=INT64"`
	DailySupplySideRevenueUSD   float64 `parquet:"name=daily_supply_side_revenue_usd, type=DOUBLE"`
	DailyProtocolSideRevenueUSD float64 `parquet:"name=daily_protocol_side_revenue_usd, type=DOUBLE"`
}

// ParquetWriter writes rates.parquet and metrics.parquet into Dir.
type ParquetWriter struct {
	Dir         string
	Compression string
	files       []string
}

// Render writes both tables as parquet files.
func (w *ParquetWriter) Render(ctx context.Context, tables snapshot.Tables) error {
	if err := ensureDir(w.Dir); err != nil {
		return err
	}
	w.files = w.files[:0]

	rates := make([]interface{}, 0, len(tables.Rates))
	for _, r := range tables.Rates {
		rates = append(rates, rateParquetRecord{
			Day:   epochDays(r.Day),
			Type:  r.Type,
			Asset: r.Asset,
			Rate:  r.Rate,
		})
	}
	ratesPath := outPath(w.Dir, "rates.parquet")
	if err := w.write(ratesPath, new(rateParquetRecord), rates); err != nil {
		return fmt.Errorf("write rates parquet: %w", err)
	}
	w.files = append(w.files, ratesPath)

	metrics := make([]interface{}, 0, len(tables.Metrics))
	for _, m := range tables.Metrics {
		metrics = append(metrics, metricParquetRecord{
			Day:                         epochDays(m.Day),
			TVL:                         m.TVL,
			DailyDepositUSD:             m.DailyDepositUSD,
			DailyWithdrawUSD:            m.DailyWithdrawUSD,
			Asset:                       m.Asset,
			DailyBorrowUSD:              m.DailyBorrowUSD,
			DailyLiquidateUSD:           m.DailyLiquidateUSD,
			DailyRepayUSD:               m.DailyRepayUSD,
			DailySupplySideRevenueUSD:   m.DailySupplySideRevenueUSD,
			DailyProtocolSideRevenueUSD: m.DailyProtocolSideRevenueUSD,
		})
	}
	metricsPath := outPath(w.Dir, "metrics.parquet")
	if err := w.write(metricsPath, new(metricParquetRecord), metrics); err != nil {
		return fmt.Errorf("write metrics parquet: %w", err)
	}
	w.files = append(w.files, metricsPath)
	return nil
}

// Files lists the paths written by the last Render.
func (w *ParquetWriter) Files() []string {
	return append([]string(nil), w.files...)
}

func (w *ParquetWriter) write(path string, schema interface{}, records []interface{}) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, schema, 1)
	if err != nil {
		return fmt.Errorf("new parquet writer: %w", err)
	}

	switch strings.ToLower(w.Compression) {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, rec := range records {
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return err
		}
	}
	return pw.WriteStop()
}

// epochDays converts a Day to days since 1970-01-01 for the parquet DATE type,
// keeping the wall-clock date of the Day's own zone.
func epochDays(day time.Time) int32 {
	y, m, d := day.Date()
	return int32(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

var _ FileRenderer = (*ParquetWriter)(nil)
