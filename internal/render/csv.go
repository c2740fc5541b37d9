package render

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"lending-snapshots/internal/snapshot"
)

// RateColumns and MetricColumns are the stable column sets of the two tables.
var (
	RateColumns   = []string{"Day", "type", "asset", "rate"}
	MetricColumns = []string{"Day", "TVL", "dailyDepositUSD", "dailyWithdrawUSD", "Asset", "dailyBorrowUSD", "dailyLiquidateUSD", "dailyRepayUSD", "dailySupplySideRevenueUSD", "dailyProtocolSideRevenueUSD"}
)

// CSVWriter writes rates.csv and metrics.csv into Dir.
type CSVWriter struct {
	Dir   string
	files []string
}

// Render writes both tables.
func (w *CSVWriter) Render(ctx context.Context, tables snapshot.Tables) error {
	if err := ensureDir(w.Dir); err != nil {
		return err
	}
	w.files = w.files[:0]

	ratesPath := outPath(w.Dir, "rates.csv")
	if err := writeCSV(ratesPath, RateColumns, rateRecords(tables.Rates)); err != nil {
		return err
	}
	w.files = append(w.files, ratesPath)

	metricsPath := outPath(w.Dir, "metrics.csv")
	if err := writeCSV(metricsPath, MetricColumns, metricRecords(tables.Metrics)); err != nil {
		return err
	}
	w.files = append(w.files, metricsPath)
	return nil
}

// Files lists the paths written by the last Render.
func (w *CSVWriter) Files() []string {
	return append([]string(nil), w.files...)
}

func writeCSV(path string, header []string, records [][]string) error {
	return writeFile(path, func(out io.Writer) error {
		writer := csv.NewWriter(out)
		if err := writer.Write(header); err != nil {
			return err
		}
		if err := writer.WriteAll(records); err != nil {
			return err
		}
		return writer.Error()
	})
}

func rateRecords(rows []snapshot.RateRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Day.Format(snapshot.DayLayout),
			r.Type,
			r.Asset,
			formatFloat(r.Rate),
		})
	}
	return out
}

func metricRecords(rows []snapshot.MetricRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, m := range rows {
		out = append(out, []string{
			m.Day.Format(snapshot.DayLayout),
			strconv.FormatInt(m.TVL, 10),
			strconv.FormatInt(m.DailyDepositUSD, 10),
			strconv.FormatInt(m.DailyWithdrawUSD, 10),
			m.Asset,
			strconv.FormatInt(m.DailyBorrowUSD, 10),
			strconv.FormatInt(m.DailyLiquidateUSD, 10),
			strconv.FormatInt(m.DailyRepayUSD, 10),
			formatFloat(m.DailySupplySideRevenueUSD),
			formatFloat(m.DailyProtocolSideRevenueUSD),
		})
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ FileRenderer = (*CSVWriter)(nil)
