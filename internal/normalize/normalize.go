package normalize

import (
	"fmt"
	"time"

	"lending-snapshots/internal/snapshot"
)

// Normalizer converts raw snapshots into flat rows. Days are computed in loc.
type Normalizer struct {
	loc *time.Location
}

// New builds a Normalizer; a nil location means UTC.
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// Location returns the zone used to derive Day.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Normalize returns one MetricRow per snapshot and one RateRow per nested rate.
// Input order is preserved and nothing is deduplicated. The first failure aborts
// the whole call and no rows are returned.
func (n *Normalizer) Normalize(raw []snapshot.RawSnapshot) ([]snapshot.RateRow, []snapshot.MetricRow, error) {
	metrics := make([]snapshot.MetricRow, 0, len(raw))
	rates := make([]snapshot.RateRow, 0, countRates(raw))

	for i, item := range raw {
		metric, err := n.metricRow(item)
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot %d (block %s): %w", i, item.BlockNumber, err)
		}
		metrics = append(metrics, metric)

		for j, r := range item.Rates {
			row, err := rateRow(r, metric.Day, metric.Asset)
			if err != nil {
				return nil, nil, fmt.Errorf("snapshot %d (block %s) rate %d: %w", i, item.BlockNumber, j, err)
			}
			rates = append(rates, row)
		}
	}

	return rates, metrics, nil
}

// Tables is Normalize packed into snapshot.Tables.
func (n *Normalizer) Tables(raw []snapshot.RawSnapshot) (snapshot.Tables, error) {
	rates, metrics, err := n.Normalize(raw)
	if err != nil {
		return snapshot.Tables{}, err
	}
	return snapshot.Tables{Rates: rates, Metrics: metrics}, nil
}

func (n *Normalizer) metricRow(item snapshot.RawSnapshot) (snapshot.MetricRow, error) {
	ts, err := snapshot.ParseUnix(item.Timestamp)
	if err != nil {
		return snapshot.MetricRow{}, err
	}

	row := snapshot.MetricRow{
		Day:   snapshot.DayOf(ts, n.loc),
		Asset: item.Market.Name,
	}

	amounts := []struct {
		field string
		raw   string
		dst   *int64
	}{
		{"totalValueLockedUSD", item.TotalValueLockedUSD, &row.TVL},
		{"dailyDepositUSD", item.DailyDepositUSD, &row.DailyDepositUSD},
		{"dailyWithdrawUSD", item.DailyWithdrawUSD, &row.DailyWithdrawUSD},
		{"dailyBorrowUSD", item.DailyBorrowUSD, &row.DailyBorrowUSD},
		{"dailyLiquidateUSD", item.DailyLiquidateUSD, &row.DailyLiquidateUSD},
		{"dailyRepayUSD", item.DailyRepayUSD, &row.DailyRepayUSD},
	}
	for _, a := range amounts {
		if *a.dst, err = snapshot.ParseAmount(a.field, a.raw); err != nil {
			return snapshot.MetricRow{}, err
		}
	}

	if row.DailySupplySideRevenueUSD, err = snapshot.ParseFloat("dailySupplySideRevenueUSD", item.DailySupplySideRevenueUSD); err != nil {
		return snapshot.MetricRow{}, err
	}
	if row.DailyProtocolSideRevenueUSD, err = snapshot.ParseFloat("dailyProtocolSideRevenueUSD", item.DailyProtocolSideRevenueUSD); err != nil {
		return snapshot.MetricRow{}, err
	}

	return row, nil
}

func rateRow(r snapshot.RawRate, day time.Time, asset string) (snapshot.RateRow, error) {
	value, err := snapshot.ParseFloat("rates.rate", r.Rate)
	if err != nil {
		return snapshot.RateRow{}, err
	}
	typ, err := snapshot.JoinRateType(r.Side, r.Type)
	if err != nil {
		return snapshot.RateRow{}, err
	}
	return snapshot.RateRow{Day: day, Type: typ, Asset: asset, Rate: value}, nil
}

func countRates(raw []snapshot.RawSnapshot) int {
	total := 0
	for _, item := range raw {
		total += len(item.Rates)
	}
	return total
}
