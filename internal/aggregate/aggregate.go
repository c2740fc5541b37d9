package aggregate

import (
	"sort"
	"time"

	"lending-snapshots/internal/snapshot"
)

// RateFilter bounds which observations take part in averages (Min < rate <= Max).
type RateFilter struct {
	Min float64
	Max float64
}

// DefaultRateFilter drops zero rates and outliers above 10%.
var DefaultRateFilter = RateFilter{Min: 0, Max: 10}

// RatePoint is the mean rate of one type on one day.
type RatePoint struct {
	Day   time.Time
	Type  string
	Mean  float64
	Count int
}

// AssetRate is the mean rate of one asset over the whole window.
type AssetRate struct {
	Asset string
	Mean  float64
	Count int
}

// RevenuePoint sums the revenue columns of one asset on one day.
type RevenuePoint struct {
	Day          time.Time
	Asset        string
	SupplySide   float64
	ProtocolSide float64
}

// Summary is everything the charts need from one session.
type Summary struct {
	Daily            []RatePoint
	BorrowStable     []AssetRate
	BorrowVariable   []AssetRate
	SupplyVariable   []AssetRate
	Revenue          []RevenuePoint
	FilteredOutRates int
}

// FilterRates keeps rows whose rate lies in (f.Min, f.Max].
func FilterRates(rows []snapshot.RateRow, f RateFilter) []snapshot.RateRow {
	out := make([]snapshot.RateRow, 0, len(rows))
	for _, r := range rows {
		if r.Rate > f.Min && r.Rate <= f.Max {
			out = append(out, r)
		}
	}
	return out
}

type dayType struct {
	day int64
	typ string
}

type meanAcc struct {
	sum   float64
	count int
}

// DailyRateAverages groups by (Day, Type) and averages the rate.
// Output is sorted by day, then type.
func DailyRateAverages(rows []snapshot.RateRow) []RatePoint {
	groups := make(map[dayType]*meanAcc)
	days := make(map[int64]time.Time)
	for _, r := range rows {
		key := dayType{day: r.Day.Unix(), typ: r.Type}
		acc, ok := groups[key]
		if !ok {
			acc = &meanAcc{}
			groups[key] = acc
			days[key.day] = r.Day
		}
		acc.sum += r.Rate
		acc.count++
	}

	out := make([]RatePoint, 0, len(groups))
	for key, acc := range groups {
		out = append(out, RatePoint{
			Day:   days[key.day],
			Type:  key.typ,
			Mean:  acc.sum / float64(acc.count),
			Count: acc.count,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// AssetRateAverages averages the rate per asset for a single rate type, sorted by asset.
func AssetRateAverages(rows []snapshot.RateRow, typ string) []AssetRate {
	groups := make(map[string]*meanAcc)
	for _, r := range rows {
		if r.Type != typ {
			continue
		}
		acc, ok := groups[r.Asset]
		if !ok {
			acc = &meanAcc{}
			groups[r.Asset] = acc
		}
		acc.sum += r.Rate
		acc.count++
	}

	out := make([]AssetRate, 0, len(groups))
	for asset, acc := range groups {
		out = append(out, AssetRate{Asset: asset, Mean: acc.sum / float64(acc.count), Count: acc.count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// DailyRevenue sums supply-side and protocol-side revenue per (Day, Asset).
func DailyRevenue(rows []snapshot.MetricRow) []RevenuePoint {
	type key struct {
		day   int64
		asset string
	}
	index := make(map[key]int)
	var out []RevenuePoint
	for _, m := range rows {
		k := key{day: m.Day.Unix(), asset: m.Asset}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, RevenuePoint{Day: m.Day, Asset: m.Asset})
		}
		out[i].SupplySide += m.DailySupplySideRevenueUSD
		out[i].ProtocolSide += m.DailyProtocolSideRevenueUSD
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].Asset < out[j].Asset
	})
	return out
}

// Summarize builds the full chart summary for a session.
func Summarize(tables snapshot.Tables, f RateFilter) Summary {
	rates := FilterRates(tables.Rates, f)
	return Summary{
		Daily:            DailyRateAverages(rates),
		BorrowStable:     AssetRateAverages(rates, snapshot.BorrowerStable),
		BorrowVariable:   AssetRateAverages(rates, snapshot.BorrowerVariable),
		SupplyVariable:   AssetRateAverages(rates, snapshot.LenderVariable),
		Revenue:          DailyRevenue(tables.Metrics),
		FilteredOutRates: len(tables.Rates) - len(rates),
	}
}
