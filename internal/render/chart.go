package render

import (
	"context"
	"io"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	chart "github.com/wcharczuk/go-chart/v2"

	"lending-snapshots/internal/aggregate"
	"lending-snapshots/internal/snapshot"
)

// ChartOptions configure the PNG chart writer.
type ChartOptions struct {
	Dir       string
	Filter    aggregate.RateFilter
	MaxPoints int
	Width     int
	Height    int
}

// ChartWriter draws the dashboard charts as PNG files.
type ChartWriter struct {
	opts   ChartOptions
	logger zerolog.Logger
	files  []string
}

// NewChartWriter builds a chart writer.
func NewChartWriter(opts ChartOptions, logger zerolog.Logger) *ChartWriter {
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}
	return &ChartWriter{opts: opts, logger: logger.With().Str("component", "chart_writer").Logger()}
}

// Render writes every chart that has enough data to be drawn.
func (w *ChartWriter) Render(ctx context.Context, tables snapshot.Tables) error {
	if err := ensureDir(w.opts.Dir); err != nil {
		return err
	}
	w.files = w.files[:0]

	summary := aggregate.Summarize(tables, w.opts.Filter)

	if err := w.writeRatesOverTime(summary.Daily); err != nil {
		return err
	}

	bars := []struct {
		name  string
		title string
		rows  []aggregate.AssetRate
	}{
		{"borrow_stable_by_asset.png", "Average stable borrow rate", summary.BorrowStable},
		{"borrow_variable_by_asset.png", "Average variable borrow rate", summary.BorrowVariable},
		{"supply_by_asset.png", "Average supply rate", summary.SupplyVariable},
	}
	for _, b := range bars {
		if err := w.writeAssetBars(b.name, b.title, b.rows); err != nil {
			return err
		}
	}

	if err := w.writeRevenue("supply_side_revenue.png", "Daily supply side revenue share by asset", summary.Revenue, func(p aggregate.RevenuePoint) float64 { return p.SupplySide }); err != nil {
		return err
	}
	return w.writeRevenue("protocol_side_revenue.png", "Daily protocol side revenue share by asset", summary.Revenue, func(p aggregate.RevenuePoint) float64 { return p.ProtocolSide })
}

// Files lists the charts written by the last Render.
func (w *ChartWriter) Files() []string {
	return append([]string(nil), w.files...)
}

func (w *ChartWriter) writeRatesOverTime(points []aggregate.RatePoint) error {
	byType := make(map[string][]aggregate.RatePoint)
	for _, p := range points {
		byType[p.Type] = append(byType[p.Type], p)
	}

	var series []chart.Series
	var all []float64
	days := make(map[int64]struct{})
	for _, typ := range snapshot.RateTypes {
		pts := downsample(byType[typ], w.opts.MaxPoints)
		if len(pts) == 0 {
			continue
		}
		x := make([]time.Time, len(pts))
		y := make([]float64, len(pts))
		for i, p := range pts {
			x[i] = p.Day
			y[i] = p.Mean
			days[p.Day.Unix()] = struct{}{}
		}
		all = append(all, y...)
		series = append(series, chart.TimeSeries{Name: typ, XValues: x, YValues: y})
	}

	if len(days) < 2 {
		w.logger.Info().Int("days", len(days)).Msg("not enough days for the rates chart, skipping")
		return nil
	}

	graph := chart.Chart{
		Title:  "Average supply and borrow rates over time",
		Width:  w.opts.Width,
		Height: w.opts.Height,
		XAxis: chart.XAxis{
			ValueFormatter: dayFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Rate (%)",
			ValueFormatter: rateFormatter,
			Range:          paddedRange(all),
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return w.renderFile("rates_over_time.png", func(out io.Writer) error {
		return graph.Render(chart.PNG, out)
	})
}

func (w *ChartWriter) writeAssetBars(name, title string, rows []aggregate.AssetRate) error {
	if len(rows) == 0 {
		w.logger.Info().Str("chart", name).Msg("no rates for chart, skipping")
		return nil
	}

	bars := make([]chart.Value, 0, len(rows))
	highest := 0.0
	for _, r := range rows {
		bars = append(bars, chart.Value{Label: r.Asset, Value: r.Mean})
		highest = math.Max(highest, r.Mean)
	}
	if highest <= 0 {
		highest = 1
	}

	graph := chart.BarChart{
		Title:    title,
		Width:    w.opts.Width,
		Height:   w.opts.Height / 2,
		BarWidth: barWidth(w.opts.Width, len(bars)),
		YAxis: chart.YAxis{
			ValueFormatter: rateFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: highest * 1.1},
		},
		Bars: bars,
	}

	return w.renderFile(name, func(out io.Writer) error {
		return graph.Render(chart.PNG, out)
	})
}

// writeRevenue draws one stacked bar per day with a segment per asset. go-chart
// scales every stacked bar to its own total, so the chart shows each asset's
// share of the day's revenue; absolute amounts live in the table outputs.
func (w *ChartWriter) writeRevenue(name, title string, points []aggregate.RevenuePoint, value func(aggregate.RevenuePoint) float64) error {
	var assets []string
	seen := make(map[string]bool)
	var days []time.Time
	byDay := make(map[int64]map[string]float64)
	for _, p := range points {
		if !seen[p.Asset] {
			seen[p.Asset] = true
			assets = append(assets, p.Asset)
		}
		k := p.Day.Unix()
		if _, ok := byDay[k]; !ok {
			byDay[k] = make(map[string]float64)
			days = append(days, p.Day)
		}
		byDay[k][p.Asset] += value(p)
	}
	sort.Strings(assets)

	bars := make([]chart.StackedBar, 0, len(days))
	for _, day := range days {
		values := make([]chart.Value, 0, len(assets))
		total := 0.0
		for _, asset := range assets {
			// negative revenue cannot be drawn as a share
			v := math.Max(byDay[day.Unix()][asset], 0)
			total += v
			values = append(values, chart.Value{Label: asset, Value: v})
		}
		if total <= 0 {
			continue
		}
		bars = append(bars, chart.StackedBar{Name: day.Format(snapshot.DayLayout), Values: values})
	}
	if len(bars) == 0 {
		w.logger.Info().Str("chart", name).Msg("no positive revenue for chart, skipping")
		return nil
	}

	bw := barWidth(w.opts.Width, len(bars))
	spacing := max(bw/2, 4)
	for i := range bars {
		bars[i].Width = bw
	}

	graph := chart.StackedBarChart{
		Title:      title,
		Width:      max(w.opts.Width, len(bars)*(bw+spacing)+120),
		Height:     w.opts.Height,
		BarSpacing: spacing,
		Bars:       bars,
	}

	return w.renderFile(name, func(out io.Writer) error {
		return graph.Render(chart.PNG, out)
	})
}

func (w *ChartWriter) renderFile(name string, draw func(io.Writer) error) error {
	path := outPath(w.opts.Dir, name)
	if err := writeFile(path, draw); err != nil {
		return err
	}
	w.files = append(w.files, path)
	return nil
}

func dayFormatter(v interface{}) string {
	return chart.TimeValueFormatterWithFormat(snapshot.DayLayout)(v)
}

func rateFormatter(v interface{}) string {
	return chart.FloatValueFormatterWithFormat(v, "%.2f")
}

// paddedRange returns an explicit y range when every value is identical, since
// go-chart refuses to draw a zero-height range. Otherwise the axis auto-ranges.
func paddedRange(values []float64) chart.Range {
	if len(values) == 0 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi > lo {
		return nil
	}
	return &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
}

func barWidth(width, bars int) int {
	if bars <= 0 {
		return 40
	}
	bw := width / (bars * 2)
	if bw > 80 {
		return 80
	}
	if bw < 8 {
		return 8
	}
	return bw
}

func downsample(points []aggregate.RatePoint, max int) []aggregate.RatePoint {
	if max <= 1 || len(points) <= max {
		return points
	}

	result := make([]aggregate.RatePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

var _ FileRenderer = (*ChartWriter)(nil)
