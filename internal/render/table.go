package render

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"lending-snapshots/internal/aggregate"
	"lending-snapshots/internal/snapshot"
)

// TablePrinter prints the session summary as aligned text tables.
type TablePrinter struct {
	Out    io.Writer
	Filter aggregate.RateFilter
}

// Render prints daily average rates per type, per-asset averages and revenue totals.
func (p *TablePrinter) Render(ctx context.Context, tables snapshot.Tables) error {
	if tables.Empty() {
		_, err := fmt.Fprintln(p.Out, "no snapshots found for the selected window")
		return err
	}

	summary := aggregate.Summarize(tables, p.Filter)

	writer := tabwriter.NewWriter(p.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Snapshots: %d\tRate observations: %d\tFiltered out: %d\n\n", len(tables.Metrics), len(tables.Rates), summary.FilteredOutRates)

	fmt.Fprint(writer, "Day")
	for _, typ := range snapshot.RateTypes {
		fmt.Fprintf(writer, "\t%s", typ)
	}
	fmt.Fprintln(writer)
	for _, row := range pivotDaily(summary.Daily) {
		fmt.Fprint(writer, row.day)
		for _, typ := range snapshot.RateTypes {
			if v, ok := row.values[typ]; ok {
				fmt.Fprintf(writer, "\t%.3f", v)
			} else {
				fmt.Fprint(writer, "\t-")
			}
		}
		fmt.Fprintln(writer)
	}
	fmt.Fprintln(writer)

	sections := []struct {
		title string
		rows  []aggregate.AssetRate
	}{
		{"Average stable borrow rate", summary.BorrowStable},
		{"Average variable borrow rate", summary.BorrowVariable},
		{"Average supply rate", summary.SupplyVariable},
	}
	for _, s := range sections {
		fmt.Fprintf(writer, "%s\tMean %%\tSamples\n", s.title)
		for _, r := range s.rows {
			fmt.Fprintf(writer, "  %s\t%.3f\t%d\n", r.Asset, r.Mean, r.Count)
		}
		fmt.Fprintln(writer)
	}

	var supply, protocol float64
	for _, r := range summary.Revenue {
		supply += r.SupplySide
		protocol += r.ProtocolSide
	}
	fmt.Fprintf(writer, "Supply side revenue (USD)\t%.2f\n", supply)
	fmt.Fprintf(writer, "Protocol side revenue (USD)\t%.2f\n", protocol)

	return writer.Flush()
}

type dailyRow struct {
	day    string
	values map[string]float64
}

func pivotDaily(points []aggregate.RatePoint) []dailyRow {
	var rows []dailyRow
	for _, p := range points {
		day := p.Day.Format(snapshot.DayLayout)
		if len(rows) == 0 || rows[len(rows)-1].day != day {
			rows = append(rows, dailyRow{day: day, values: make(map[string]float64)})
		}
		rows[len(rows)-1].values[p.Type] = p.Mean
	}
	return rows
}

var _ Renderer = (*TablePrinter)(nil)
