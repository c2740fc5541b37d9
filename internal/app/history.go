package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"lending-snapshots/internal/snapshot"
)

// History prints recently persisted sessions.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn 未配置，无法查看历史")
	}
	defer closeStore()

	sessions, err := store.ListRecentSessions(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(a.Out, "no sessions found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Created (UTC)\tSession\tNetwork\tFrom\tTo\tCursor\tSnapshots\tRates")
	for _, s := range sessions {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			s.CreatedAt.UTC().Format(time.RFC3339),
			s.ID,
			s.Network,
			s.WindowStart.Format(snapshot.DayLayout),
			s.WindowEnd.Format(snapshot.DayLayout),
			s.Cursor,
			s.SnapshotRows,
			s.RateRows,
		)
	}
	return writer.Flush()
}
