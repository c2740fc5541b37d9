package app

import (
	"context"
	"errors"
	"fmt"

	"lending-snapshots/internal/render"
	"lending-snapshots/internal/service"
	"lending-snapshots/internal/storage"
)

// Fetch runs one session and prints the summary tables.
func (a *App) Fetch(ctx context.Context, opts FetchOptions) error {
	name, network, err := a.resolveNetwork(opts.Network)
	if err != nil {
		return err
	}

	var store *storage.Store
	if opts.Persist {
		var closeStore func()
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn 未配置，无法保存会话")
		}
		defer closeStore()
	}

	printer := &render.TablePrinter{Out: a.Out, Filter: a.rateFilter()}
	svc, closeSvc, err := a.newService(name, network, []render.Renderer{printer}, store)
	if err != nil {
		return err
	}
	defer closeSvc()

	res, err := svc.Run(ctx, opts.Window)
	if err != nil {
		return err
	}
	a.printSessionFooter(res)
	return nil
}

func (a *App) printSessionFooter(res service.Result) {
	fmt.Fprintf(a.Out, "\nSession %s  network=%s  snapshots=%d  cursor=%d", res.SessionID, res.Network, res.Snapshots, res.Cursor)
	if res.Head > 0 {
		fmt.Fprintf(a.Out, "  head=%d  lag=%d", res.Head, res.Lag)
	}
	if res.Persisted {
		fmt.Fprint(a.Out, "  persisted")
	}
	fmt.Fprintln(a.Out)
}
