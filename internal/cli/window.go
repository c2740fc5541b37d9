package cli

import (
	"time"

	"github.com/spf13/cobra"

	"lending-snapshots/internal/app"
	"lending-snapshots/internal/service"
)

// windowFlags are the --network/--from/--to flags shared by fetch and export.
type windowFlags struct {
	network string
	from    string
	to      string
}

func (w *windowFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&w.network, "network", "", "Network to query (defaults to app.default_network)")
	cmd.Flags().StringVar(&w.from, "from", "", "Window start, RFC3339 or YYYY-MM-DD (inclusive)")
	cmd.Flags().StringVar(&w.to, "to", "", "Window end, RFC3339 or YYYY-MM-DD (inclusive, defaults to now)")
}

func (w *windowFlags) window(a *app.App) (service.Window, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return service.Window{}, err
	}
	return app.ParseWindow(w.from, w.to, time.Now().In(loc), a.Config.App.LookbackDays, loc)
}
