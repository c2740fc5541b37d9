package cli

import (
	"github.com/spf13/cobra"

	"lending-snapshots/internal/app"
)

var (
	syncNetworks []string
	syncOnce     bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Periodically refresh recent snapshots of several networks into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Sync(cmd.Context(), app.SyncOptions{
			Networks: syncNetworks,
			Once:     syncOnce,
		})
	},
}

func init() {
	syncCmd.Flags().StringSliceVar(&syncNetworks, "network", nil, "Networks to sync (defaults to sync.networks, then all)")
	syncCmd.Flags().BoolVar(&syncOnce, "once", false, "Run a single refresh and exit")
}
