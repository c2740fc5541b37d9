package cli

import (
	"github.com/spf13/cobra"

	"lending-snapshots/internal/app"
)

var (
	fetchWindow  windowFlags
	fetchPersist bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch snapshots for a window and print rate and revenue summaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		window, err := fetchWindow.window(a)
		if err != nil {
			return err
		}
		return a.Fetch(cmd.Context(), app.FetchOptions{
			Network: fetchWindow.network,
			Window:  window,
			Persist: fetchPersist,
		})
	},
}

func init() {
	fetchWindow.register(fetchCmd)
	fetchCmd.Flags().BoolVar(&fetchPersist, "persist", false, "Save the session to the database")
}
