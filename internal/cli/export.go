package cli

import (
	"github.com/spf13/cobra"

	"lending-snapshots/internal/app"
)

var (
	exportWindow    windowFlags
	exportDir       string
	exportFormats   []string
	exportMaxPoints int
	exportUpload    bool
	exportPersist   bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Fetch snapshots and export them as CSV, PNG charts and/or Parquet",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		window, err := exportWindow.window(a)
		if err != nil {
			return err
		}
		return a.Export(cmd.Context(), app.ExportOptions{
			Network:   exportWindow.network,
			Window:    window,
			Dir:       exportDir,
			Formats:   exportFormats,
			MaxPoints: exportMaxPoints,
			Upload:    exportUpload,
			Persist:   exportPersist,
		})
	},
}

func init() {
	exportWindow.register(exportCmd)
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "Output directory (defaults to export.dir/<network>_<from>_<to>)")
	exportCmd.Flags().StringSliceVar(&exportFormats, "format", nil, "Formats to write: csv, png, parquet (defaults to export.formats)")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum points per chart series (defaults to config)")
	exportCmd.Flags().BoolVar(&exportUpload, "upload", false, "Upload the exported files to S3")
	exportCmd.Flags().BoolVar(&exportPersist, "persist", false, "Save the session to the database")
}
