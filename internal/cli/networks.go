package cli

import (
	"github.com/spf13/cobra"
)

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List the configured subgraph networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Networks()
	},
}
