package app

import (
	"fmt"
	"text/tabwriter"
)

// Networks lists the configured subgraph deployments.
func (a *App) Networks() error {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Name\tLabel\tEndpoint\tChain head\tNote")
	for _, name := range a.Config.NetworkNames() {
		n := a.Config.Networks[name]
		head := "-"
		if n.RPCURL != "" {
			head = "rpc"
		}
		note := ""
		if n.Backfilling {
			note = "backfilling"
		}
		if name == a.Config.App.DefaultNetwork {
			if note != "" {
				note += ", "
			}
			note += "default"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", name, n.Label, n.Endpoint, head, note)
	}
	return writer.Flush()
}
