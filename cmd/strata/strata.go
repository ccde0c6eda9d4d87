// Package stratacmder
package stratacmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/strata/cmd/strata/config"
	deadlettercmder "github.com/papercomputeco/strata/cmd/strata/deadletter"
	servecmder "github.com/papercomputeco/strata/cmd/strata/serve"
	versioncmder "github.com/papercomputeco/strata/cmd/version"
)

const strataLongDesc string = `Strata is a tiered memory layer for agents.

Writes land in fast volatile tiers and are committed to a durable store in
the background, coalesced per key.

Run services using:
  strata serve                 Run the memory API (HTTP + MCP)
  strata config list           Show the resolved configuration
  strata deadletter list       Inspect writes that exhausted their retries`

const strataShortDesc string = "Strata - Tiered Agent Memory"

func NewStrataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "strata",
		Short:        strataShortDesc,
		Long:         strataLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .strata/ directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(deadlettercmder.NewDeadLetterCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
