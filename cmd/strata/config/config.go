// Package configcmder provides the config command for managing persistent
// strata configuration stored in the .strata/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent strata configuration.

Configuration is stored as config.toml in the .strata/ directory and provides
default values for command flags. CLI flags and STRATA_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example:
  server.listen, l2.provider, l2.target, durable.provider, durable.target,
  sync.debounce, sync.max_attempts, timeouts.read, compression.algorithm,
  vector_store.provider, embedding.model, events.provider

Use subcommands to get, set, or list configuration values:
  strata config set <key> <value>    Set a configuration value
  strata config get <key>            Get a configuration value
  strata config list                 List all configuration values

Examples:
  strata config set l2.provider redis
  strata config set l2.target localhost:6379
  strata config set sync.debounce 250ms
  strata config get durable.provider
  strata config list`

const configShortDesc string = "Manage persistent strata configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
