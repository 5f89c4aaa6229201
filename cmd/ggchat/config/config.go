// Package configcmder provides the config command for managing persistent
// ggchat configuration stored in the .ggchat/ directory.
package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/ggchat/pkg/config"
)

const configLongDesc string = `Manage persistent ggchat configuration.

Configuration is stored as config.toml in the .ggchat/ directory and provides
default values for command flags. CLI flags and GGCHAT_ environment variables
take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  server.url,
  generation.temperature, generation.max_tokens, generation.top_p,
  generation.top_k, generation.repeat_penalty, generation.system_prompt,
  stream.turn_timeout,
  jobs.active_interval, jobs.idle_interval,
  events.provider, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  ggchat config set <key> <value>    Set a configuration value
  ggchat config get <key>            Get a configuration value
  ggchat config list                 List all configuration values

Examples:
  ggchat config set server.url https://chat.example.com
  ggchat config set generation.temperature 0.2
  ggchat config get stream.turn_timeout
  ggchat config list`

const configShortDesc string = "Manage persistent ggchat configuration"

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

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
