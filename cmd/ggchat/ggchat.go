// Package ggchatcmder
package ggchatcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/ggchat/cmd/ggchat/auth"
	chatcmder "github.com/papercomputeco/ggchat/cmd/ggchat/chat"
	chatscmder "github.com/papercomputeco/ggchat/cmd/ggchat/chats"
	configcmder "github.com/papercomputeco/ggchat/cmd/ggchat/config"
	jobscmder "github.com/papercomputeco/ggchat/cmd/ggchat/jobs"
	versioncmder "github.com/papercomputeco/ggchat/cmd/version"
	"github.com/papercomputeco/ggchat/pkg/cliui"
)

const ggchatLongDesc string = `ggchat is a terminal client for a hosted LLM chat service.

Chat with a model, browse chats and follow model downloads:
  ggchat auth          Store the bearer token for the service
  ggchat chat          Start an interactive chat
  ggchat chats         List, create and remove chats
  ggchat jobs          Show model download jobs
  ggchat config        Manage persistent configuration`

const ggchatShortDesc string = "ggchat - hosted LLM chat client"

func NewGGChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ggchat",
		Short:         ggchatShortDesc,
		Long:          ggchatLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
				cliui.DisableColor()
			}
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .ggchat/ config directory")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().String("log-file", "", "Also append JSON debug logs to this file")

	// Add subcommands
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(chatscmder.NewChatsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(jobscmder.NewJobsCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
