// Package chatscmder provides the chats command for listing, creating and
// removing chats.
package chatscmder

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ggchat/pkg/app"
	"github.com/papercomputeco/ggchat/pkg/chat"
	"github.com/papercomputeco/ggchat/pkg/cliui"
	"github.com/papercomputeco/ggchat/pkg/config"
)

const chatsLongDesc string = `List, create and remove chats.

Without flags, lists every chat, most recent first.

Examples:
  ggchat chats
  ggchat chats --new 3 --title "release notes"
  ggchat chats --remove 12`

const chatsShortDesc string = "List, create and remove chats"

const titleWidth = 48

var flagKeys = []string{config.FlagServer}

type chatsCommander struct {
	newModel int64
	title    string
	remove   int64
}

func NewChatsCmd() *cobra.Command {
	cmder := &chatsCommander{}

	cmd := &cobra.Command{
		Use:   "chats",
		Short: chatsShortDesc,
		Long:  chatsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("new") && cmd.Flags().Changed("remove") {
				return errors.New("--new and --remove cannot be combined")
			}

			a, err := app.FromCommand(cmd, flagKeys)
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			switch {
			case cmd.Flags().Changed("new"):
				return cmder.runNew(cmd.Context(), w, a)
			case cmd.Flags().Changed("remove"):
				return cmder.runRemove(cmd.Context(), w, a)
			default:
				return runList(cmd.Context(), w, a)
			}
		},
	}

	var server string
	config.AddStringFlag(cmd, config.Flags, config.FlagServer, &server)
	cmd.Flags().Int64Var(&cmder.newModel, "new", 0, "Create a chat with the given model id")
	cmd.Flags().StringVar(&cmder.title, "title", "New chat", "Title for --new")
	cmd.Flags().Int64Var(&cmder.remove, "remove", 0, "Remove the chat with the given id")

	return cmd
}

func runList(ctx context.Context, w io.Writer, a *app.App) error {
	chats, err := a.Client.ListChats(ctx)
	if err != nil {
		return fmt.Errorf("listing chats: %w", err)
	}

	if len(chats) == 0 {
		fmt.Fprintf(w, "\n  %s No chats yet. Create one with 'ggchat chats --new <model-id>'.\n\n",
			cliui.DimStyle.Render("●"))
		return nil
	}

	SortRecent(chats)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODEL\tTITLE\tCREATED")
	for _, c := range chats {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n",
			c.ID,
			c.ModelID,
			cliui.Truncate(c.Title, titleWidth),
			formatCreated(c),
		)
	}
	return tw.Flush()
}

func (c *chatsCommander) runNew(ctx context.Context, w io.Writer, a *app.App) error {
	created, err := a.Client.CreateChat(ctx, c.newModel, c.title)
	if err != nil {
		return fmt.Errorf("creating chat: %w", err)
	}

	fmt.Fprintf(w, "\n  %s Created chat %s %s\n\n",
		cliui.Mark(nil),
		cliui.NameStyle.Render(strconv.FormatInt(created.ID, 10)),
		cliui.DimStyle.Render(fmt.Sprintf("(%q, model %d)", created.Title, created.ModelID)),
	)
	return nil
}

func (c *chatsCommander) runRemove(ctx context.Context, w io.Writer, a *app.App) error {
	if err := a.Client.RemoveChat(ctx, c.remove); err != nil {
		return fmt.Errorf("removing chat %d: %w", c.remove, err)
	}

	fmt.Fprintf(w, "\n  %s Removed chat %d\n\n", cliui.Mark(nil), c.remove)
	return nil
}

// SortRecent orders chats newest first; equal timestamps fall back to the
// higher id.
func SortRecent(chats []chat.Chat) {
	slices.SortFunc(chats, func(a, b chat.Chat) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

func formatCreated(c chat.Chat) string {
	if c.CreatedAt.IsZero() {
		return "-"
	}
	return c.CreatedAt.Local().Format("2006-01-02 15:04")
}
