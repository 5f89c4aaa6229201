// Package authcmder provides the auth command for storing the bearer token
// used against the chat service.
package authcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/ggchat/pkg/client"
	"github.com/papercomputeco/ggchat/pkg/cliui"
	"github.com/papercomputeco/ggchat/pkg/config"
	"github.com/papercomputeco/ggchat/pkg/session"
)

const authLongDesc string = `Store the bearer token for the chat service.

The token is stored in session.toml (mode 0600) in the .ggchat/ directory
and sent with every request. Running ggchat processes pick up a new token
or a logout immediately.

Examples:
  ggchat auth                   Prompt for the token
  ggchat auth --verify          Store the token after checking it works
  ggchat auth --status          Show whether a token is stored
  ggchat auth --logout          Remove the stored token
  echo $TOKEN | ggchat auth     Pipe the token from stdin`

const authShortDesc string = "Store the bearer token for the chat service"

type authCommander struct {
	logout bool
	status bool
	verify bool
	server string
}

func NewAuthCmd() *cobra.Command {
	cmder := &authCommander{}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagServer})
			cmder.server = v.GetString("server.url")

			store, err := session.NewStore(configDir)
			if err != nil {
				return fmt.Errorf("opening session store: %w", err)
			}

			w := cmd.OutOrStdout()
			switch {
			case cmder.logout:
				return runLogout(w, store)
			case cmder.status:
				return runStatus(w, store)
			default:
				return cmder.runLogin(cmd.Context(), w, cmd.InOrStdin(), store)
			}
		},
	}

	var server string
	config.AddStringFlag(cmd, config.Flags, config.FlagServer, &server)
	cmd.Flags().BoolVar(&cmder.logout, "logout", false, "Remove the stored token")
	cmd.Flags().BoolVar(&cmder.status, "status", false, "Show whether a token is stored")
	cmd.Flags().BoolVar(&cmder.verify, "verify", false, "Check the token against the server before storing it")

	return cmd
}

func (c *authCommander) runLogin(ctx context.Context, w io.Writer, in io.Reader, store *session.Store) error {
	token, err := readToken(w, in, c.server)
	if err != nil {
		return err
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token cannot be empty")
	}

	if c.verify {
		if err := verifyToken(ctx, c.server, token); err != nil {
			return err
		}
	}

	if err := store.Save(&session.Stored{Token: token, Server: c.server}); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s Stored token for %s %s\n\n",
		cliui.Mark(nil),
		cliui.NameStyle.Render(c.server),
		cliui.DimStyle.Render("("+store.GetTarget()+")"),
	)
	return nil
}

func runStatus(w io.Writer, store *session.Store) error {
	stored, err := store.Load()
	if err != nil {
		return err
	}

	if stored.Token == "" {
		fmt.Fprintf(w, "\n  %s Not logged in.\n", cliui.DimStyle.Render("●"))
		fmt.Fprintf(w, "  Use 'ggchat auth' to store a token.\n\n")
		return nil
	}

	server := stored.Server
	if server == "" {
		server = "<unknown server>"
	}
	fmt.Fprintf(w, "\n  %s Logged in to %s %s\n\n",
		cliui.Mark(nil),
		cliui.NameStyle.Render(server),
		cliui.DimStyle.Render("(token "+cliui.Truncate(stored.Token, 5)+")"),
	)
	return nil
}

func runLogout(w io.Writer, store *session.Store) error {
	if err := store.Remove(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s Removed stored token.\n\n", cliui.Mark(nil))
	return nil
}

// verifyToken lists chats with token, so a rejected token never reaches
// session.toml.
func verifyToken(ctx context.Context, server, token string) error {
	c, err := client.New(client.Config{
		BaseURL: server,
		Session: session.New(token),
	})
	if err != nil {
		return err
	}

	if _, err := c.ListChats(ctx); err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			return fmt.Errorf("token rejected by %s: %w", server, err)
		}
		return fmt.Errorf("verifying token: %w", err)
	}
	return nil
}

// readToken reads a token from in. Terminals get a hidden prompt; anything
// else is read up to the first newline.
func readToken(w io.Writer, in io.Reader, server string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(w, "Enter token for %s: ", server)

		tokenBytes, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(w) // newline after hidden input
		if err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return string(tokenBytes), nil
	}

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}
