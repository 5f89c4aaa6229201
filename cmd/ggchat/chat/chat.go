// Package chatcmder provides the chat command for interactive turns against
// the hosted chat service.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	chatscmder "github.com/papercomputeco/ggchat/cmd/ggchat/chats"
	"github.com/papercomputeco/ggchat/pkg/app"
	"github.com/papercomputeco/ggchat/pkg/chat"
	"github.com/papercomputeco/ggchat/pkg/client"
	"github.com/papercomputeco/ggchat/pkg/cliui"
	"github.com/papercomputeco/ggchat/pkg/config"
	"github.com/papercomputeco/ggchat/pkg/session"
	"github.com/papercomputeco/ggchat/pkg/transcript"
	"github.com/papercomputeco/ggchat/pkg/turn"
)

const chatLongDesc string = `Start an interactive chat with a hosted model.

Each line you enter is posted as a user message; the reply streams in as it
is generated and the transcript is reloaded from the service once the turn
ends. Without --chat, the most recent chat is resumed; --model starts a new
chat with the given model instead.

Commands inside the chat:
  /chats        List chats
  /switch <id>  Continue another chat
  /exit         Quit (Ctrl+D works too)

Examples:
  ggchat chat
  ggchat chat --chat 12 --temperature 0.2
  ggchat chat --model 3 --title "release notes"
  ggchat chat --markdown --dump-stream turns.sse`

const chatShortDesc string = "Start an interactive chat"

const markdownWidth = 80

var flagKeys = []string{
	config.FlagServer,
	config.FlagTemperature,
	config.FlagMaxTokens,
	config.FlagTopP,
	config.FlagTopK,
	config.FlagRepeatPenalty,
	config.FlagSystemPrompt,
	config.FlagTurnTimeout,
	config.FlagEventsProvider,
	config.FlagEventsBrokers,
	config.FlagEventsTopic,
}

type chatCommander struct {
	chatID     int64
	modelID    int64
	title      string
	dumpStream string
	markdown   bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	app        *app.App
	reconciler *transcript.Reconciler
	runner     *turn.Runner
	params     chat.GenerationParams
	active     int64
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("chat") && cmd.Flags().Changed("model") {
				return errors.New("--chat and --model cannot be combined")
			}

			a, err := app.FromCommand(cmd, flagKeys)
			if err != nil {
				return err
			}
			defer a.Close()

			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, a)
		},
	}

	var (
		server, systemPrompt, turnTimeout string
		provider, brokers, topic          string
		temperature, topP, repeatPenalty  float64
		maxTokens, topK                   int
	)
	config.AddStringFlag(cmd, config.Flags, config.FlagServer, &server)
	config.AddFloatFlag(cmd, config.Flags, config.FlagTemperature, &temperature)
	config.AddIntFlag(cmd, config.Flags, config.FlagMaxTokens, &maxTokens)
	config.AddFloatFlag(cmd, config.Flags, config.FlagTopP, &topP)
	config.AddIntFlag(cmd, config.Flags, config.FlagTopK, &topK)
	config.AddFloatFlag(cmd, config.Flags, config.FlagRepeatPenalty, &repeatPenalty)
	config.AddStringFlag(cmd, config.Flags, config.FlagSystemPrompt, &systemPrompt)
	config.AddStringFlag(cmd, config.Flags, config.FlagTurnTimeout, &turnTimeout)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsProvider, &provider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsBrokers, &brokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsTopic, &topic)

	cmd.Flags().Int64VarP(&cmder.chatID, "chat", "c", 0, "Chat id to continue (default: most recent chat)")
	cmd.Flags().Int64VarP(&cmder.modelID, "model", "m", 0, "Start a new chat with this model id")
	cmd.Flags().StringVar(&cmder.title, "title", "New chat", "Title for a chat started with --model")
	cmd.Flags().StringVar(&cmder.dumpStream, "dump-stream", "", "Append every raw stream byte to this file")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render each reply as markdown once it completes instead of streaming it")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, a *app.App) error {
	c.app = a
	c.params = a.Config.GenerationParams()

	a.WatchSession(ctx)
	a.Session.OnAuthFailure(func(error) {
		fmt.Fprintf(c.errOut, "\n  %s The service rejected the token. Run 'ggchat auth' to log in again.\n",
			cliui.WarnStyle.Render("!"))
	})
	if !a.Session.LoggedIn() {
		return session.ErrNoCredential
	}

	var tee io.Writer
	if c.dumpStream != "" {
		f, err := os.OpenFile(c.dumpStream, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening stream dump: %w", err)
		}
		defer f.Close()
		tee = f
	}

	c.reconciler = transcript.New(transcript.Config{Logger: a.Logger})
	runner, err := turn.NewRunner(turn.RunnerConfig{
		Service:     a.Client,
		Reconciler:  c.reconciler,
		TurnTimeout: a.TurnTimeout,
		Tee:         tee,
		Publisher:   a.Publisher,
		Logger:      a.Logger,
	})
	if err != nil {
		return err
	}
	c.runner = runner

	if !c.markdown {
		printer := &streamPrinter{w: c.out}
		defer c.reconciler.Subscribe(printer.onSnapshot)()
	}

	chatID, err := c.resolveChat(ctx)
	if err != nil {
		return err
	}
	if err := c.switchChat(ctx, chatID); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))
	return c.loop(ctx)
}

func (c *chatCommander) loop(ctx context.Context) error {
	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for ctx.Err() == nil {
		fmt.Fprint(c.out, cliui.UserPrompt.Render("you> "))
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case input == "/exit":
			fmt.Fprintln(c.out)
			return nil
		case input == "/chats":
			c.listChats(ctx)
			continue
		case strings.HasPrefix(input, "/switch"):
			c.handleSwitch(ctx, strings.TrimSpace(strings.TrimPrefix(input, "/switch")))
			continue
		}

		c.send(ctx, input)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// send runs one turn and reports its outcome. Failures are printed, not
// returned, so the session continues.
func (c *chatCommander) send(ctx context.Context, input string) {
	var (
		res *turn.Result
		err error
	)

	if c.markdown {
		_ = cliui.Step(c.errOut, "Generating", func() error {
			res, err = c.runner.Send(ctx, c.active, input, c.params)
			return err
		})
		if res != nil && res.Content != "" {
			rendered, rerr := cliui.RenderMarkdown(res.Content, markdownWidth)
			if rerr != nil {
				c.app.Logger.Debug("rendering markdown", "error", rerr)
			}
			fmt.Fprint(c.out, rendered)
		}
	} else {
		fmt.Fprint(c.out, cliui.AssistantPrompt.Render("assistant> "))
		res, err = c.runner.Send(ctx, c.active, input, c.params)
		fmt.Fprintln(c.out)
	}

	if err != nil {
		fmt.Fprintf(c.errOut, "  %s %s\n\n", cliui.Mark(err), describeError(err))
		return
	}

	if res != nil && res.TokensUsed != nil {
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render(fmt.Sprintf("(%d tokens)", *res.TokensUsed)))
	}
	fmt.Fprintln(c.out)
}

// resolveChat picks the chat to open: --chat, a new chat for --model, or
// the most recent chat.
func (c *chatCommander) resolveChat(ctx context.Context) (int64, error) {
	switch {
	case c.chatID != 0:
		return c.chatID, nil
	case c.modelID != 0:
		created, err := c.app.Client.CreateChat(ctx, c.modelID, c.title)
		if err != nil {
			return 0, fmt.Errorf("creating chat: %w", err)
		}
		return created.ID, nil
	}

	chats, err := c.app.Client.ListChats(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing chats: %w", err)
	}
	if len(chats) == 0 {
		return 0, errors.New("no chats yet: start one with --model <id>")
	}
	chatscmder.SortRecent(chats)
	return chats[0].ID, nil
}

// switchChat makes chatID the active chat and prints its history. Any
// stream still running for the previous chat loses its epoch.
func (c *chatCommander) switchChat(ctx context.Context, chatID int64) error {
	ep := c.reconciler.Switch(chatID)

	t, err := c.app.Client.GetChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading chat %d: %w", chatID, err)
	}
	if err := c.reconciler.Reload(ep, t); err != nil {
		return err
	}
	c.active = chatID

	printHistory(c.out, c.reconciler.Snapshot())
	return nil
}

func (c *chatCommander) handleSwitch(ctx context.Context, arg string) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		fmt.Fprintf(c.errOut, "  %s usage: /switch <chat id>\n\n", cliui.Mark(errors.New("usage")))
		return
	}
	if err := c.switchChat(ctx, id); err != nil {
		fmt.Fprintf(c.errOut, "  %s %s\n\n", cliui.Mark(err), describeError(err))
	}
}

func (c *chatCommander) listChats(ctx context.Context) {
	chats, err := c.app.Client.ListChats(ctx)
	if err != nil {
		fmt.Fprintf(c.errOut, "  %s %s\n\n", cliui.Mark(err), describeError(err))
		return
	}
	chatscmder.SortRecent(chats)

	fmt.Fprintln(c.out)
	for _, ch := range chats {
		marker := " "
		if ch.ID == c.active {
			marker = "*"
		}
		fmt.Fprintf(c.out, "  %s %s  %s\n",
			marker,
			cliui.KeyStyle.Render(strconv.FormatInt(ch.ID, 10)),
			cliui.Truncate(ch.Title, 60),
		)
	}
	fmt.Fprintln(c.out)
}

// describeError turns a turn or request failure into a one-line message.
func describeError(err error) string {
	var (
		upstream  *turn.UpstreamError
		transport *turn.TransportError
	)
	switch {
	case errors.Is(err, client.ErrUnauthorized), errors.Is(err, session.ErrNoCredential):
		return "not logged in: run 'ggchat auth'"
	case errors.Is(err, turn.ErrTurnTimeout):
		return "the reply took too long and was cut off; partial output is kept"
	case errors.As(err, &upstream):
		return "model error: " + upstream.Message
	case errors.As(err, &transport):
		return transport.Error()
	default:
		return err.Error()
	}
}
