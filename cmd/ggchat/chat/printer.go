package chatcmder

import (
	"fmt"
	"io"

	"github.com/papercomputeco/ggchat/pkg/chat"
	"github.com/papercomputeco/ggchat/pkg/cliui"
)

// streamPrinter writes the growth of the in-flight assistant message as
// transcript snapshots arrive.
type streamPrinter struct {
	w       io.Writer
	id      int64
	printed int
}

func (p *streamPrinter) onSnapshot(t chat.Transcript) {
	i := t.LastAssistant()
	if i < 0 {
		return
	}

	m := t.Messages[i]
	if m.State == chat.Confirmed && m.ID > 0 {
		return
	}

	if m.ID != p.id {
		p.id, p.printed = m.ID, 0
	}
	if len(m.Content) > p.printed {
		fmt.Fprint(p.w, m.Content[p.printed:])
		p.printed = len(m.Content)
	}
}

func printHistory(w io.Writer, t chat.Transcript) {
	fmt.Fprintf(w, "\n  %s %s %s\n\n",
		cliui.KeyStyle.Render("Chat:"),
		cliui.NameStyle.Render(t.Chat.Title),
		cliui.DimStyle.Render(fmt.Sprintf("(id %d, model %d, %d messages)",
			t.Chat.ID, t.Chat.ModelID, len(t.Messages))),
	)

	for _, m := range t.Messages {
		fmt.Fprintf(w, "%s%s\n", roleLabel(m), m.Content)
		if m.State == chat.Failed {
			fmt.Fprintf(w, "  %s\n", cliui.WarnStyle.Render("(incomplete reply)"))
		}
	}
	if len(t.Messages) > 0 {
		fmt.Fprintln(w)
	}
}

func roleLabel(m chat.Message) string {
	switch m.Role {
	case chat.RoleUser:
		return cliui.UserPrompt.Render("you> ")
	case chat.RoleAssistant:
		return cliui.AssistantPrompt.Render("assistant> ")
	default:
		return cliui.DimStyle.Render(string(m.Role) + "> ")
	}
}
