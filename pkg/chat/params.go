package chat

import (
	"net/url"
	"strconv"
	"strings"
)

// GenerationParams are the sampling controls sent with each turn.
type GenerationParams struct {
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	MaxTokens     int

	// SystemPrompt overrides the chat's system prompt when non-blank.
	SystemPrompt string
}

// DefaultGenerationParams returns the service's stock sampling settings.
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		Temperature:   0.7,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
		MaxTokens:     512,
	}
}

// TurnContext identifies one streamed turn. It is immutable for the
// duration of the stream.
type TurnContext struct {
	ChatID int64

	// AfterMessageID anchors the turn to the confirmed user message.
	AfterMessageID int64

	Params GenerationParams
}

// Query encodes the turn as stream request parameters. The system prompt is
// trimmed and omitted when blank.
func (t TurnContext) Query() url.Values {
	q := url.Values{}
	q.Set("after_message_id", strconv.FormatInt(t.AfterMessageID, 10))
	q.Set("temperature", formatFloat(t.Params.Temperature))
	q.Set("max_tokens", strconv.Itoa(t.Params.MaxTokens))
	q.Set("top_p", formatFloat(t.Params.TopP))
	q.Set("top_k", strconv.Itoa(t.Params.TopK))
	q.Set("repeat_penalty", formatFloat(t.Params.RepeatPenalty))

	if sp := strings.TrimSpace(t.Params.SystemPrompt); sp != "" {
		q.Set("system_prompt", sp)
	}
	return q
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
