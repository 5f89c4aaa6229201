// Package turn drives a single chat turn: it opens the turn's event stream,
// decodes it incrementally and applies each event to the transcript in
// arrival order.
package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/ggchat/pkg/chat"
	"github.com/papercomputeco/ggchat/pkg/client"
	"github.com/papercomputeco/ggchat/pkg/logger"
	"github.com/papercomputeco/ggchat/pkg/sse"
	"github.com/papercomputeco/ggchat/pkg/transcript"
)

// Event kinds carried by the turn stream.
const (
	KindToken = "token"
	KindDone  = "done"
	KindError = "error"
)

// DefaultTurnTimeout bounds a whole turn when no timeout is configured.
const DefaultTurnTimeout = 5 * time.Minute

// StreamOpener opens the event stream of one turn. The caller closes the
// returned body.
type StreamOpener interface {
	OpenStream(ctx context.Context, turn chat.TurnContext) (io.ReadCloser, error)
}

// Sink receives the effects of decoded events. *transcript.Reconciler
// implements it.
type Sink interface {
	AppendToken(ep transcript.Epoch, text string) error
	Finalize(ep transcript.Epoch, count string) error
}

// Result summarizes a consumed stream. It is returned alongside an error
// when the turn failed after tokens were applied.
type Result struct {
	// Fragments is the number of token events applied.
	Fragments int

	// Content is the concatenation of every applied token.
	Content string

	// TokensUsed is the count carried by "done", when it parsed.
	TokensUsed *int

	// Terminated reports whether a "done" or "error" event ended the
	// stream. A stream that simply ends is a clean completion with
	// Terminated false.
	Terminated bool
}

// Config configures a Consumer.
type Config struct {
	Opener StreamOpener

	// TurnTimeout bounds the whole stream. Zero means DefaultTurnTimeout.
	TurnTimeout time.Duration

	// Tee receives a verbatim copy of every raw stream byte, if set.
	Tee io.Writer

	Logger *slog.Logger
}

// Consumer turns one stream into transcript effects.
type Consumer struct {
	opener  StreamOpener
	timeout time.Duration
	tee     io.Writer
	logger  *slog.Logger
}

// NewConsumer returns a Consumer.
func NewConsumer(cfg Config) (*Consumer, error) {
	if cfg.Opener == nil {
		return nil, errors.New("turn consumer requires a stream opener")
	}

	timeout := cfg.TurnTimeout
	if timeout <= 0 {
		timeout = DefaultTurnTimeout
	}

	return &Consumer{
		opener:  cfg.Opener,
		timeout: timeout,
		tee:     cfg.Tee,
		logger:  logger.OrNop(cfg.Logger),
	}, nil
}

// Consume opens exactly one stream for turn and applies its events to sink
// under ep until a terminal event, the end of the stream, a failure or the
// turn timeout. The body is closed as soon as processing stops.
//
// Tokens applied before a failure are kept and reported in the Result.
func (c *Consumer) Consume(ctx context.Context, turn chat.TurnContext, ep transcript.Epoch, sink Sink) (*Result, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, c.timeout, ErrTurnTimeout)
	defer cancel()

	log := c.logger.With("chat_id", turn.ChatID, "after_message_id", turn.AfterMessageID)
	res := &Result{}

	body, err := c.opener.OpenStream(ctx, turn)
	if err != nil {
		if errors.Is(context.Cause(ctx), ErrTurnTimeout) {
			return res, ErrTurnTimeout
		}
		terr := &TransportError{Op: "open", Err: err}
		var serr *client.StatusError
		if errors.As(err, &serr) {
			terr.StatusCode = serr.StatusCode
		}
		return res, terr
	}
	if body == nil || body == http.NoBody {
		if body != nil {
			body.Close()
		}
		return res, &TransportError{Op: "open", Err: ErrEmptyBody}
	}
	defer body.Close()

	// Closing the body is the only way to interrupt a blocked read.
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	var opts []sse.Option
	if c.tee != nil {
		opts = append(opts, sse.WithTee(c.tee))
	}
	reader := sse.NewReader(body, opts...)

	var content strings.Builder
	defer func() { res.Content = content.String() }()

	for ev, err := range reader.All() {
		if err != nil {
			if cause := context.Cause(ctx); cause != nil {
				if errors.Is(cause, ErrTurnTimeout) {
					log.Warn("turn timed out", "timeout", c.timeout, "fragments", res.Fragments)
					return res, ErrTurnTimeout
				}
				return res, &TransportError{Op: "read", Err: cause}
			}
			return res, &TransportError{Op: "read", Err: err}
		}

		switch ev.Kind {
		case KindToken:
			if err := sink.AppendToken(ep, ev.Data); err != nil {
				return res, fmt.Errorf("applying token: %w", err)
			}
			res.Fragments++
			content.WriteString(ev.Data)

		case KindDone:
			res.Terminated = true
			if err := sink.Finalize(ep, ev.Data); err != nil {
				return res, fmt.Errorf("finalizing turn: %w", err)
			}
			if n, err := strconv.Atoi(strings.TrimSpace(ev.Data)); err == nil && n >= 0 {
				res.TokensUsed = &n
			}
			log.Debug("turn done", "fragments", res.Fragments, "tokens_used", ev.Data)
			return res, nil

		case KindError:
			res.Terminated = true
			msg := ev.Data
			if strings.TrimSpace(msg) == "" {
				msg = fallbackUpstreamMessage
			}
			log.Warn("upstream generation failed", "error", msg)
			return res, &UpstreamError{Message: msg}

		default:
			log.Debug("ignoring stream event", "kind", ev.Kind)
		}
	}

	if errors.Is(context.Cause(ctx), ErrTurnTimeout) {
		return res, ErrTurnTimeout
	}
	if n := reader.Dropped(); n > 0 {
		log.Debug("discarded unterminated frame", "bytes", n)
	}
	log.Debug("stream ended without a terminal event", "fragments", res.Fragments)
	return res, nil
}
