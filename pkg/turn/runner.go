package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/ggchat/pkg/chat"
	"github.com/papercomputeco/ggchat/pkg/eventstream"
	"github.com/papercomputeco/ggchat/pkg/eventstream/nop"
	"github.com/papercomputeco/ggchat/pkg/logger"
	"github.com/papercomputeco/ggchat/pkg/transcript"
)

// Service is the part of the chat service a Runner talks to.
// *client.Client implements it.
type Service interface {
	StreamOpener
	PostMessage(ctx context.Context, chatID int64, content string) (chat.Message, error)
	GetChat(ctx context.Context, chatID int64) (chat.Transcript, error)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Service    Service
	Reconciler *transcript.Reconciler

	// TurnTimeout and Tee are passed to the Consumer.
	TurnTimeout time.Duration
	Tee         io.Writer

	// Publisher receives a TurnCompletedEvent per turn. Defaults to a no-op.
	Publisher eventstream.Publisher

	Logger *slog.Logger
}

// Runner sends a user message and streams the reply into the transcript.
type Runner struct {
	service    Service
	reconciler *transcript.Reconciler
	consumer   *Consumer
	publisher  eventstream.Publisher
	logger     *slog.Logger
}

// NewRunner returns a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Service == nil {
		return nil, errors.New("turn runner requires a service")
	}
	if cfg.Reconciler == nil {
		return nil, errors.New("turn runner requires a reconciler")
	}

	log := logger.OrNop(cfg.Logger)
	consumer, err := NewConsumer(Config{
		Opener:      cfg.Service,
		TurnTimeout: cfg.TurnTimeout,
		Tee:         cfg.Tee,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = nop.NewPublisher()
	}

	return &Runner{
		service:    cfg.Service,
		reconciler: cfg.Reconciler,
		consumer:   consumer,
		publisher:  publisher,
		logger:     log,
	}, nil
}

// Send runs one turn on the active chat: it posts content as a user message,
// shows an optimistic placeholder, streams the reply into it and finally
// reloads the authoritative transcript, whether or not the turn succeeded.
//
// chatID must be the reconciler's active chat. A chat switch while the turn
// streams makes the remaining effects stale; they are dropped and Send
// returns an error matching transcript.ErrStaleEpoch.
func (r *Runner) Send(ctx context.Context, chatID int64, content string, params chat.GenerationParams) (*Result, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyInput
	}

	ep := r.reconciler.Epoch()
	if ep.ChatID != chatID {
		return nil, fmt.Errorf("chat %d is not active: %w", chatID, transcript.ErrStaleEpoch)
	}
	if _, ok := r.reconciler.Snapshot().Pending(); ok {
		return nil, transcript.ErrTurnInFlight
	}

	user, err := r.service.PostMessage(ctx, chatID, content)
	if err != nil {
		return nil, err
	}

	if _, err := r.reconciler.BeginTurn(ep, user); err != nil {
		return nil, err
	}

	turn := chat.TurnContext{ChatID: chatID, AfterMessageID: user.ID, Params: params}
	log := r.logger.With("chat_id", chatID, "after_message_id", user.ID)

	started := time.Now()
	res, turnErr := r.consumer.Consume(ctx, turn, ep, r.reconciler)
	completed := time.Now()

	if turnErr != nil {
		log.Warn("turn failed", "error", turnErr)
		if err := r.reconciler.Fail(ep); err != nil && !errors.Is(err, transcript.ErrStaleEpoch) {
			log.Error("clearing placeholder", "error", err)
		}
	}

	if err := r.reload(ctx, ep); err != nil {
		log.Error("reloading transcript", "error", err)
		turnErr = errors.Join(turnErr, err)
	}

	r.publish(ctx, turn, res, turnErr, started, completed)
	return res, turnErr
}

// reload replaces the transcript with the service's copy. A chat switch in
// the meantime is not an error: the new chat owns the transcript now.
func (r *Runner) reload(ctx context.Context, ep transcript.Epoch) error {
	if r.reconciler.Epoch() != ep {
		return nil
	}

	detail, err := r.service.GetChat(ctx, ep.ChatID)
	if err != nil {
		return err
	}

	if err := r.reconciler.Reload(ep, detail); err != nil && !errors.Is(err, transcript.ErrStaleEpoch) {
		return err
	}
	return nil
}

func (r *Runner) publish(ctx context.Context, turn chat.TurnContext, res *Result, turnErr error, started, completed time.Time) {
	outcome := eventstream.TurnIncomplete
	switch {
	case turnErr != nil:
		outcome = eventstream.TurnFailed
	case res != nil && res.Terminated:
		outcome = eventstream.TurnDone
	}

	event := eventstream.NewTurnCompletedEvent(turn, outcome, started, completed)
	if turnErr != nil {
		event.Error = turnErr.Error()
	}
	if res != nil {
		event.Fragments = res.Fragments
		event.TokensUsed = res.TokensUsed
	}

	if err := r.publisher.PublishTurn(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Warn("publishing turn event", "error", err)
	}
}
