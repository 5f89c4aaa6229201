// Package transcript owns the in-memory transcript of the active chat and
// reconciles streamed turn output into it.
//
// Every mutation is tagged with the Epoch it was issued under. Switching the
// active chat bumps the epoch, so effects of a stream or reload that started
// against a previous chat are rejected with ErrStaleEpoch instead of leaking
// into the new transcript.
package transcript

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/ggchat/pkg/chat"
	"github.com/papercomputeco/ggchat/pkg/logger"
)

var (
	// ErrStaleEpoch is returned by a mutation issued under an epoch that is
	// no longer current. Nothing is changed.
	ErrStaleEpoch = errors.New("stale transcript epoch")

	// ErrTurnInFlight is returned by BeginTurn while a placeholder is still
	// outstanding.
	ErrTurnInFlight = errors.New("a turn is already in flight")
)

// Epoch identifies the active chat and the generation of the transcript
// owned for it.
type Epoch struct {
	ChatID int64
	Gen    uint64
}

// Config configures a Reconciler.
type Config struct {
	// Now is the clock used for placeholder ids and timestamps. Defaults to
	// time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Reconciler owns one Transcript. It is safe for concurrent use; observers
// are notified outside the lock with a deep copy of the new state.
type Reconciler struct {
	mu         sync.Mutex
	epoch      Epoch
	transcript chat.Transcript
	lastLocal  int64

	now    func() time.Time
	logger *slog.Logger

	observersMu sync.Mutex
	observers   map[int]func(chat.Transcript)
	nextObs     int
}

// New returns a Reconciler with no active chat.
func New(cfg Config) *Reconciler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		now:       now,
		logger:    logger.OrNop(cfg.Logger),
		observers: make(map[int]func(chat.Transcript)),
	}
}

// Switch makes chatID the active chat, discarding the current transcript
// wholesale, and returns the new epoch.
func (r *Reconciler) Switch(chatID int64) Epoch {
	r.mu.Lock()
	r.epoch = Epoch{ChatID: chatID, Gen: r.epoch.Gen + 1}
	r.transcript = chat.Transcript{Chat: chat.Chat{ID: chatID}}
	ep := r.epoch
	snap := r.transcript.Clone()
	r.mu.Unlock()

	r.logger.Debug("switched transcript", "chat_id", chatID, "gen", ep.Gen)
	r.notify(snap)
	return ep
}

// Epoch returns the current epoch.
func (r *Reconciler) Epoch() Epoch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

// Snapshot returns a deep copy of the transcript.
func (r *Reconciler) Snapshot() chat.Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcript.Clone()
}

// Subscribe registers fn to receive the transcript after every change. The
// returned func unregisters it.
func (r *Reconciler) Subscribe(fn func(chat.Transcript)) func() {
	r.observersMu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = fn
	r.observersMu.Unlock()

	return func() {
		r.observersMu.Lock()
		delete(r.observers, id)
		r.observersMu.Unlock()
	}
}

// BeginTurn appends the confirmed user message followed by an empty pending
// assistant placeholder, and returns the placeholder's local id. Only one
// placeholder may be outstanding at a time.
func (r *Reconciler) BeginTurn(ep Epoch, user chat.Message) (int64, error) {
	var placeholderID int64
	err := r.mutate(ep, func(t *chat.Transcript) error {
		if _, ok := t.Pending(); ok {
			return ErrTurnInFlight
		}

		placeholderID = r.nextLocalID()
		user.State = chat.Confirmed
		t.Messages = append(t.Messages,
			user.Clone(),
			chat.NewPlaceholder(ep.ChatID, placeholderID, r.now()),
		)
		return nil
	})
	return placeholderID, err
}

// AppendToken concatenates text onto the most recent assistant message. It
// is a no-op when the transcript holds no assistant message.
func (r *Reconciler) AppendToken(ep Epoch, text string) error {
	return r.mutate(ep, func(t *chat.Transcript) error {
		i := t.LastAssistant()
		if i < 0 {
			r.logger.Debug("token without an assistant message", "chat_id", ep.ChatID)
			return nil
		}
		t.Messages[i].Content += text
		return nil
	})
}

// Finalize records the token count of the most recent assistant message and
// clears its pending state. A count that is not a non-negative integer
// leaves TokensUsed unset; it is never an error.
func (r *Reconciler) Finalize(ep Epoch, count string) error {
	return r.mutate(ep, func(t *chat.Transcript) error {
		i := t.LastAssistant()
		if i < 0 {
			return nil
		}

		msg := &t.Messages[i]
		msg.State = chat.Confirmed
		msg.TokensUsed = nil
		if n, ok := parseCount(count); ok {
			msg.TokensUsed = &n
		} else if count != "" {
			r.logger.Debug("ignoring unparsable token count", "count", count)
		}
		return nil
	})
}

// Fail marks the outstanding placeholder as failed after a turn ended in
// error. Content already appended is kept.
func (r *Reconciler) Fail(ep Epoch) error {
	return r.mutate(ep, func(t *chat.Transcript) error {
		for i := len(t.Messages) - 1; i >= 0; i-- {
			if t.Messages[i].IsPending() {
				t.Messages[i].State = chat.Failed
				return nil
			}
		}
		return nil
	})
}

// Reload replaces the transcript wholesale with the authoritative copy.
// Placeholders never survive a reload. The partial output of a failed turn
// is carried over while the authoritative copy still ends at the user
// message that turn answered, so a failure never erases visible output.
func (r *Reconciler) Reload(ep Epoch, authoritative chat.Transcript) error {
	return r.mutate(ep, func(t *chat.Transcript) error {
		next := authoritative.Clone()
		kept := next.Messages[:0]
		for _, m := range next.Messages {
			if m.ID <= 0 || m.State != chat.Confirmed {
				continue
			}
			kept = append(kept, m)
		}
		next.Messages = kept

		if n := len(next.Messages); n > 0 {
			last := next.Messages[n-1].ID
			for i := 1; i < len(t.Messages); i++ {
				m := t.Messages[i]
				if m.State == chat.Failed && m.Content != "" && t.Messages[i-1].ID == last {
					next.Messages = append(next.Messages, m)
				}
			}
		}

		*t = next
		return nil
	})
}

// mutate applies fn under the lock when ep is current, then notifies
// observers if fn succeeded.
func (r *Reconciler) mutate(ep Epoch, fn func(*chat.Transcript) error) error {
	r.mu.Lock()
	if ep != r.epoch {
		r.mu.Unlock()
		return ErrStaleEpoch
	}
	if err := fn(&r.transcript); err != nil {
		r.mu.Unlock()
		return err
	}
	snap := r.transcript.Clone()
	r.mu.Unlock()

	r.notify(snap)
	return nil
}

func (r *Reconciler) notify(t chat.Transcript) {
	r.observersMu.Lock()
	fns := make([]func(chat.Transcript), 0, len(r.observers))
	for _, fn := range r.observers {
		fns = append(fns, fn)
	}
	r.observersMu.Unlock()

	for _, fn := range fns {
		fn(t.Clone())
	}
}

// nextLocalID returns a negative id derived from the clock, strictly lower
// than every id issued before. Called with r.mu held.
func (r *Reconciler) nextLocalID() int64 {
	id := -r.now().UnixNano()
	if id >= r.lastLocal {
		id = r.lastLocal - 1
	}
	r.lastLocal = id
	return id
}

func parseCount(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
