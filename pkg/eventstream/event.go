// Package eventstream defines the transport-neutral events emitted by the
// client when a chat turn completes or a model download job changes state,
// and the Publisher interface implemented by each backend.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/ggchat/pkg/chat"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCompleted is emitted once a streamed turn has ended and
	// the transcript was reloaded.
	EventTypeTurnCompleted = "ggchat.turn.completed"

	// EventTypeJobTransition is emitted when a download job is first seen or
	// changes status.
	EventTypeJobTransition = "ggchat.job.transition"
)

// TurnOutcome is how a turn ended.
type TurnOutcome string

const (
	// TurnDone means the stream delivered its "done" event.
	TurnDone TurnOutcome = "done"

	// TurnIncomplete means the stream ended without a terminal event.
	TurnIncomplete TurnOutcome = "incomplete"

	// TurnFailed means a transport, upstream or timeout error ended the turn.
	TurnFailed TurnOutcome = "failed"
)

// Envelope holds the fields common to every event.
type Envelope struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
}

func newEnvelope(eventType string) Envelope {
	return Envelope{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
	}
}

// TurnCompletedEvent describes one finished chat turn.
type TurnCompletedEvent struct {
	Envelope

	ChatID         int64       `json:"chat_id"`
	AfterMessageID int64       `json:"after_message_id"`
	Outcome        TurnOutcome `json:"outcome"`
	Error          string      `json:"error,omitempty"`

	// Fragments is the number of token events applied.
	Fragments  int  `json:"fragments"`
	TokensUsed *int `json:"tokens_used,omitempty"`

	Params      TurnParams `json:"params"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
	DurationMs  int64      `json:"duration_ms"`
}

// TurnParams are the sampling parameters the turn was generated with.
type TurnParams struct {
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	TopK          int     `json:"top_k"`
	RepeatPenalty float64 `json:"repeat_penalty"`
	MaxTokens     int     `json:"max_tokens"`
	SystemPrompt  bool    `json:"system_prompt"`
}

// NewTurnCompletedEvent stamps a fresh envelope onto a turn event.
func NewTurnCompletedEvent(turn chat.TurnContext, outcome TurnOutcome, startedAt, completedAt time.Time) *TurnCompletedEvent {
	return &TurnCompletedEvent{
		Envelope:       newEnvelope(EventTypeTurnCompleted),
		ChatID:         turn.ChatID,
		AfterMessageID: turn.AfterMessageID,
		Outcome:        outcome,
		Params: TurnParams{
			Temperature:   turn.Params.Temperature,
			TopP:          turn.Params.TopP,
			TopK:          turn.Params.TopK,
			RepeatPenalty: turn.Params.RepeatPenalty,
			MaxTokens:     turn.Params.MaxTokens,
			SystemPrompt:  turn.Query().Has("system_prompt"),
		},
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		DurationMs:  completedAt.Sub(startedAt).Milliseconds(),
	}
}

// JobTransitionEvent describes a download job status change. From is empty
// for a job seen for the first time.
type JobTransitionEvent struct {
	Envelope

	JobID         int64          `json:"job_id"`
	ModelID       int64          `json:"model_id"`
	From          chat.JobStatus `json:"from,omitempty"`
	To            chat.JobStatus `json:"to"`
	ProgressBytes int64          `json:"progress_bytes"`
	Error         string         `json:"error,omitempty"`
}

// NewJobTransitionEvent builds the event for job moving from the given
// status to its current one.
func NewJobTransitionEvent(job chat.DownloadJob, from chat.JobStatus) *JobTransitionEvent {
	ev := &JobTransitionEvent{
		Envelope:      newEnvelope(EventTypeJobTransition),
		JobID:         job.ID,
		ModelID:       job.ModelID,
		From:          from,
		To:            job.Status,
		ProgressBytes: job.ProgressBytes,
	}
	if job.Error != nil {
		ev.Error = *job.Error
	}
	return ev
}
