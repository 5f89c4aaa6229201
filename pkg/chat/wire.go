package chat

import "time"

// The types below mirror the service's JSON bodies. Conversions to the
// domain types live next to them so callers never handle wire shapes.

// MessageOut is a message as returned by the service.
type MessageOut struct {
	ID         int64     `json:"id"`
	ChatID     int64     `json:"chat_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	TokensUsed *int      `json:"tokens_used,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToMessage converts a wire message into a confirmed Message.
func (m MessageOut) ToMessage() Message {
	msg := Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Role:      Role(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		State:     Confirmed,
	}
	if m.TokensUsed != nil {
		n := *m.TokensUsed
		msg.TokensUsed = &n
	}
	return msg
}

// ChatOut is chat metadata as returned by the service.
type ChatOut struct {
	ID        int64     `json:"id"`
	ModelID   int64     `json:"model_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ToChat converts wire chat metadata.
func (c ChatOut) ToChat() Chat {
	return Chat{
		ID:        c.ID,
		ModelID:   c.ModelID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
	}
}

// ChatDetail is the authoritative transcript of a chat.
type ChatDetail struct {
	Chat     ChatOut      `json:"chat"`
	Messages []MessageOut `json:"messages"`
}

// ToTranscript converts the detail into a Transcript of confirmed messages.
func (d ChatDetail) ToTranscript() Transcript {
	t := Transcript{
		Chat:     d.Chat.ToChat(),
		Messages: make([]Message, 0, len(d.Messages)),
	}
	for _, m := range d.Messages {
		t.Messages = append(t.Messages, m.ToMessage())
	}
	return t
}

// ModelDownloadJobOut is a download job as returned by the service.
type ModelDownloadJobOut struct {
	ID            int64      `json:"id"`
	ModelID       int64      `json:"model_id"`
	Status        string     `json:"status"`
	ProgressBytes int64      `json:"progress_bytes"`
	Error         *string    `json:"error"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
}

// ToJob converts a wire job.
func (j ModelDownloadJobOut) ToJob() DownloadJob {
	return DownloadJob{
		ID:            j.ID,
		ModelID:       j.ModelID,
		Status:        JobStatus(j.Status),
		ProgressBytes: j.ProgressBytes,
		Error:         j.Error,
		StartedAt:     j.StartedAt,
		FinishedAt:    j.FinishedAt,
	}
}

// FromJob converts a job back to its wire shape.
func FromJob(j DownloadJob) ModelDownloadJobOut {
	return ModelDownloadJobOut{
		ID:            j.ID,
		ModelID:       j.ModelID,
		Status:        string(j.Status),
		ProgressBytes: j.ProgressBytes,
		Error:         j.Error,
		StartedAt:     j.StartedAt,
		FinishedAt:    j.FinishedAt,
	}
}

// ErrorResponse is the service's JSON error body.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
