// Package chat holds the client-side domain model of the hosted chat
// service: chats, messages, generation parameters and download jobs, along
// with their wire representations.
package chat

import "time"

// Role is the author of a message. The service may send roles beyond the
// known ones; they are preserved verbatim.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageState tags whether a message has been confirmed by the service.
type MessageState int

const (
	// Confirmed messages carry a server-issued, positive ID.
	Confirmed MessageState = iota

	// Pending messages are local placeholders shown while a turn streams.
	// Their ID is a negative local value that never collides with server IDs.
	Pending

	// Failed messages hold the partial output of a turn that ended in error.
	// They keep the placeholder's local ID and are never sent back to the
	// service.
	Failed
)

func (s MessageState) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case Pending:
		return "pending"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message represents a single message in a chat transcript.
type Message struct {
	ID         int64
	ChatID     int64
	Role       Role
	Content    string
	TokensUsed *int
	CreatedAt  time.Time
	State      MessageState
}

// IsPending reports whether m is a local placeholder.
func (m Message) IsPending() bool {
	return m.State == Pending
}

// Clone returns a copy of m that shares no pointers with it.
func (m Message) Clone() Message {
	if m.TokensUsed != nil {
		n := *m.TokensUsed
		m.TokensUsed = &n
	}
	return m
}

// NewPlaceholder returns an empty pending assistant message for chatID.
// localID must be negative.
func NewPlaceholder(chatID, localID int64, now time.Time) Message {
	return Message{
		ID:        localID,
		ChatID:    chatID,
		Role:      RoleAssistant,
		CreatedAt: now,
		State:     Pending,
	}
}
