package chat

import "time"

// Chat is a conversation's metadata.
type Chat struct {
	ID        int64
	ModelID   int64
	Title     string
	CreatedAt time.Time
}

// Transcript is the ordered list of messages of one chat along with the
// chat's metadata.
type Transcript struct {
	Chat     Chat
	Messages []Message
}

// Clone returns a deep copy of t.
func (t Transcript) Clone() Transcript {
	out := Transcript{Chat: t.Chat}
	if t.Messages != nil {
		out.Messages = make([]Message, len(t.Messages))
		for i, m := range t.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	return out
}

// Pending returns the outstanding placeholder, if any.
func (t Transcript) Pending() (Message, bool) {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].IsPending() {
			return t.Messages[i], true
		}
	}
	return Message{}, false
}

// LastAssistant returns the index of the most recent assistant message, or
// -1 when there is none.
func (t Transcript) LastAssistant() int {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == RoleAssistant {
			return i
		}
	}
	return -1
}
