package turn

import (
	"errors"
	"fmt"
)

// fallbackUpstreamMessage is reported when an "error" event has no payload.
const fallbackUpstreamMessage = "generation failed"

var (
	// ErrEmptyBody is wrapped in a TransportError when the stream response
	// carries no body.
	ErrEmptyBody = errors.New("empty response body")

	// ErrTurnTimeout is returned when a turn exceeds its time bound. The
	// stream is closed and tokens applied so far are kept.
	ErrTurnTimeout = errors.New("turn timed out")

	// ErrEmptyInput is returned by Runner.Send for blank content.
	ErrEmptyInput = errors.New("message is empty")
)

// TransportError reports a failure to establish or read the stream.
type TransportError struct {
	// Op is "open" or "read".
	Op string

	// StatusCode is the HTTP status of a rejected stream, or zero.
	StatusCode int

	Err error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stream %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("stream %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UpstreamError is a failure reported by the service through an "error"
// event.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return e.Message
}
