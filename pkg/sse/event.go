// Package sse provides an incremental decoder for the text/event-stream
// framing used by the chat service's turn stream.
//
// Bytes may arrive in arbitrary chunks: a Decoder buffers the unterminated
// tail of the stream across chunk boundaries and only emits an Event once its
// frame is closed by a blank line. A partial frame left over when the stream
// ends is discarded.
//
// Encode renders events back to wire bytes for fixtures and fakes; the
// package does not provide an SSE server.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// DefaultKind is the event kind used when a frame carries no "event:" line.
const DefaultKind = "message"

// Event represents a single decoded SSE event, delimited by a blank line
// in the upstream byte stream.
type Event struct {
	// Kind is the event name from the "event:" field, or DefaultKind.
	Kind string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n".
	Data string
}
