package sse

import (
	"bytes"
	"strings"
)

// Decoder turns a sequence of byte chunks into Events. The zero value is
// ready to use. A Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte
}

// Feed appends chunk to the internal buffer and returns every event whose
// frame was completed by it, in arrival order. Bytes after the last frame
// separator are retained for the next call.
func (d *Decoder) Feed(chunk []byte) []Event {
	d.buf = append(d.buf, chunk...)

	var events []Event
	for {
		idx, sepLen := frameEnd(d.buf)
		if idx < 0 {
			break
		}

		frame := string(d.buf[:idx])
		d.buf = d.buf[idx+sepLen:]

		if ev, ok := parseFrame(frame); ok {
			events = append(events, ev)
		}
	}

	// Compact so a long-lived stream does not pin every byte it has seen.
	if len(d.buf) == 0 {
		d.buf = nil
	} else if cap(d.buf) > 64*1024 && len(d.buf) < cap(d.buf)/4 {
		d.buf = append([]byte(nil), d.buf...)
	}

	return events
}

// Pending reports the number of buffered bytes that do not yet form a
// complete frame.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Reset drops any buffered partial frame.
func (d *Decoder) Reset() {
	d.buf = nil
}

// frameEnd locates the first blank-line separator in buf. It returns the
// index where the frame ends and the separator length, or -1 when no
// complete separator is buffered yet. Both "\n\n" and "\n\r\n" (the tail of
// "\r\n\r\n") are accepted.
func frameEnd(buf []byte) (int, int) {
	for i := 0; i < len(buf); i++ {
		if buf[i] != '\n' {
			continue
		}
		if i+1 < len(buf) && buf[i+1] == '\n' {
			return i, 2
		}
		if i+2 < len(buf) && buf[i+1] == '\r' && buf[i+2] == '\n' {
			return i, 3
		}
	}
	return -1, 0
}

// parseFrame decodes a single frame. Frames that are blank or carry no
// "data:" line produce no event.
func parseFrame(frame string) (Event, bool) {
	if strings.TrimSpace(frame) == "" {
		return Event{}, false
	}

	ev := Event{Kind: DefaultKind}
	var data []string

	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")

		switch {
		case strings.HasPrefix(line, "event:"):
			kind := strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			if kind == "" {
				kind = DefaultKind
			}
			ev.Kind = kind
		case strings.HasPrefix(line, "data:"):
			value := strings.TrimPrefix(line, "data:")
			// A single space after the colon is not part of the value.
			value = strings.TrimPrefix(value, " ")
			data = append(data, value)
		default:
			// Comments (":..."), "id:", "retry:" and unknown fields are ignored.
		}
	}

	// TODO: an "event:" line without any "data:" line is dropped, which also
	// drops a bare "event: done". Confirm with the stream producer before
	// emitting such frames with an empty payload.
	if len(data) == 0 {
		return Event{}, false
	}

	ev.Data = strings.Join(data, "\n")
	return ev, true
}

// Encode renders an event in wire format, terminated by a blank line.
// Multi-line data is split across several "data:" lines.
func Encode(ev Event) []byte {
	var b bytes.Buffer
	if ev.Kind != "" && ev.Kind != DefaultKind {
		b.WriteString("event: ")
		b.WriteString(ev.Kind)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.Bytes()
}
