package sse

import (
	"errors"
	"io"
	"iter"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const defaultChunkSize = 4096

// Reader pulls bytes from a source io.Reader and yields decoded events.
// Text is decoded as UTF-8 through a stateful transformer, so a multi-byte
// character split across two reads is reassembled rather than mangled, a
// leading byte order mark is dropped and invalid bytes become U+FFFD.
//
// When a tee destination is configured, every raw byte read from the
// source is written to it verbatim before decoding:
//
// ┌──────────────────┐
// │ source io.Reader │──▶ tee io.Writer (optional)
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐
// │  UTF-8 decoding  │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐
// │ Decoder.Feed     │──▶ Reader.Next() Event
// └──────────────────┘
type Reader struct {
	src     io.Reader
	dec     Decoder
	buf     []byte
	queue   []Event
	err     error
	dropped int
}

// Option configures a Reader.
type Option func(*readerOptions)

type readerOptions struct {
	tee       io.Writer
	chunkSize int
}

// WithTee writes all raw bytes read from the source to w.
func WithTee(w io.Writer) Option {
	return func(o *readerOptions) {
		o.tee = w
	}
}

// WithChunkSize sets the size of each read from the source. Defaults to 4096.
func WithChunkSize(n int) Option {
	return func(o *readerOptions) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// NewReader returns a Reader that decodes events from src.
func NewReader(src io.Reader, opts ...Option) *Reader {
	o := &readerOptions{chunkSize: defaultChunkSize}
	for _, opt := range opts {
		opt(o)
	}

	if o.tee != nil {
		src = io.TeeReader(src, o.tee)
	}

	utf8 := unicode.BOMOverride(unicode.UTF8.NewDecoder())

	return &Reader{
		src: transform.NewReader(src, utf8),
		buf: make([]byte, o.chunkSize),
	}
}

// Next returns the next decoded event. It blocks until a complete frame is
// available. Next returns io.EOF once the source is exhausted; any partial
// frame still buffered at that point is discarded. Other read errors are
// returned as is, after all events completed before the failure.
func (r *Reader) Next() (Event, error) {
	for len(r.queue) == 0 {
		if r.err != nil {
			return Event{}, r.err
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.queue = append(r.queue, r.dec.Feed(r.buf[:n])...)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				r.dropped = r.dec.Pending()
				r.dec.Reset()
				err = io.EOF
			}
			r.err = err
		}
	}

	ev := r.queue[0]
	r.queue = r.queue[1:]
	return ev, nil
}

// All returns a single-use iterator over the remaining events. Iteration
// ends silently at io.EOF; any other error is yielded once as the final
// element.
func (r *Reader) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Dropped returns the number of bytes of an unterminated trailing frame that
// were discarded when the source reached EOF.
func (r *Reader) Dropped() int {
	return r.dropped
}
