// Package sse implements an incremental decoder for the text/event-stream
// wire format. The decoder is fed raw byte chunks of arbitrary size and
// yields complete events; partial lines, fields, and multi-byte characters
// split across chunk boundaries are buffered until they complete, so the
// decoded event sequence is independent of how the stream is chunked.
package sse

import (
	"bytes"
	"time"

	"github.com/configstream/configstream-go/pkg/streamerrors"
)

// DefaultMaxEventSize bounds how much a single event may accumulate before
// the decoder gives up on the stream. Configuration payloads are small; a
// frame anywhere near this size means a malformed or hostile stream.
const DefaultMaxEventSize = 1 << 20

// Decoder incrementally reassembles events from a chunked byte stream.
// A Decoder is single-connection state: create a fresh one (or call Reset)
// for every new connection so partial frames from a broken stream are
// discarded.
type Decoder struct {
	maxEventSize int

	line      []byte // unterminated partial line carried between Feed calls
	data      []byte // accumulated data field of the current frame
	eventType string
	lastID    string
	retry     time.Duration
	frameSize int

	err error
}

// Option configures a Decoder
type Option func(*Decoder)

// WithMaxEventSize sets the per-event accumulation limit in bytes
func WithMaxEventSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxEventSize = n
		}
	}
}

// NewDecoder creates a decoder with the given options
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		maxEventSize: DefaultMaxEventSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed consumes the next chunk of the stream and returns every event the
// chunk completed, in stream order. Once Feed has returned an error the
// decoder refuses further input until Reset.
func (d *Decoder) Feed(p []byte) ([]Event, error) {
	if d.err != nil {
		return nil, d.err
	}

	var events []Event

	start := 0
	for start <= len(p) {
		idx := bytes.IndexByte(p[start:], '\n')
		if idx < 0 {
			d.line = append(d.line, p[start:]...)
			break
		}

		line := p[start : start+idx]
		if len(d.line) > 0 {
			line = append(d.line, line...)
			d.line = d.line[:0]
		}
		start += idx + 1

		if ev, ok := d.processLine(line); ok {
			events = append(events, ev)
		}
		if d.err != nil {
			return events, d.err
		}
	}

	if err := d.checkSize(d.frameSize + len(d.line)); err != nil {
		d.err = err
		return events, err
	}

	return events, nil
}

// RetryHint returns the most recent server-provided reconnection delay,
// zero if the stream never set one.
func (d *Decoder) RetryHint() time.Duration {
	return d.retry
}

// LastEventID returns the most recent id: field value seen on the stream
func (d *Decoder) LastEventID() string {
	return d.lastID
}

// Reset discards all buffered state, including a poisoned error, so the
// decoder can be reused for a new connection.
func (d *Decoder) Reset() {
	d.line = nil
	d.data = nil
	d.eventType = ""
	d.lastID = ""
	d.retry = 0
	d.frameSize = 0
	d.err = nil
}

// processLine handles one complete line, with the trailing newline already
// removed. Returns the dispatched event, if the line completed a frame.
func (d *Decoder) processLine(line []byte) (Event, bool) {
	// The wire format allows CRLF line endings
	line = bytes.TrimSuffix(line, []byte{'\r'})

	if len(line) == 0 {
		return d.dispatch()
	}

	// Comment lines, commonly used as keepalive pings
	if line[0] == ':' {
		return Event{}, false
	}

	if err := d.checkSize(d.frameSize + len(line)); err != nil {
		d.err = err
		return Event{}, false
	}
	d.frameSize += len(line)

	var field, value []byte
	if idx := bytes.IndexByte(line, ':'); idx >= 0 {
		field = line[:idx]
		value = line[idx+1:]
		// A single space after the colon is part of the separator
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
	} else {
		field = line
	}

	switch string(field) {
	case "data":
		d.data = append(d.data, value...)
		d.data = append(d.data, '\n')
	case "event":
		d.eventType = string(value)
	case "id":
		// IDs containing NUL are rejected by the format
		if !bytes.ContainsRune(value, 0) {
			d.lastID = string(value)
		}
	case "retry":
		if ms, ok := parseRetry(value); ok {
			d.retry = ms
		}
	default:
		// Unknown fields are ignored for forward compatibility
	}

	return Event{}, false
}

// dispatch emits the accumulated frame on a blank line. Frames without any
// data lines are dropped, resetting the pending event type.
func (d *Decoder) dispatch() (Event, bool) {
	if len(d.data) == 0 {
		d.eventType = ""
		d.frameSize = 0
		return Event{}, false
	}

	// Multiple data lines are joined with newlines; the join added one
	// trailing newline too many.
	data := string(bytes.TrimSuffix(d.data, []byte{'\n'}))

	ev := Event{
		Type:  d.eventType,
		Data:  data,
		ID:    d.lastID,
		Retry: d.retry,
	}

	d.data = nil
	d.eventType = ""
	d.frameSize = 0

	return ev, true
}

func (d *Decoder) checkSize(size int) error {
	if size > d.maxEventSize {
		return streamerrors.EventTooLarge(size, d.maxEventSize)
	}
	return nil
}

// parseRetry parses a retry: value, which must be entirely ASCII digits and
// is expressed in milliseconds. Anything else is ignored per the format.
func parseRetry(value []byte) (time.Duration, bool) {
	if len(value) == 0 {
		return 0, false
	}
	var ms int64
	for _, c := range value {
		if c < '0' || c > '9' {
			return 0, false
		}
		ms = ms*10 + int64(c-'0')
	}
	return time.Duration(ms) * time.Millisecond, true
}
