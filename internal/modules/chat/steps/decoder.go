package steps

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type EventKind int

const (
	EventDelta EventKind = iota
	EventDone
	EventParseError
)

func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventDone:
		return "done"
	case EventParseError:
		return "parse_error"
	default:
		return "unknown"
	}
}

// Event is one decoded stream line.
type Event struct {
	Kind EventKind
	Text string
	Err  error
	Line string
}

// ErrProvider is wrapped by ParseError events that carry an in-band provider
// error object.
var ErrProvider = errors.New("provider error")

const doneSentinel = "[DONE]"

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Decoder turns arbitrarily split chunks of a server-sent event stream into
// events. Only complete lines are decoded; a trailing fragment waits for the
// next Feed. A Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte
}

func NewDecoder() *Decoder { return &Decoder{} }

// Feed appends chunk and returns the events of every line it completed, in
// order.
func (d *Decoder) Feed(chunk []byte) []Event {
	d.buf = append(d.buf, chunk...)
	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]
		if ev, ok := decodeLine(line); ok {
			events = append(events, ev)
		}
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return events
}

// Pending is the number of buffered bytes not yet forming a full line.
func (d *Decoder) Pending() int { return len(d.buf) }

func decodeLine(line string) (Event, bool) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
		return Event{}, false
	}
	payload := line
	if rest, ok := strings.CutPrefix(line, "data:"); ok {
		payload = strings.TrimPrefix(rest, " ")
	} else if isSSEField(line) {
		return Event{}, false
	}
	if strings.TrimSpace(payload) == doneSentinel {
		return Event{Kind: EventDone, Line: line}, true
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return Event{Kind: EventParseError, Err: err, Line: line}, true
	}
	if chunk.Error != nil {
		return Event{Kind: EventParseError, Err: fmt.Errorf("%w: %s", ErrProvider, chunk.Error.Message), Line: line}, true
	}
	for _, c := range chunk.Choices {
		if c.Delta.Content != nil && *c.Delta.Content != "" {
			return Event{Kind: EventDelta, Text: *c.Delta.Content, Line: line}, true
		}
	}
	return Event{}, false
}

func isSSEField(line string) bool {
	for _, f := range []string{"event:", "id:", "retry:"} {
		if strings.HasPrefix(line, f) {
			return true
		}
	}
	return false
}
