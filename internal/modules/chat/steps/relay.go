package steps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yungbote/creditchat-backend/internal/observability"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
)

var (
	ErrIdleTimeout      = errors.New("stream idle timeout")
	ErrStreamEndedEarly = errors.New("stream ended before [DONE]")
)

const DefaultIdleTimeout = 60 * time.Second

// TokenCounter meters text in provider tokens.
type TokenCounter interface {
	Count(text string) int
}

// ChunkSource yields raw stream bytes; io.EOF marks a clean end of body.
type ChunkSource interface {
	Recv() ([]byte, error)
}

// StreamFailure is returned when a stream breaks before [DONE]. Nothing of a
// failed stream is persisted or billed; the partial text is kept for logs.
type StreamFailure struct {
	Partial      string
	OutputTokens int
	Err          error
}

func (e *StreamFailure) Error() string {
	return fmt.Sprintf("stream failed after %d bytes: %v", len(e.Partial), e.Err)
}
func (e *StreamFailure) Unwrap() error { return e.Err }

type RelayDeps struct {
	Log         *logger.Logger
	Meter       TokenCounter
	IdleTimeout time.Duration
}

// Outcome is the result of a stream that reached [DONE].
type Outcome struct {
	Text string
	// OutputTokens is metered once over the full text.
	OutputTokens int
	// RunningTokens is the sum of per-fragment counts.
	RunningTokens int
	Deltas        int
	ParseErrors   int
}

// Relay drains src through a Decoder and forwards each fragment to the turn's
// transport while the client is connected. A disconnected client never stops
// the upstream read. cancel aborts the context src reads under and is fired by
// the idle watchdog.
func Relay(ctx context.Context, deps RelayDeps, turn *Turn, src ChunkSource, cancel context.CancelFunc) (Outcome, error) {
	if deps.Log == nil || deps.Meter == nil || turn == nil || src == nil {
		return Outcome{}, fmt.Errorf("chat relay: missing deps")
	}
	idle := deps.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	var idled atomic.Bool
	watchdog := time.AfterFunc(idle, func() {
		idled.Store(true)
		if cancel != nil {
			cancel()
		}
	})
	defer watchdog.Stop()

	var (
		out Outcome
		acc strings.Builder
		dec = NewDecoder()
		m   = observability.Current()
		log = deps.Log.With("turn_id", turn.ID)
	)
	fail := func(err error) (Outcome, error) {
		if idled.Load() {
			err = fmt.Errorf("%w after %s: %v", ErrIdleTimeout, idle, err)
		}
		return out, &StreamFailure{Partial: acc.String(), OutputTokens: out.RunningTokens, Err: err}
	}

	for {
		chunk, err := src.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fail(ErrStreamEndedEarly)
			}
			return fail(err)
		}
		if idled.Load() {
			return fail(context.Canceled)
		}
		watchdog.Reset(idle)

		for _, ev := range dec.Feed(chunk) {
			switch ev.Kind {
			case EventParseError:
				out.ParseErrors++
				m.IncRelayEvent(ev.Kind.String())
				log.Warn("skipping undecodable stream line", "error", ev.Err, "line", truncate(ev.Line, 256))
			case EventDelta:
				out.Deltas++
				acc.WriteString(ev.Text)
				out.RunningTokens += deps.Meter.Count(ev.Text)
				if turn.Transport != nil && turn.Transport.Connected() {
					if err := turn.Transport.Emit(ctx, turn.message(ev.Text, false)); err != nil {
						log.Debug("relay emit failed; continuing silently", "error", err)
					} else {
						m.IncRelayEvent(ev.Kind.String())
					}
				}
			case EventDone:
				out.Text = acc.String()
				out.OutputTokens = deps.Meter.Count(out.Text)
				if turn.Transport != nil && turn.Transport.Connected() {
					if err := turn.Transport.Emit(ctx, turn.message("", true)); err != nil {
						log.Debug("terminal emit failed", "error", err)
					} else {
						m.IncRelayEvent(ev.Kind.String())
					}
				}
				return out, nil
			}
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
