package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/yungbote/creditchat-backend/internal/platform/logger"
)

var ErrConnClosed = errors.New("realtime: connection closed")

const defaultWriteTimeout = 10 * time.Second

// Conn is one authenticated websocket session. Writes are serialized so
// concurrent turns on the same socket never interleave frames.
type Conn struct {
	ID     uuid.UUID
	UserID uuid.UUID

	ws           *websocket.Conn
	log          *logger.Logger
	writeTimeout time.Duration
	mu           sync.Mutex
	closed       atomic.Bool
}

func NewConn(ws *websocket.Conn, userID uuid.UUID, log *logger.Logger) *Conn {
	id := uuid.New()
	return &Conn{
		ID:           id,
		UserID:       userID,
		ws:           ws,
		log:          log.With("component", "RealtimeConn", "conn_id", id),
		writeTimeout: defaultWriteTimeout,
	}
}

// Emit writes one frame. The caller's cancellation does not propagate into the
// write: a cancelled websocket write tears the socket down, and the error frame
// of a timed-out turn must still reach the client.
func (c *Conn) Emit(ctx context.Context, ev Event) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", ev.Name, err)
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.writeTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.Write(wctx, websocket.MessageText, raw); err != nil {
		c.closed.Store(true)
		return err
	}
	return nil
}

func (c *Conn) Connected() bool {
	return !c.closed.Load()
}

// Read blocks for the next inbound frame.
func (c *Conn) Read(ctx context.Context) (InboundFrame, error) {
	var frame InboundFrame
	typ, raw, err := c.ws.Read(ctx)
	if err != nil {
		c.closed.Store(true)
		return frame, err
	}
	if typ != websocket.MessageText {
		return frame, fmt.Errorf("unsupported frame type %v", typ)
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return frame, fmt.Errorf("decode frame: %w", err)
	}
	return frame, nil
}

func (c *Conn) Close(reason string) {
	if c.closed.Swap(true) {
		return
	}
	if err := c.ws.Close(websocket.StatusNormalClosure, reason); err != nil {
		c.log.Debug("websocket close", "error", err)
	}
}

// IsClosure reports whether err ends the read loop without being worth an
// error log.
func IsClosure(err error) bool {
	if err == nil {
		return false
	}
	if websocket.CloseStatus(err) != -1 {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrConnClosed)
}
