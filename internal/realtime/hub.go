package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/creditchat-backend/internal/platform/logger"
)

const (
	defaultHeartbeat   = 15 * time.Second
	defaultSendTimeout = 5 * time.Second
)

var ErrClientGone = errors.New("realtime: sse client gone")

type SSEClient struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	once     sync.Once
}

type SSEHub struct {
	mu            sync.RWMutex
	logger        *logger.Logger
	heartbeat     time.Duration
	sendTimeout   time.Duration
	subscriptions map[string]map[*SSEClient]bool
}

func NewSSEHub(log *logger.Logger) *SSEHub {
	return &SSEHub{
		logger:        log.With("component", "SSEHub"),
		heartbeat:     defaultHeartbeat,
		sendTimeout:   defaultSendTimeout,
		subscriptions: make(map[string]map[*SSEClient]bool),
	}
}

func (hub *SSEHub) NewSSEClient(userID uuid.UUID) *SSEClient {
	return &SSEClient{
		ID:       uuid.New(),
		UserID:   userID,
		Channels: make(map[string]bool),
		Outbound: make(chan SSEMessage, 64),
		done:     make(chan struct{}),
	}
}

func (hub *SSEHub) AddChannel(client *SSEClient, channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	client.Channels[channel] = true

	clients, exists := hub.subscriptions[channel]
	if !exists {
		clients = make(map[*SSEClient]bool)
		hub.subscriptions[channel] = clients
	}
	clients[client] = true
	hub.logger.Debug("SSE client subscribed", "client_id", client.ID, "channel", channel)
}

func (hub *SSEHub) RemoveChannel(client *SSEClient, channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	delete(client.Channels, channel)
	hub.unsubscribeLocked(client, channel)
}

func (hub *SSEHub) RemoveClient(client *SSEClient) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for ch := range client.Channels {
		hub.unsubscribeLocked(client, ch)
	}
	client.Channels = make(map[string]bool)
}

func (hub *SSEHub) unsubscribeLocked(client *SSEClient, channel string) {
	if subMap, ok := hub.subscriptions[channel]; ok {
		delete(subMap, client)
		if len(subMap) == 0 {
			delete(hub.subscriptions, channel)
		}
	}
}

// HasSubscribers reports whether any local client listens on channel.
func (hub *SSEHub) HasSubscribers(channel string) bool {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.subscriptions[channel]) > 0
}

func (hub *SSEHub) subscribers(channel string) []*SSEClient {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	out := make([]*SSEClient, 0, len(hub.subscriptions[channel]))
	for c := range hub.subscriptions[channel] {
		out = append(out, c)
	}
	return out
}

// Broadcast delivers msg to every local subscriber of its channel.
func (hub *SSEHub) Broadcast(msg SSEMessage) {
	if err := hub.Deliver(context.Background(), msg); err != nil {
		hub.logger.Debug("SSE broadcast not delivered", "channel", msg.Channel, "error", err)
	}
}

// Deliver queues msg on every subscriber of its channel. A full buffer is
// waited on for up to the send timeout; a client still full after that is
// closed, which ends its stream, rather than skipped. ErrClientGone means
// subscribers existed but none took the frame.
func (hub *SSEHub) Deliver(ctx context.Context, msg SSEMessage) error {
	if msg.Channel == "" {
		return nil
	}
	clients := hub.subscribers(msg.Channel)
	delivered := 0
	for _, c := range clients {
		err := hub.send(ctx, c, msg)
		if err == nil {
			delivered++
			continue
		}
		if ctx.Err() != nil {
			return err
		}
	}
	if len(clients) > 0 && delivered == 0 {
		return ErrClientGone
	}
	return nil
}

func (hub *SSEHub) send(ctx context.Context, c *SSEClient, msg SSEMessage) error {
	select {
	case <-c.done:
		return ErrClientGone
	default:
	}
	select {
	case c.Outbound <- msg:
		return nil
	default:
	}

	timer := time.NewTimer(hub.sendTimeout)
	defer timer.Stop()
	select {
	case c.Outbound <- msg:
		return nil
	case <-c.done:
		return ErrClientGone
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		hub.logger.Warn("Closing stalled SSE client", "client_id", c.ID, "channel", msg.Channel, "buffered", len(c.Outbound))
		hub.CloseClient(c)
		return ErrClientGone
	}
}

func (hub *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *SSEClient) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	heartbeat := time.NewTicker(hub.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			hub.logger.Debug("SSE client context done", "client_id", client.ID, "err", ctx.Err())
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg := <-client.Outbound:
			raw, err := json.Marshal(msg)
			if err != nil {
				hub.logger.Warn("Failed to marshal SSE message", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, raw)
			flusher.Flush()
		}
	}
}

// CloseClient unsubscribes the client and stops its ServeHTTP loop. Safe to
// call more than once.
func (hub *SSEHub) CloseClient(client *SSEClient) {
	client.once.Do(func() {
		hub.RemoveClient(client)
		close(client.done)
	})
}

// Publisher fans a frame out beyond this process.
type Publisher interface {
	Publish(ctx context.Context, msg SSEMessage) error
}

// ChannelTransport delivers turn events to every SSE subscriber of a channel,
// either directly through the local hub or through a Publisher whose
// forwarder feeds the hubs of all instances.
type ChannelTransport struct {
	hub     *SSEHub
	pub     Publisher
	channel string
}

func (hub *SSEHub) Transport(channel string, pub Publisher) *ChannelTransport {
	return &ChannelTransport{hub: hub, pub: pub, channel: channel}
}

// Emit waits for a slow local subscriber instead of dropping the frame. As
// with websocket writes, the caller's cancellation does not cut the wait short:
// the send timeout bounds it.
func (t *ChannelTransport) Emit(ctx context.Context, ev Event) error {
	msg := SSEMessage{Channel: t.channel, Event: ev.Name, Data: ev.Data}
	if t.pub != nil {
		return t.pub.Publish(ctx, msg)
	}
	return t.hub.Deliver(context.WithoutCancel(ctx), msg)
}

// Connected is always true with a Publisher: subscribers may live on another
// instance.
func (t *ChannelTransport) Connected() bool {
	if t.pub != nil {
		return true
	}
	return t.hub.HasSubscribers(t.channel)
}
