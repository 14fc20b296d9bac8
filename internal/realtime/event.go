package realtime

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

type EventName string

const (
	EventMessage EventName = "message"
	EventError   EventName = "error"
	EventPong    EventName = "pong"
)

// Inbound frame events.
const (
	InboundSendMessage = "sendMessage"
	InboundPing        = "ping"
)

// Event is one outbound realtime frame.
type Event struct {
	Name EventName `json:"event"`
	Data any       `json:"data,omitempty"`
}

// MessagePayload is the body of a "message" event. Intermediate frames carry a
// fragment with Complete=false; the terminal frame has Complete=true.
type MessagePayload struct {
	ID             string `json:"id"`
	SenderID       string `json:"senderId"`
	Text           string `json:"text"`
	ConversationID string `json:"conversationId,omitempty"`
	Title          string `json:"title,omitempty"`
	Complete       bool   `json:"complete"`
	Type           string `json:"type"`
}

// ErrorPayload carries the conversation id when the turn got far enough to
// load or create one.
type ErrorPayload struct {
	ID             string `json:"id,omitempty"`
	Message        string `json:"message"`
	Code           string `json:"code"`
	ConversationID string `json:"conversationId,omitempty"`
}

func MessageEvent(p MessagePayload) Event {
	if p.Type == "" {
		p.Type = "chat"
	}
	return Event{Name: EventMessage, Data: p}
}

func ErrorEvent(p ErrorPayload) Event {
	return Event{Name: EventError, Data: p}
}

// Transport is the per-turn outbound channel. Connected reports whether a
// peer is still there to receive frames; emitting to a gone peer is a no-op
// for callers that check it first.
type Transport interface {
	Emit(ctx context.Context, ev Event) error
	Connected() bool
}

// InboundFrame is a client to server frame.
type InboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type SendMessageData struct {
	SenderID       string `json:"senderId"`
	Message        string `json:"message"`
	AgentID        string `json:"agentId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// SSEMessage is a hub frame addressed to one channel.
type SSEMessage struct {
	Channel string    `json:"channel"`
	Event   EventName `json:"event"`
	Data    any       `json:"data,omitempty"`
}

func UserChannel(userID uuid.UUID) string {
	return "user:" + userID.String()
}
