package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/yungbote/creditchat-backend/internal/http/response"
	"github.com/yungbote/creditchat-backend/internal/platform/apierr"
	"github.com/yungbote/creditchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
	"github.com/yungbote/creditchat-backend/internal/realtime"
	"github.com/yungbote/creditchat-backend/internal/services"
)

const (
	defaultMessagesPerSecond = 1.0
	defaultBurst             = 5
)

var (
	errNotAuthenticated = errors.New("not authenticated")
	errRateLimited      = errors.New("too many messages, slow down")
)

type RealtimeHandlerDeps struct {
	Log      *logger.Logger
	Hub      *realtime.SSEHub
	Sessions *realtime.SessionManager
	Chat     services.ChatService
	// OriginPatterns are passed to websocket.Accept; empty means same-origin only.
	OriginPatterns    []string
	MessagesPerSecond float64
	Burst             int
}

type RealtimeHandler struct {
	log      *logger.Logger
	hub      *realtime.SSEHub
	sessions *realtime.SessionManager
	chat     services.ChatService
	origins  []string
	limit    rate.Limit
	burst    int
}

func NewRealtimeHandlerWithDeps(deps RealtimeHandlerDeps) *RealtimeHandler {
	limit := rate.Limit(deps.MessagesPerSecond)
	if deps.MessagesPerSecond <= 0 {
		limit = rate.Limit(defaultMessagesPerSecond)
	}
	burst := deps.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &RealtimeHandler{
		log:      deps.Log.With("handler", "RealtimeHandler"),
		hub:      deps.Hub,
		sessions: deps.Sessions,
		chat:     deps.Chat,
		origins:  deps.OriginPatterns,
		limit:    limit,
		burst:    burst,
	}
}

// GET /api/realtime/ws?token=...
// Mounted on the plain mux, not gin: the upgrade hijacks the connection, which
// gin's writer refuses once the 101 status has been flushed.
func (h *RealtimeHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserID(r.Context())
	if userID == uuid.Nil {
		response.WriteError(w, http.StatusUnauthorized, "unauthorized", errNotAuthenticated)
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		// Accept has already written the handshake failure.
		h.log.Warn("websocket accept failed", "user_id", userID, "error", err)
		return
	}
	conn := realtime.NewConn(ws, userID, h.log)
	h.sessions.Register(conn)
	defer func() {
		h.sessions.Unregister(conn)
		conn.Close("bye")
	}()

	ctx := r.Context()
	limiter := rate.NewLimiter(h.limit, h.burst)
	for {
		frame, err := conn.Read(ctx)
		if err != nil {
			if realtime.IsClosure(err) || !conn.Connected() {
				return
			}
			h.emitError(ctx, conn, apierr.BadRequest("invalid_frame", err))
			continue
		}
		switch frame.Event {
		case realtime.InboundPing:
			_ = conn.Emit(ctx, realtime.Event{Name: realtime.EventPong})
		case realtime.InboundSendMessage:
			if !limiter.Allow() {
				h.emitError(ctx, conn, apierr.TooManyRequests("rate_limited", errRateLimited))
				continue
			}
			h.sendMessage(ctx, conn, frame.Data)
		default:
			h.emitError(ctx, conn, apierr.BadRequest("unknown_event", fmt.Errorf("unknown event %q", frame.Event)))
		}
	}
}

func (h *RealtimeHandler) sendMessage(ctx context.Context, conn *realtime.Conn, raw json.RawMessage) {
	var data realtime.SendMessageData
	if err := json.Unmarshal(raw, &data); err != nil {
		h.emitError(ctx, conn, apierr.BadRequest("invalid_request", err))
		return
	}
	if data.SenderID != conn.UserID.String() {
		h.emitError(ctx, conn, apierr.Forbidden("sender_mismatch", errors.New("senderId does not match the authenticated user")))
		return
	}
	agentID, err := parseOptionalUUID(data.AgentID)
	if err != nil {
		h.emitError(ctx, conn, apierr.BadRequest("invalid_agent_id", err))
		return
	}
	convID, err := parseOptionalUUID(data.ConversationID)
	if err != nil {
		h.emitError(ctx, conn, apierr.BadRequest("invalid_conversation_id", err))
		return
	}
	if _, err := h.chat.Dispatch(ctx, services.SendMessageInput{
		UserID:         conn.UserID,
		Text:           data.Message,
		AgentID:        agentID,
		ConversationID: convID,
		Transport:      conn,
	}); err != nil {
		h.emitError(ctx, conn, err)
	}
}

func (h *RealtimeHandler) emitError(ctx context.Context, conn *realtime.Conn, err error) {
	ae := apierr.From(err, "invalid_request")
	ev := realtime.ErrorEvent(realtime.ErrorPayload{Message: ae.Error(), Code: ae.Code})
	if err := conn.Emit(ctx, ev); err != nil {
		h.log.Debug("error frame not delivered", "conn_id", conn.ID, "error", err)
	}
}

// GET /api/sse/stream?token=...
// Subscribes the caller to their user channel until the request ends.
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	if userID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errNotAuthenticated)
		return
	}
	client := h.hub.NewSSEClient(userID)
	h.hub.AddChannel(client, realtime.UserChannel(userID))
	defer h.hub.CloseClient(client)

	h.log.Debug("SSE stream open", "user_id", userID, "client_id", client.ID)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
