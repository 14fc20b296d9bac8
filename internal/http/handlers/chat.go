package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/creditchat-backend/internal/http/response"
	"github.com/yungbote/creditchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/creditchat-backend/internal/realtime"
	"github.com/yungbote/creditchat-backend/internal/services"
)

var errNoOngoingTurn = errors.New("no turn in progress")

type ChatHandlerDeps struct {
	Chat services.ChatService
	Hub  *realtime.SSEHub
	// Publisher is optional; when set, events reach SSE subscribers on every
	// instance.
	Publisher realtime.Publisher
}

type ChatHandler struct {
	chat services.ChatService
	hub  *realtime.SSEHub
	pub  realtime.Publisher
}

func NewChatHandler(deps ChatHandlerDeps) *ChatHandler {
	return &ChatHandler{chat: deps.Chat, hub: deps.Hub, pub: deps.Publisher}
}

type sendMessageReq struct {
	Message        string `json:"message"`
	AgentID        string `json:"agentId"`
	ConversationID string `json:"conversationId"`
}

// POST /api/chat/messages
// The reply streams over the caller's SSE channel.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	agentID, err := parseOptionalUUID(req.AgentID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_agent_id", err)
		return
	}
	convID, err := parseOptionalUUID(req.ConversationID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return
	}

	handle, err := h.chat.Dispatch(c.Request.Context(), services.SendMessageInput{
		UserID:         userID,
		Text:           req.Message,
		AgentID:        agentID,
		ConversationID: convID,
		Transport:      h.hub.Transport(realtime.UserChannel(userID), h.pub),
	})
	if err != nil {
		response.RespondAPIError(c, err, "dispatch_failed")
		return
	}
	response.RespondAccepted(c, gin.H{"turnId": handle.ID})
}

// GET /api/chat/ongoing
func (h *ChatHandler) Ongoing(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	turnID, ok := h.chat.Ongoing().Current(userID)
	if !ok {
		response.RespondError(c, http.StatusNotFound, "no_ongoing_turn", errNoOngoingTurn)
		return
	}
	response.RespondOK(c, gin.H{"turnId": turnID})
}

func parseOptionalUUID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}
