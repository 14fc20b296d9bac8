package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/creditchat-backend/internal/data/repos"
	"github.com/yungbote/creditchat-backend/internal/http/response"
	"github.com/yungbote/creditchat-backend/internal/platform/ctxutil"
)

var errConversationNotFound = errors.New("conversation not found")

type ConversationHandler struct {
	conversations repos.ConversationRepo
}

func NewConversationHandler(conversations repos.ConversationRepo) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

type conversationView struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Messages any       `json:"messages,omitempty"`
}

// GET /api/conversations?limit=50
func (h *ConversationHandler) List(c *gin.Context) {
	limit := 50
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	ctx := c.Request.Context()
	convs, err := h.conversations.ListByUser(ctx, nil, ctxutil.UserID(ctx), limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_conversations_failed", err)
		return
	}
	out := make([]conversationView, 0, len(convs))
	for _, conv := range convs {
		out = append(out, conversationView{ID: conv.ID, Name: conv.Name})
	}
	response.RespondOK(c, gin.H{"conversations": out})
}

// GET /api/conversations/:id
// Rows owned by someone else answer 404 like missing ones.
func (h *ConversationHandler) Get(c *gin.Context) {
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return
	}
	ctx := c.Request.Context()
	conv, err := h.conversations.GetByID(ctx, nil, convID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "get_conversation_failed", err)
		return
	}
	if conv == nil || conv.UserID != ctxutil.UserID(ctx) {
		response.RespondError(c, http.StatusNotFound, "conversation_not_found", errConversationNotFound)
		return
	}
	msgs, err := conv.Messages()
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "get_conversation_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"conversation": conversationView{ID: conv.ID, Name: conv.Name, Messages: msgs}})
}
