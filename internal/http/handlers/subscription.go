package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/creditchat-backend/internal/data/repos"
	"github.com/yungbote/creditchat-backend/internal/http/response"
	"github.com/yungbote/creditchat-backend/internal/platform/ctxutil"
)

type SubscriptionHandler struct {
	subs repos.SubscriptionRepo
}

func NewSubscriptionHandler(subs repos.SubscriptionRepo) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs}
}

// GET /api/me/subscription
func (h *SubscriptionHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	sub, err := h.subs.GetByUserID(ctx, nil, ctxutil.UserID(ctx))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "get_subscription_failed", err)
		return
	}
	if sub == nil {
		response.RespondError(c, http.StatusNotFound, "no_subscription", errors.New("no subscription"))
		return
	}
	response.RespondOK(c, gin.H{"isActive": sub.IsActive, "credits": sub.Credits})
}
