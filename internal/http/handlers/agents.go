package handlers

import (
	"context"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/creditchat-backend/internal/data/repos"
	"github.com/yungbote/creditchat-backend/internal/http/response"
	"github.com/yungbote/creditchat-backend/internal/platform/ctxutil"
)

// Agent levels visible to a caller.
const (
	levelFree       = 0
	levelSubscriber = 1
)

type AgentHandlerDeps struct {
	Agents        repos.AgentRepo
	Users         repos.UserRepo
	Subscriptions repos.SubscriptionRepo
}

type AgentHandler struct {
	agents repos.AgentRepo
	users  repos.UserRepo
	subs   repos.SubscriptionRepo
}

func NewAgentHandler(deps AgentHandlerDeps) *AgentHandler {
	return &AgentHandler{agents: deps.Agents, users: deps.Users, subs: deps.Subscriptions}
}

// GET /api/agents
func (h *AgentHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	level, err := h.callerLevel(ctx, ctxutil.UserID(ctx))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_agents_failed", err)
		return
	}
	agents, err := h.agents.ListUpToLevel(ctx, nil, level)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_agents_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"agents": agents})
}

// callerLevel: owners see every agent, active subscribers see level 1 and
// below, everyone else level 0.
func (h *AgentHandler) callerLevel(ctx context.Context, userID uuid.UUID) (int, error) {
	u, err := h.users.GetByID(ctx, nil, userID)
	if err != nil {
		return 0, err
	}
	if u.IsOwner() {
		return math.MaxInt32, nil
	}
	sub, err := h.subs.GetByUserID(ctx, nil, userID)
	if err != nil {
		return 0, err
	}
	if sub != nil && sub.IsActive {
		return levelSubscriber, nil
	}
	return levelFree, nil
}
