package chat

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/creditchat-backend/internal/data/repos"
	"github.com/yungbote/creditchat-backend/internal/modules/chat/steps"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
	"github.com/yungbote/creditchat-backend/internal/platform/openai"
)

type UsecasesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	AI         openai.Client
	TitleModel string
	Meter      steps.TokenCounter
	Tools      *steps.ToolBroker

	Users         repos.UserRepo
	Subscriptions repos.SubscriptionRepo
	Agents        repos.AgentRepo
	Conversations repos.ConversationRepo

	IdleTimeout time.Duration
}

type Usecases struct {
	deps UsecasesDeps
}

func New(deps UsecasesDeps) Usecases { return Usecases{deps: deps} }

func (u Usecases) WithLog(log *logger.Logger) Usecases {
	u.deps.Log = log
	return u
}

type (
	Turn       = steps.Turn
	TurnResult = steps.TurnResult
)

func (u Usecases) Reply(ctx context.Context, turn *Turn) (TurnResult, error) {
	return steps.Reply(ctx, steps.ReplyDeps{
		DB:            u.deps.DB,
		Log:           u.deps.Log,
		AI:            u.deps.AI,
		TitleModel:    u.deps.TitleModel,
		Meter:         u.deps.Meter,
		Tools:         u.deps.Tools,
		Users:         u.deps.Users,
		Subscriptions: u.deps.Subscriptions,
		Agents:        u.deps.Agents,
		Conversations: u.deps.Conversations,
		IdleTimeout:   u.deps.IdleTimeout,
	}, turn)
}
