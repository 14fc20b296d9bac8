package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/creditchat-backend/internal/data/repos/agent"
	"github.com/yungbote/creditchat-backend/internal/data/repos/conversation"
	"github.com/yungbote/creditchat-backend/internal/data/repos/subscription"
	"github.com/yungbote/creditchat-backend/internal/data/repos/user"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
)

type UserRepo = user.UserRepo
type SubscriptionRepo = subscription.SubscriptionRepo
type AgentRepo = agent.AgentRepo
type ConversationRepo = conversation.ConversationRepo

func NewUserRepo(db *gorm.DB, log *logger.Logger) UserRepo { return user.NewUserRepo(db, log) }
func NewSubscriptionRepo(db *gorm.DB, log *logger.Logger) SubscriptionRepo {
	return subscription.NewSubscriptionRepo(db, log)
}
func NewAgentRepo(db *gorm.DB, log *logger.Logger) AgentRepo { return agent.NewAgentRepo(db, log) }
func NewConversationRepo(db *gorm.DB, log *logger.Logger) ConversationRepo {
	return conversation.NewConversationRepo(db, log)
}
