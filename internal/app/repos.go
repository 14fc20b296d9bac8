package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/creditchat-backend/internal/data/repos"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
)

type Repos struct {
	User         repos.UserRepo
	Subscription repos.SubscriptionRepo
	Agent        repos.AgentRepo
	Conversation repos.ConversationRepo
}

func NewRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:         repos.NewUserRepo(db, log),
		Subscription: repos.NewSubscriptionRepo(db, log),
		Agent:        repos.NewAgentRepo(db, log),
		Conversation: repos.NewConversationRepo(db, log),
	}
}
