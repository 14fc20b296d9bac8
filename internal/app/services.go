package app

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/creditchat-backend/internal/modules/chat"
	"github.com/yungbote/creditchat-backend/internal/modules/chat/steps"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
	"github.com/yungbote/creditchat-backend/internal/services"
)

type Services struct {
	Auth    services.AuthService
	Chat    services.ChatService
	Ongoing *services.OngoingRegistry
	Tools   *steps.Registry
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	titleModel := strings.TrimSpace(cfg.OpenAI.TitleModel)
	if titleModel == "" {
		titleModel = cfg.OpenAI.Model
	}

	registry := steps.NewRegistry()
	if clients.Serp != nil {
		if err := steps.RegisterWebSearch(registry, clients.OpenAI, clients.Serp, titleModel); err != nil {
			return Services{}, fmt.Errorf("register webSearch: %w", err)
		}
	}
	broker := steps.NewToolBroker(log, clients.OpenAI, registry, cfg.OpenAI.Model)

	usecases := chat.New(chat.UsecasesDeps{
		DB:            db,
		Log:           log,
		AI:            clients.OpenAI,
		TitleModel:    titleModel,
		Meter:         clients.Meter,
		Tools:         broker,
		Users:         reposet.User,
		Subscriptions: reposet.Subscription,
		Agents:        reposet.Agent,
		Conversations: reposet.Conversation,
		IdleTimeout:   cfg.ChatIdleTimeout,
	})

	ongoing := services.NewOngoingRegistry()
	return Services{
		Auth:    services.NewAuthService(log, cfg.JWTSecret),
		Chat:    services.NewChatService(log, usecases, ongoing, services.ChatServiceConfig{TurnTimeout: cfg.ChatTurnTimeout}),
		Ongoing: ongoing,
		Tools:   registry,
	}, nil
}
