package app

import (
	"strings"

	"gorm.io/gorm"

	httpH "github.com/yungbote/creditchat-backend/internal/http/handlers"
	httpMW "github.com/yungbote/creditchat-backend/internal/http/middleware"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
	"github.com/yungbote/creditchat-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health       *httpH.HealthHandler
	Realtime     *httpH.RealtimeHandler
	Chat         *httpH.ChatHandler
	Agent        *httpH.AgentHandler
	Conversation *httpH.ConversationHandler
	Subscription *httpH.SubscriptionHandler
}

func wireMiddleware(log *logger.Logger, svc Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, svc.Auth),
	}
}

func wireHandlers(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, svc Services, clients Clients, hub *realtime.SSEHub, sessions *realtime.SessionManager) Handlers {
	log.Info("Wiring handlers...")
	var pub realtime.Publisher
	if clients.Bus != nil {
		pub = clients.Bus
	}
	return Handlers{
		Health: httpH.NewHealthHandler(db),
		Realtime: httpH.NewRealtimeHandlerWithDeps(httpH.RealtimeHandlerDeps{
			Log:               log,
			Hub:               hub,
			Sessions:          sessions,
			Chat:              svc.Chat,
			OriginPatterns:    originPatterns(cfg.CORSOrigins),
			MessagesPerSecond: cfg.WSMessagesPerSecond,
			Burst:             cfg.WSBurst,
		}),
		Chat: httpH.NewChatHandler(httpH.ChatHandlerDeps{Chat: svc.Chat, Hub: hub, Publisher: pub}),
		Agent: httpH.NewAgentHandler(httpH.AgentHandlerDeps{
			Agents:        reposet.Agent,
			Users:         reposet.User,
			Subscriptions: reposet.Subscription,
		}),
		Conversation: httpH.NewConversationHandler(reposet.Conversation),
		Subscription: httpH.NewSubscriptionHandler(reposet.Subscription),
	}
}

// originPatterns turns CORS origins into websocket host patterns.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
