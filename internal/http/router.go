package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/creditchat-backend/internal/http/handlers"
	httpMW "github.com/yungbote/creditchat-backend/internal/http/middleware"
	"github.com/yungbote/creditchat-backend/internal/observability"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
)

const (
	serviceName   = "creditchat-backend"
	websocketPath = "/api/realtime/ws"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	CORSOrigins    []string
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler       *httpH.HealthHandler
	RealtimeHandler     *httpH.RealtimeHandler
	ChatHandler         *httpH.ChatHandler
	AgentHandler        *httpH.AgentHandler
	ConversationHandler *httpH.ConversationHandler
	SubscriptionHandler *httpH.SubscriptionHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Realtime
		if cfg.RealtimeHandler != nil {
			protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}

		// Chat
		if cfg.ChatHandler != nil {
			protected.POST("/chat/messages", cfg.ChatHandler.SendMessage)
			protected.GET("/chat/ongoing", cfg.ChatHandler.Ongoing)
		}

		if cfg.AgentHandler != nil {
			protected.GET("/agents", cfg.AgentHandler.List)
		}

		if cfg.ConversationHandler != nil {
			protected.GET("/conversations", cfg.ConversationHandler.List)
			protected.GET("/conversations/:id", cfg.ConversationHandler.Get)
		}

		if cfg.SubscriptionHandler != nil {
			protected.GET("/me/subscription", cfg.SubscriptionHandler.Get)
		}
	}

	return r
}

// NewHandler fronts the gin engine with a mux that serves the websocket
// upgrade directly, since gin's writer cannot be hijacked after the 101 is
// flushed.
func NewHandler(cfg RouterConfig) (http.Handler, *gin.Engine) {
	engine := NewRouter(cfg)
	if cfg.RealtimeHandler == nil {
		return engine, engine
	}
	var ws http.Handler = http.HandlerFunc(cfg.RealtimeHandler.WebSocket)
	if cfg.AuthMiddleware != nil {
		ws = cfg.AuthMiddleware.RequireAuthHTTP(ws)
	}
	mux := http.NewServeMux()
	mux.Handle("GET "+websocketPath, ws)
	mux.Handle("/", engine)
	return mux, engine
}
