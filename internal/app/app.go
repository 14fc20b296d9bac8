package app

import (
	"context"
	"errors"
	"fmt"
	"net"

	"gorm.io/gorm"

	"github.com/yungbote/creditchat-backend/internal/data/db"
	apphttp "github.com/yungbote/creditchat-backend/internal/http"
	"github.com/yungbote/creditchat-backend/internal/observability"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
	"github.com/yungbote/creditchat-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Hub      *realtime.SSEHub
	Sessions *realtime.SessionManager
	Server   *apphttp.Server

	dbService    *db.Service
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg Config) (*logger.Logger, error) {
	log, err := logger.New(cfg.LogMode(), logger.Options{
		RedactionEnabled: cfg.LogRedaction,
		HashSalt:         cfg.LogHashSalt,
		Level:            cfg.LogLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// OpenDB connects and migrates. Used by serve and the maintenance commands.
func OpenDB(log *logger.Logger, cfg Config) (*db.Service, error) {
	svc, err := db.Open(cfg.DB, log)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrateAll(svc.DB()); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return svc, nil
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	metrics := observability.Init(cfg.MetricsEnabled)
	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)

	dbService, err := OpenDB(log, cfg)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, err
	}
	theDB := dbService.DB()

	reposet := NewRepos(theDB, log)
	clients, err := wireClients(log, cfg)
	if err != nil {
		_ = dbService.Close()
		_ = otelShutdown(ctx)
		return nil, err
	}
	serviceset, err := wireServices(theDB, log, cfg, reposet, clients)
	if err != nil {
		_ = dbService.Close()
		_ = otelShutdown(ctx)
		return nil, err
	}

	hub := realtime.NewSSEHub(log)
	sessions := realtime.NewSessionManager(log)
	handlerset := wireHandlers(theDB, log, cfg, reposet, serviceset, clients, hub, sessions)
	middleware := wireMiddleware(log, serviceset)

	server := apphttp.NewServer(net.JoinHostPort("", cfg.Port), apphttp.RouterConfig{
		Log:                 log,
		Metrics:             metrics,
		CORSOrigins:         cfg.CORSOrigins,
		AuthMiddleware:      middleware.Auth,
		HealthHandler:       handlerset.Health,
		RealtimeHandler:     handlerset.Realtime,
		ChatHandler:         handlerset.Chat,
		AgentHandler:        handlerset.Agent,
		ConversationHandler: handlerset.Conversation,
		SubscriptionHandler: handlerset.Subscription,
	})

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Hub:          hub,
		Sessions:     sessions,
		Server:       server,
		dbService:    dbService,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches background work: the cross-instance event forwarder.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Clients.Bus != nil {
		if err := a.Clients.Bus.StartForwarder(ctx, a.Hub.Broadcast); err != nil {
			cancel()
			a.cancel = nil
			return fmt.Errorf("start event forwarder: %w", err)
		}
	}
	return nil
}

// Run blocks serving HTTP until Shutdown.
func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return errors.New("app not initialized")
	}
	a.Log.Info("HTTP server listening", "port", a.Cfg.Port)
	return a.Server.Run()
}

// Shutdown stops intake, then waits for running turns so their replies are
// persisted and billed before the database closes.
func (a *App) Shutdown(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.Services.Chat.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("chat shutdown: %w", err))
	}
	a.Sessions.CloseAll()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Clients.Bus != nil {
		if err := a.Clients.Bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis bus close: %w", err))
		}
	}
	if err := a.otelShutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
	}
	if err := a.dbService.Close(); err != nil {
		errs = append(errs, fmt.Errorf("db close: %w", err))
	}
	a.Log.Sync()
	return errors.Join(errs...)
}
