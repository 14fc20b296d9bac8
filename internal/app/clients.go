package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/creditchat-backend/internal/platform/logger"
	"github.com/yungbote/creditchat-backend/internal/platform/openai"
	"github.com/yungbote/creditchat-backend/internal/platform/serp"
	"github.com/yungbote/creditchat-backend/internal/platform/tokenizer"
	"github.com/yungbote/creditchat-backend/internal/realtime/bus"
)

type Clients struct {
	OpenAI openai.Client
	// Serp is nil when SERPAPI_KEY is unset; the webSearch tool is then not
	// offered to the model.
	Serp  serp.Client
	Meter *tokenizer.Meter
	// Bus is nil without REDIS_ADDR; events then stay on this instance.
	Bus bus.Bus
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	ai, err := openai.NewClient(log, cfg.OpenAI)
	if err != nil {
		return out, fmt.Errorf("init openai: %w", err)
	}
	out.OpenAI = ai

	meter, err := tokenizer.New(cfg.OpenAI.Model)
	if err != nil {
		return out, fmt.Errorf("init tokenizer: %w", err)
	}
	out.Meter = meter

	if strings.TrimSpace(cfg.Serp.APIKey) != "" {
		search, err := serp.NewClient(log, cfg.Serp)
		if err != nil {
			return out, fmt.Errorf("init serpapi: %w", err)
		}
		out.Serp = search
	} else {
		log.Warn("SERPAPI_KEY not set; web search disabled")
	}

	if strings.TrimSpace(cfg.RedisAddr) != "" {
		b, err := bus.NewRedisBus(log, bus.RedisConfig{Addr: cfg.RedisAddr, Channel: cfg.RedisChannel})
		if err != nil {
			return out, fmt.Errorf("init redis bus: %w", err)
		}
		out.Bus = b
	}
	return out, nil
}
