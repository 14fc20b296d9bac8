package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yungbote/creditchat-backend/internal/data/db"
	"github.com/yungbote/creditchat-backend/internal/observability"
	"github.com/yungbote/creditchat-backend/internal/platform/openai"
	"github.com/yungbote/creditchat-backend/internal/platform/serp"
)

type Config struct {
	Port    string
	AppMode string

	LogLevel     string
	LogRedaction bool
	LogHashSalt  string

	DB db.Config

	JWTSecret string

	OpenAI openai.Config
	Serp   serp.Config

	RedisAddr    string
	RedisChannel string

	ChatIdleTimeout time.Duration
	ChatTurnTimeout time.Duration

	WSMessagesPerSecond float64
	WSBurst             int

	CORSOrigins []string

	Otel           observability.OtelConfig
	MetricsEnabled bool

	AgentsSeedFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_MODE", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_REDACTION_ENABLED", true)

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_NAME", "creditchat")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("SQLITE_PATH", "creditchat.db")

	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com")
	v.SetDefault("OPENAI_MODEL", "gpt-4o")
	v.SetDefault("OPENAI_TIMEOUT_SECONDS", 180)
	v.SetDefault("OPENAI_MAX_RETRIES", 2)
	v.SetDefault("SERPAPI_BASE_URL", "https://serpapi.com")

	v.SetDefault("REDIS_CHANNEL", "chat-events")
	v.SetDefault("CHAT_IDLE_TIMEOUT", "60s")
	v.SetDefault("CHAT_TURN_TIMEOUT", "5m")
	v.SetDefault("WS_MESSAGES_PER_SECOND", 1.0)
	v.SetDefault("WS_BURST", 5)

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "creditchat-backend")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("AGENTS_SEED_FILE", "agents.yaml")
}

// LoadConfig reads configuration from the environment through v. Flags bound
// to v by the command layer take precedence.
func LoadConfig(v *viper.Viper) Config {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.AutomaticEnv()

	cfg := Config{
		Port:         v.GetString("PORT"),
		AppMode:      v.GetString("APP_MODE"),
		LogLevel:     v.GetString("LOG_LEVEL"),
		LogRedaction: v.GetBool("LOG_REDACTION_ENABLED"),
		LogHashSalt:  v.GetString("LOG_HASH_SALT"),
		DB: db.Config{
			Driver:     v.GetString("DB_DRIVER"),
			Host:       v.GetString("POSTGRES_HOST"),
			Port:       v.GetString("POSTGRES_PORT"),
			User:       v.GetString("POSTGRES_USER"),
			Password:   v.GetString("POSTGRES_PASSWORD"),
			Name:       v.GetString("POSTGRES_NAME"),
			SSLMode:    v.GetString("POSTGRES_SSLMODE"),
			SQLitePath: v.GetString("SQLITE_PATH"),
		},
		JWTSecret: v.GetString("JWT_SECRET"),
		OpenAI: openai.Config{
			APIKey:     v.GetString("OPENAI_API_KEY"),
			BaseURL:    v.GetString("OPENAI_BASE_URL"),
			Model:      v.GetString("OPENAI_MODEL"),
			TitleModel: v.GetString("OPENAI_TITLE_MODEL"),
			Timeout:    time.Duration(v.GetInt("OPENAI_TIMEOUT_SECONDS")) * time.Second,
			MaxRetries: v.GetInt("OPENAI_MAX_RETRIES"),
		},
		Serp: serp.Config{
			APIKey:  v.GetString("SERPAPI_KEY"),
			BaseURL: v.GetString("SERPAPI_BASE_URL"),
		},
		RedisAddr:           v.GetString("REDIS_ADDR"),
		RedisChannel:        v.GetString("REDIS_CHANNEL"),
		ChatIdleTimeout:     v.GetDuration("CHAT_IDLE_TIMEOUT"),
		ChatTurnTimeout:     v.GetDuration("CHAT_TURN_TIMEOUT"),
		WSMessagesPerSecond: v.GetFloat64("WS_MESSAGES_PER_SECOND"),
		WSBurst:             v.GetInt("WS_BURST"),
		CORSOrigins:         splitList(v.GetString("CORS_ORIGINS")),
		Otel: observability.OtelConfig{
			Enabled:     v.GetBool("OTEL_ENABLED"),
			ServiceName: v.GetString("OTEL_SERVICE_NAME"),
			Environment: v.GetString("APP_MODE"),
			Endpoint:    v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Headers:     observability.ParseHeaders(v.GetString("OTEL_EXPORTER_OTLP_HEADERS")),
			Insecure:    v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
			SampleRatio: v.GetFloat64("OTEL_SAMPLE_RATIO"),
		},
		MetricsEnabled: v.GetBool("METRICS_ENABLED"),
		AgentsSeedFile: v.GetString("AGENTS_SEED_FILE"),
	}
	return cfg
}

// Validate checks what serve needs. Migrations and seeding only need the
// database section.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.ChatIdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CHAT_IDLE_TIMEOUT must be positive, got %s", c.ChatIdleTimeout))
	}
	if c.ChatTurnTimeout < c.ChatIdleTimeout {
		errs = append(errs, fmt.Errorf("CHAT_TURN_TIMEOUT (%s) must not be shorter than CHAT_IDLE_TIMEOUT (%s)", c.ChatTurnTimeout, c.ChatIdleTimeout))
	}
	if c.WSMessagesPerSecond <= 0 || c.WSBurst <= 0 {
		errs = append(errs, errors.New("WS_MESSAGES_PER_SECOND and WS_BURST must be positive"))
	}
	return errors.Join(errs...)
}

// LogMode maps APP_MODE onto the logger's encoder mode.
func (c Config) LogMode() string {
	switch strings.ToLower(c.AppMode) {
	case "prod", "production":
		return "prod"
	default:
		return "development"
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
