package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/creditchat-backend/internal/observability"
	"github.com/yungbote/creditchat-backend/internal/platform/httpx"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
)

const chatCompletionsPath = "/v1/chat/completions"

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	TitleModel string
	Timeout    time.Duration
	MaxRetries int
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com"
	}
	if strings.TrimSpace(c.Model) == "" {
		c.Model = "gpt-4o"
	}
	if strings.TrimSpace(c.TitleModel) == "" {
		c.TitleModel = c.Model
	}
	if c.Timeout <= 0 {
		c.Timeout = 180 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Client is the subset of the chat completions API the backend uses.
type Client interface {
	// Chat returns a single non-streaming completion.
	Chat(ctx context.Context, req ChatRequest) (string, error)
	// ChatWithTools offers tools to the model and returns the first tool call,
	// or nil when the model answered in text.
	ChatWithTools(ctx context.Context, req ChatRequest, tools []Tool) (*ToolCall, error)
	// StreamChat opens a streaming completion. The caller owns the returned
	// Stream and must Close it.
	StreamChat(ctx context.Context, messages []Message, temperature float64) (*Stream, error)
	Model() string
}

type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	// streamClient has no overall timeout; stream liveness is enforced by the caller.
	streamClient *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	cfg = cfg.withDefaults()
	return NewWithHTTPClient(log, cfg, &http.Client{Timeout: cfg.Timeout})
}

// NewWithHTTPClient uses hc for both unary and streaming requests.
func NewWithHTTPClient(log *logger.Logger, cfg Config, hc *http.Client) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if hc == nil {
		return nil, fmt.Errorf("http client required")
	}
	cfg = cfg.withDefaults()
	stream := &http.Client{Transport: hc.Transport}
	return &client{
		log:          log.With("service", "OpenAIClient"),
		cfg:          cfg,
		httpClient:   hc,
		streamClient: stream,
	}, nil
}

func (c *client) Model() string { return c.cfg.Model }

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) newRequest(ctx context.Context, body any, stream bool) (*http.Request, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+chatCompletionsPath, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

func (c *client) doOnce(ctx context.Context, body any) (*http.Response, []byte, error) {
	req, err := c.newRequest(ctx, body, false)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// do posts body with retry on transient failures and decodes into out.
func (c *client) do(ctx context.Context, model string, body any, out any) error {
	backoff := 1 * time.Second
	start := time.Now()

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp, raw, err := c.doOnce(ctx, body)
		if err == nil {
			var usage struct {
				Usage usage `json:"usage"`
			}
			_ = json.Unmarshal(raw, &usage)
			observability.Current().ObserveLLMRequest(model, chatCompletionsPath, statusFromResp(resp), time.Since(start), usage.Usage.PromptTokens, usage.Usage.CompletionTokens)
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w", uErr)
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			observability.Current().ObserveLLMRequest(model, chatCompletionsPath, statusFromRespErr(resp, err), time.Since(start), 0, 0)
			return err
		}

		sleepFor := httpx.Jitter(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("OpenAI request retrying",
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

func statusFromResp(resp *http.Response) string {
	if resp == nil {
		return "unknown"
	}
	return strconv.Itoa(resp.StatusCode)
}

func statusFromRespErr(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return strconv.Itoa(httpErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
