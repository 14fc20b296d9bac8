package serp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/creditchat-backend/internal/platform/logger"
)

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// Num is the result page size requested from the engine.
	Num int
}

type Result struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet,omitempty"`
}

type Client interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return NewWithHTTPClient(log, cfg, &http.Client{Timeout: cfg.Timeout})
}

func NewWithHTTPClient(log *logger.Logger, cfg Config, hc *http.Client) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing SERPAPI_KEY")
	}
	if log == nil || hc == nil {
		return nil, fmt.Errorf("logger and http client required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://serpapi.com"
	}
	if cfg.Num <= 0 {
		cfg.Num = 10
	}
	return &client{log: log.With("service", "SerpClient"), cfg: cfg, httpClient: hc}, nil
}

type searchResponse struct {
	OrganicResults []Result `json:"organic_results"`
	Error          string   `json:"error"`
}

// Search runs one Google query and returns the first page of organic results.
func (c *client) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("serp: empty query")
	}
	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("google_domain", "google.com")
	q.Set("num", strconv.Itoa(c.cfg.Num))
	q.Set("api_key", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serp request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("serp read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("serp http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out searchResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("serp decode: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("serp: %s", out.Error)
	}
	c.log.Debug("serp search done", "results", len(out.OrganicResults))
	if out.OrganicResults == nil {
		return []Result{}, nil
	}
	return out.OrganicResults, nil
}
