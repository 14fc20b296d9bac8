package observability

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec

	chatTurns        *CounterVec
	chatTurnLatency  *HistogramVec
	chatTurnsActive  *Gauge
	creditsDebited   *Counter
	relayEvents      *CounterVec
	realtimeSessions *Gauge
}

var (
	mu       sync.RWMutex
	instance *Metrics
)

// Current returns the process metrics, or nil when metrics are disabled.
// Every method on *Metrics is nil-safe.
func Current() *Metrics {
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// Init installs a fresh metrics registry when enabled is true.
func Init(enabled bool) *Metrics {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		instance = nil
		return nil
	}
	instance = New()
	return instance
}

func New() *Metrics {
	secBuckets := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	return &Metrics{
		apiRequests: NewCounterVec("cc_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("cc_api_request_duration_seconds", "API request latency in seconds.", []string{"method", "route", "status"}, secBuckets),
		apiInflight: NewGauge("cc_api_inflight_requests", "In-flight API requests."),

		llmRequests: NewCounterVec("cc_llm_requests_total", "LLM provider requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
		llmLatency:  NewHistogramVec("cc_llm_request_duration_seconds", "LLM provider request latency.", []string{"model", "endpoint", "status"}, secBuckets),
		llmTokens:   NewCounterVec("cc_llm_tokens_total", "Metered LLM tokens by model/direction.", []string{"model", "direction"}),

		chatTurns:        NewCounterVec("cc_chat_turns_total", "Chat turns by outcome.", []string{"outcome"}),
		chatTurnLatency:  NewHistogramVec("cc_chat_turn_duration_seconds", "Chat turn wall time by outcome.", []string{"outcome"}, []float64{0.5, 1, 2, 5, 10, 30, 60, 120}),
		chatTurnsActive:  NewGauge("cc_chat_turns_active", "Chat turns currently running."),
		creditsDebited:   NewCounter("cc_credits_debited_total", "Credits debited by settlement."),
		relayEvents:      NewCounterVec("cc_relay_events_total", "Realtime relay events by kind.", []string{"kind"}),
		realtimeSessions: NewGauge("cc_realtime_sessions", "Open realtime sessions."),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	all := []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.chatTurns, m.chatTurnLatency, m.chatTurnsActive,
		m.creditsDebited, m.relayEvents, m.realtimeSessions,
	}
	for _, pw := range all {
		if err := pw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = strings.TrimSpace(model)
	m.llmRequests.Inc(model, endpoint, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, endpoint, status)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

func (m *Metrics) TurnStarted() {
	if m == nil {
		return
	}
	m.chatTurnsActive.Inc()
}

func (m *Metrics) ObserveTurn(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.chatTurnsActive.Dec()
	m.chatTurns.Inc(outcome)
	m.chatTurnLatency.Observe(dur.Seconds(), outcome)
}

func (m *Metrics) TurnCount(outcome string) float64 {
	if m == nil {
		return 0
	}
	return m.chatTurns.Value(outcome)
}

func (m *Metrics) AddCreditsDebited(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.creditsDebited.Add(float64(n))
}

func (m *Metrics) IncRelayEvent(kind string) {
	if m == nil {
		return
	}
	m.relayEvents.Inc(kind)
}

func (m *Metrics) RealtimeSessionOpened() {
	if m == nil {
		return
	}
	m.realtimeSessions.Inc()
}

func (m *Metrics) RealtimeSessionClosed() {
	if m == nil {
		return
	}
	m.realtimeSessions.Dec()
}

// StatusLabel renders an HTTP status for metric labels.
func StatusLabel(code int) string {
	if code <= 0 {
		return "error"
	}
	return strconv.Itoa(code)
}
