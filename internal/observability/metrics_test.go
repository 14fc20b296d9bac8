package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.ObserveLLMRequest("gpt-4o", "/v1/chat/completions", "200", time.Second, 10, 20)
	m.TurnStarted()
	m.ObserveTurn("completed", time.Second)
	m.AddCreditsDebited(5)
	if got := m.TurnCount("completed"); got != 0 {
		t.Fatalf("nil TurnCount: want=0 got=%v", got)
	}
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("nil WritePrometheus: %v", err)
	}
}

func TestMetricsExposition(t *testing.T) {
	m := New()
	m.TurnStarted()
	m.ObserveTurn("completed", 2*time.Second)
	m.TurnStarted()
	m.ObserveTurn("denied", 10*time.Millisecond)
	m.AddCreditsDebited(52)
	m.AddCreditsDebited(-3)
	m.ObserveLLMRequest("gpt-4o", "/v1/chat/completions", "200", time.Second, 12, 40)

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`cc_chat_turns_total{outcome="completed"} 1.000000`,
		`cc_chat_turns_total{outcome="denied"} 1.000000`,
		`cc_credits_debited_total 52.000000`,
		`cc_llm_tokens_total{model="gpt-4o",direction="output"} 40.000000`,
		`cc_chat_turns_active 0.000000`,
		`cc_chat_turn_duration_seconds_bucket{outcome="completed",le="+Inf"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in exposition:\n%s", want, out)
		}
	}
	if got := m.TurnCount("completed"); got != 1 {
		t.Fatalf("TurnCount: want=1 got=%v", got)
	}
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" a=1, b = two ,bad, =x")
	if len(got) != 2 || got["a"] != "1" || got["b"] != "two" {
		t.Fatalf("ParseHeaders: got=%v", got)
	}
	if ParseHeaders("") != nil {
		t.Fatalf("ParseHeaders empty: want nil")
	}
}
