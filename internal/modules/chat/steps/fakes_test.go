package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/yungbote/creditchat-backend/internal/platform/openai"
	"github.com/yungbote/creditchat-backend/internal/realtime"
)

// sseLines renders content fragments as a chat completion event stream.
func sseLines(fragments ...string) string {
	var b strings.Builder
	b.WriteString(`data: {"choices":[{"delta":{"role":"assistant"}}]}` + "\n\n")
	for _, f := range fragments {
		raw, _ := json.Marshal(f)
		fmt.Fprintf(&b, `data: {"choices":[{"delta":{"content":%s}}]}`+"\n\n", raw)
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

// split cuts s into pieces of at most n bytes.
func split(s string, n int) [][]byte {
	var out [][]byte
	for len(s) > 0 {
		k := n
		if k > len(s) {
			k = len(s)
		}
		out = append(out, []byte(s[:k]))
		s = s[k:]
	}
	return out
}

type chunkBody struct {
	chunks [][]byte
	err    error
	ctx    context.Context
	block  bool
}

func (b *chunkBody) Read(p []byte) (int, error) {
	if len(b.chunks) > 0 {
		n := copy(p, b.chunks[0])
		if n < len(b.chunks[0]) {
			b.chunks[0] = b.chunks[0][n:]
		} else {
			b.chunks = b.chunks[1:]
		}
		return n, nil
	}
	if b.block && b.ctx != nil {
		<-b.ctx.Done()
		return 0, b.ctx.Err()
	}
	if b.err != nil {
		return 0, b.err
	}
	return 0, io.EOF
}

func (b *chunkBody) Close() error { return nil }

func newSource(chunks [][]byte, err error) *openai.Stream {
	return openai.NewStream(&chunkBody{chunks: chunks, err: err})
}

type fakeAI struct {
	mu sync.Mutex

	chatFn  func(req openai.ChatRequest) (string, error)
	toolFn  func(req openai.ChatRequest, tools []openai.Tool) (*openai.ToolCall, error)
	chunks  [][]byte
	failErr error
	openErr error
	block   bool

	chatCalls   int
	toolCalls   int
	streamCalls int
	streamed    []openai.Message
	temperature float64
}

func (f *fakeAI) Chat(_ context.Context, req openai.ChatRequest) (string, error) {
	f.mu.Lock()
	f.chatCalls++
	f.mu.Unlock()
	if f.chatFn != nil {
		return f.chatFn(req)
	}
	return "A Title", nil
}

func (f *fakeAI) ChatWithTools(_ context.Context, req openai.ChatRequest, tools []openai.Tool) (*openai.ToolCall, error) {
	f.mu.Lock()
	f.toolCalls++
	f.mu.Unlock()
	if f.toolFn != nil {
		return f.toolFn(req, tools)
	}
	return nil, nil
}

func (f *fakeAI) StreamChat(ctx context.Context, messages []openai.Message, temperature float64) (*openai.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamCalls++
	f.streamed = append([]openai.Message(nil), messages...)
	f.temperature = temperature
	if f.openErr != nil {
		return nil, f.openErr
	}
	chunks := make([][]byte, len(f.chunks))
	copy(chunks, f.chunks)
	return openai.NewStream(&chunkBody{chunks: chunks, err: f.failErr, ctx: ctx, block: f.block}), nil
}

func (f *fakeAI) Model() string { return "gpt-4o" }

// recordingTransport keeps every emitted event. It reports disconnected
// once limit events were delivered, when limit > 0.
type recordingTransport struct {
	mu     sync.Mutex
	events []realtime.Event
	limit  int
	gone   bool
}

func (r *recordingTransport) Emit(_ context.Context, ev realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.limit > 0 && len(r.events) >= r.limit {
		r.gone = true
	}
	return nil
}

func (r *recordingTransport) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.gone
}

func (r *recordingTransport) messages() []realtime.MessagePayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []realtime.MessagePayload
	for _, ev := range r.events {
		if p, ok := ev.Data.(realtime.MessagePayload); ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *recordingTransport) errors() []realtime.ErrorPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []realtime.ErrorPayload
	for _, ev := range r.events {
		if p, ok := ev.Data.(realtime.ErrorPayload); ok {
			out = append(out, p)
		}
	}
	return out
}

// wordMeter counts whitespace separated words, or defers to fn.
type wordMeter struct {
	fn func(string) int
}

func (m wordMeter) Count(text string) int {
	if m.fn != nil {
		return m.fn(text)
	}
	return len(strings.Fields(text))
}
