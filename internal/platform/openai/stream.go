package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/yungbote/creditchat-backend/internal/observability"
)

const streamReadSize = 4096

// StreamError is a transport failure while reading an open stream. It is
// never returned for a clean end of body, which is io.EOF.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string { return fmt.Sprintf("openai stream: %v", e.Err) }
func (e *StreamError) Unwrap() error { return e.Err }

// Stream yields the raw response body of a streaming completion in the
// chunk sizes the network delivers. It does not interpret the bytes.
type Stream struct {
	body  io.ReadCloser
	buf   []byte
	model string
	start time.Time

	closeOnce sync.Once
	status    string
}

// Recv returns the next chunk. The returned slice is only valid until the
// next call.
func (s *Stream) Recv() ([]byte, error) {
	for {
		n, err := s.body.Read(s.buf)
		if n > 0 {
			// deliver data first; a trailing error surfaces on the next call
			return s.buf[:n], nil
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			s.status = "200"
			return nil, io.EOF
		}
		s.status = "stream_error"
		return nil, &StreamError{Err: err}
	}
}

func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
		status := s.status
		if status == "" {
			status = "closed"
		}
		observability.Current().ObserveLLMRequest(s.model, chatCompletionsPath+"#stream", status, time.Since(s.start), 0, 0)
	})
	return err
}

// NewStream wraps an arbitrary body, for tests and alternate transports.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, buf: make([]byte, streamReadSize), start: time.Now()}
}

func (c *client) StreamChat(ctx context.Context, messages []Message, temperature float64) (*Stream, error) {
	body := chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: Float(temperature),
		Stream:      true,
	}
	req, err := c.newRequest(ctx, body, true)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.streamClient.Do(req)
	if err != nil {
		observability.Current().ObserveLLMRequest(body.Model, chatCompletionsPath+"#stream", statusFromRespErr(nil, err), time.Since(start), 0, 0)
		return nil, &StreamError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
		observability.Current().ObserveLLMRequest(body.Model, chatCompletionsPath+"#stream", statusFromResp(resp), time.Since(start), 0, 0)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	s := NewStream(resp.Body)
	s.model = body.Model
	s.start = start
	return s, nil
}
