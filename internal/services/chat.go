package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/creditchat-backend/internal/modules/chat/steps"
	"github.com/yungbote/creditchat-backend/internal/observability"
	"github.com/yungbote/creditchat-backend/internal/platform/apierr"
	"github.com/yungbote/creditchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
	"github.com/yungbote/creditchat-backend/internal/realtime"
)

const (
	DefaultTurnTimeout = 5 * time.Minute
	MaxMessageRunes    = 16000
)

var ErrShuttingDown = errors.New("chat service is shutting down")

// Replier runs one turn; chat.Usecases implements it.
type Replier interface {
	Reply(ctx context.Context, turn *steps.Turn) (steps.TurnResult, error)
}

type SendMessageInput struct {
	UserID         uuid.UUID
	Text           string
	AgentID        uuid.UUID
	ConversationID uuid.UUID
	Transport      realtime.Transport
}

// TurnHandle joins a dispatched turn.
type TurnHandle struct {
	ID   string
	done chan struct{}
	res  steps.TurnResult
	err  error
}

func (h *TurnHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the turn finishes or ctx ends.
func (h *TurnHandle) Wait(ctx context.Context) (steps.TurnResult, error) {
	select {
	case <-h.done:
		return h.res, h.err
	case <-ctx.Done():
		return steps.TurnResult{TurnID: h.ID}, ctx.Err()
	}
}

type ChatService interface {
	// Dispatch validates in and starts the turn in its own goroutine. The turn
	// outlives ctx; only its values are inherited.
	Dispatch(ctx context.Context, in SendMessageInput) (*TurnHandle, error)
	Ongoing() *OngoingRegistry
	// Shutdown stops accepting turns and waits for running ones.
	Shutdown(ctx context.Context) error
}

type ChatServiceConfig struct {
	TurnTimeout time.Duration
}

type chatService struct {
	log     *logger.Logger
	replier Replier
	ongoing *OngoingRegistry
	locks   *userLocks
	timeout time.Duration

	lastMillis atomic.Int64
	// mu orders closing against wg.Add so Shutdown never waits on a counter
	// that is still growing.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
	now        func() time.Time
}

func NewChatService(log *logger.Logger, replier Replier, ongoing *OngoingRegistry, cfg ChatServiceConfig) ChatService {
	if ongoing == nil {
		ongoing = NewOngoingRegistry()
	}
	timeout := cfg.TurnTimeout
	if timeout <= 0 {
		timeout = DefaultTurnTimeout
	}
	return &chatService{
		log:     log.With("service", "ChatService"),
		replier: replier,
		ongoing: ongoing,
		locks:   newUserLocks(),
		timeout: timeout,
		now:     time.Now,
	}
}

func (s *chatService) Ongoing() *OngoingRegistry { return s.ongoing }

func (s *chatService) Dispatch(ctx context.Context, in SendMessageInput) (*TurnHandle, error) {
	if in.UserID == uuid.Nil {
		return nil, apierr.BadRequest("missing_user", fmt.Errorf("user id required"))
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, apierr.BadRequest("empty_message", fmt.Errorf("message required"))
	}
	if utf8.RuneCountInString(text) > MaxMessageRunes {
		return nil, apierr.BadRequest("message_too_long", fmt.Errorf("message exceeds %d characters", MaxMessageRunes))
	}

	started := s.now()
	turn := &steps.Turn{
		ID:             s.nextTurnID(started),
		UserID:         in.UserID,
		Text:           text,
		AgentID:        in.AgentID,
		ConversationID: in.ConversationID,
		Transport:      in.Transport,
		StartedAt:      started,
	}
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil, apierr.Unavailable("shutting_down", ErrShuttingDown)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	h := &TurnHandle{ID: turn.ID, done: make(chan struct{})}
	s.ongoing.Begin(turn.UserID, turn.ID)
	go s.run(context.WithoutCancel(ctx), turn, h)
	return h, nil
}

// nextTurnID keeps ids unique within the process when two turns start in the
// same millisecond.
func (s *chatService) nextTurnID(t time.Time) string {
	for {
		last := s.lastMillis.Load()
		ms := t.UnixMilli()
		if ms <= last {
			ms = last + 1
		}
		if s.lastMillis.CompareAndSwap(last, ms) {
			return steps.NewTurnID(time.UnixMilli(ms))
		}
	}
}

func (s *chatService) run(ctx context.Context, turn *steps.Turn, h *TurnHandle) {
	defer s.wg.Done()
	defer close(h.done)
	defer s.ongoing.End(turn.UserID, turn.ID)

	log := s.log.With("turn_id", turn.ID, "user_id", turn.UserID)
	if reqID := ctxutil.RequestID(ctx); reqID != "" {
		log = log.With("request_id", reqID)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, span := observability.Tracer().Start(ctx, "chat.turn")
	defer span.End()
	span.SetAttributes(attribute.String("chat.turn_id", turn.ID))

	defer func() {
		if r := recover(); r != nil {
			h.err = fmt.Errorf("turn panicked: %v", r)
			h.res = steps.TurnResult{TurnID: turn.ID, Outcome: steps.OutcomeFailed}
			steps.ReportFailure(ctx, log, turn, h.err)
		}
	}()

	release, err := s.locks.acquire(ctx, turn.UserID)
	if err != nil {
		h.err = fmt.Errorf("wait for previous turn: %w", err)
		h.res = steps.TurnResult{TurnID: turn.ID, Outcome: steps.OutcomeFailed}
		steps.ReportFailure(ctx, log, turn, h.err)
		span.SetStatus(codes.Error, h.err.Error())
		return
	}
	defer release()

	m := observability.Current()
	m.TurnStarted()
	start := time.Now()
	res, err := s.replier.Reply(ctx, turn)
	outcome := res.Outcome
	if outcome == "" {
		outcome = steps.OutcomeFailed
	}
	m.ObserveTurn(outcome, time.Since(start))
	h.res, h.err = res, err

	span.SetAttributes(
		attribute.String("chat.outcome", outcome),
		attribute.Int("chat.input_tokens", res.InputTokens),
		attribute.Int("chat.output_tokens", res.OutputTokens),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, steps.ErrorCode(err))
		return
	}
	log.Info("chat turn finished",
		"outcome", outcome,
		"conversation_id", res.ConversationID,
		"input_tokens", res.InputTokens,
		"output_tokens", res.OutputTokens,
		"duration_ms", time.Since(turn.StartedAt).Milliseconds(),
	)
}

func (s *chatService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// userLocks serializes turns of the same user.
type userLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*userLock
}

type userLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[uuid.UUID]*userLock)}
}

func (l *userLocks) acquire(ctx context.Context, userID uuid.UUID) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[userID]
	if !ok {
		lk = &userLock{sem: semaphore.NewWeighted(1)}
		l.locks[userID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	if err := lk.sem.Acquire(ctx, 1); err != nil {
		l.unref(userID, lk)
		return nil, err
	}
	return func() {
		lk.sem.Release(1)
		l.unref(userID, lk)
	}, nil
}

func (l *userLocks) unref(userID uuid.UUID, lk *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, userID)
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
