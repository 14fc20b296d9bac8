package steps

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/creditchat-backend/internal/domain"
	"github.com/yungbote/creditchat-backend/internal/realtime"
)

// Client-facing error codes carried by error events.
const (
	CodeStreamFailed  = "stream_failed"
	CodePersistFailed = "persist_failed"
	CodeBillingFailed = "billing_failed"
	CodeTurnFailed    = "turn_failed"
)

// Turn outcomes, used as metric labels and in TurnResult.
const (
	OutcomeCompleted = "completed"
	OutcomeDenied    = "denied"
	OutcomeFailed    = "failed"
)

// Turn is the per-turn working state threaded through every step.
type Turn struct {
	ID             string
	UserID         uuid.UUID
	Text           string
	AgentID        uuid.UUID
	ConversationID uuid.UUID
	Transport      realtime.Transport
	StartedAt      time.Time

	User         *types.User
	Subscription *types.UserSubscription
	Agent        *types.Agent
	Conversation *types.Conversation
	Context      []types.Message
	Title        string
	Temperature  float64
	InputTokens  int
}

// NewTurnID renders the wire id of a turn started at t.
func NewTurnID(t time.Time) string {
	return fmt.Sprintf("msg-%d", t.UnixMilli())
}

func (t *Turn) conversationIDString() string {
	if t.Conversation != nil {
		return t.Conversation.ID.String()
	}
	if t.ConversationID != uuid.Nil {
		return t.ConversationID.String()
	}
	return ""
}

func (t *Turn) message(text string, complete bool) realtime.Event {
	return realtime.MessageEvent(realtime.MessagePayload{
		ID:             t.ID,
		SenderID:       t.UserID.String(),
		Text:           text,
		ConversationID: t.conversationIDString(),
		Title:          t.Title,
		Complete:       complete,
	})
}

type TurnResult struct {
	TurnID         string
	ConversationID uuid.UUID
	Outcome        string
	Decision       Decision
	Text           string
	InputTokens    int
	OutputTokens   int
	NewBalance     int64
	Billed         bool
}

// StepError tags a failure with the code reported to the client.
type StepError struct {
	Code string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

func stepErr(code string, err error) error {
	if err == nil {
		return nil
	}
	var se *StepError
	if errors.As(err, &se) {
		return err
	}
	return &StepError{Code: code, Err: err}
}

// ErrorCode extracts the client code of err, defaulting to turn_failed.
func ErrorCode(err error) string {
	var se *StepError
	if errors.As(err, &se) && se.Code != "" {
		return se.Code
	}
	var sf *StreamFailure
	if errors.As(err, &sf) {
		return CodeStreamFailed
	}
	return CodeTurnFailed
}
