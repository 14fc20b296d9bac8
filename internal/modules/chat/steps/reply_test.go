package steps

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/creditchat-backend/internal/data/repos"
	"github.com/yungbote/creditchat-backend/internal/data/repos/testutil"
	types "github.com/yungbote/creditchat-backend/internal/domain"
	"github.com/yungbote/creditchat-backend/internal/platform/openai"
	"github.com/yungbote/creditchat-backend/internal/realtime"
)

type replyHarness struct {
	t    *testing.T
	ctx  context.Context
	db   *gorm.DB
	ai   *fakeAI
	tr   *recordingTransport
	deps ReplyDeps
}

func newReplyHarness(t *testing.T) *replyHarness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ai := &fakeAI{chunks: split(sseLines("Hello", " world"), 9)}
	return &replyHarness{
		t:   t,
		ctx: context.Background(),
		db:  db,
		ai:  ai,
		tr:  &recordingTransport{},
		deps: ReplyDeps{
			DB:            db,
			Log:           log,
			AI:            ai,
			TitleModel:    "gpt-4o-mini",
			Meter:         wordMeter{},
			Users:         repos.NewUserRepo(db, log),
			Subscriptions: repos.NewSubscriptionRepo(db, log),
			Agents:        repos.NewAgentRepo(db, log),
			Conversations: repos.NewConversationRepo(db, log),
			IdleTimeout:   time.Second,
		},
	}
}

func (h *replyHarness) member(active bool, credits int64) *types.User {
	h.t.Helper()
	u := testutil.SeedUser(h.t, h.ctx, h.db, uuid.NewString()+"@example.com", types.RoleUser)
	testutil.SeedSubscription(h.t, h.ctx, h.db, u.ID, active, credits)
	return u
}

func (h *replyHarness) turn(userID uuid.UUID, text string) *Turn {
	return &Turn{ID: NewTurnID(time.Now()), UserID: userID, Text: text, Transport: h.tr, StartedAt: time.Now()}
}

func (h *replyHarness) credits(userID uuid.UUID) int64 {
	h.t.Helper()
	sub, err := h.deps.Subscriptions.GetByUserID(h.ctx, nil, userID)
	require.NoError(h.t, err)
	require.NotNil(h.t, sub)
	return sub.Credits
}

func (h *replyHarness) conversations() int64 {
	var n int64
	require.NoError(h.t, h.db.Model(&types.Conversation{}).Count(&n).Error)
	return n
}

func (h *replyHarness) savedMessages(id uuid.UUID) (*types.Conversation, []types.Message) {
	h.t.Helper()
	conv, err := h.deps.Conversations.GetByID(h.ctx, nil, id)
	require.NoError(h.t, err)
	require.NotNil(h.t, conv)
	msgs, err := conv.Messages()
	require.NoError(h.t, err)
	return conv, msgs
}

func TestReplyDenials(t *testing.T) {
	tests := []struct {
		name    string
		active  bool
		credits int64
		want    Decision
	}{
		{"inactive subscription", false, 1000, DenyNoSubscription},
		{"zero credits", true, 0, DenyNoCredits},
		{"negative credits", true, -12, DenyNoCredits},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newReplyHarness(t)
			u := h.member(tt.active, tt.credits)

			res, err := Reply(h.ctx, h.deps, h.turn(u.ID, "hi"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeDenied, res.Outcome)
			assert.Equal(t, tt.want, res.Decision)

			msgs := h.tr.messages()
			require.Len(t, msgs, 1)
			assert.True(t, msgs[0].Complete)
			assert.Equal(t, tt.want.Notice(), msgs[0].Text)
			assert.Empty(t, h.tr.errors())

			assert.Zero(t, h.ai.streamCalls+h.ai.chatCalls+h.ai.toolCalls, "no provider calls")
			assert.Zero(t, h.conversations(), "nothing saved")
			assert.Equal(t, tt.credits, h.credits(u.ID), "nothing billed")
		})
	}
}

func TestReplyBillsInputPlusOutput(t *testing.T) {
	h := newReplyHarness(t)
	u := h.member(true, 1000)
	h.deps.Meter = wordMeter{fn: func(s string) int {
		switch s {
		case "what is up":
			return 12
		case "Hello world":
			return 40
		default:
			return 1
		}
	}}

	res, err := Reply(h.ctx, h.deps, h.turn(u.ID, "what is up"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.True(t, res.Billed)
	assert.Equal(t, 12, res.InputTokens)
	assert.Equal(t, 40, res.OutputTokens)
	assert.Equal(t, int64(948), res.NewBalance)
	assert.Equal(t, int64(948), h.credits(u.ID))

	msgs := h.tr.messages()
	require.NotEmpty(t, msgs)
	for _, m := range msgs[:len(msgs)-1] {
		assert.False(t, m.Complete)
	}
	assert.True(t, msgs[len(msgs)-1].Complete, "terminal frame is last")
	assert.Equal(t, res.ConversationID.String(), msgs[0].ConversationID)

	_, saved := h.savedMessages(res.ConversationID)
	require.Len(t, saved, 3)
	assert.Equal(t, types.Message{Role: types.MessageSystem, Content: types.DefaultPersona}, saved[0])
	assert.Equal(t, types.Message{Role: types.MessageUser, Content: "what is up"}, saved[1])
	assert.Equal(t, types.Message{Role: types.MessageAssistant, Content: "Hello world"}, saved[2])
	assert.Equal(t, types.DefaultTemperature, h.ai.temperature)
}

func TestReplyOwnerBypass(t *testing.T) {
	h := newReplyHarness(t)
	owner := testutil.SeedUser(t, h.ctx, h.db, "owner@example.com", types.RoleOwner)
	testutil.SeedSubscription(t, h.ctx, h.db, owner.ID, false, 0)

	res, err := Reply(h.ctx, h.deps, h.turn(owner.ID, "hi"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.False(t, res.Billed)
	assert.Equal(t, int64(0), h.credits(owner.ID))
}

func TestReplyTitleOnlyOnFirstMessage(t *testing.T) {
	h := newReplyHarness(t)
	u := h.member(true, 1000)

	first, err := Reply(h.ctx, h.deps, h.turn(u.ID, "plan a trip"))
	require.NoError(t, err)
	assert.Equal(t, 1, h.ai.chatCalls)
	conv, _ := h.savedMessages(first.ConversationID)
	assert.Equal(t, "A Title", conv.Name)
	msgs := h.tr.messages()
	assert.Equal(t, "A Title", msgs[len(msgs)-1].Title)

	h.ai.chatFn = func(openai.ChatRequest) (string, error) { return "Another", nil }
	next := h.turn(u.ID, "and the hotels?")
	next.ConversationID = first.ConversationID
	second, err := Reply(h.ctx, h.deps, next)
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, 1, h.ai.chatCalls, "no title call after the first message")

	conv, saved := h.savedMessages(first.ConversationID)
	assert.Equal(t, "A Title", conv.Name)
	assert.Len(t, saved, 5)
}

func TestReplyTitleFailureFallsBack(t *testing.T) {
	h := newReplyHarness(t)
	u := h.member(true, 1000)
	h.ai.chatFn = func(openai.ChatRequest) (string, error) { return "", &openai.HTTPError{StatusCode: 500} }

	res, err := Reply(h.ctx, h.deps, h.turn(u.ID, "tell me a joke"))
	require.NoError(t, err)
	conv, _ := h.savedMessages(res.ConversationID)
	assert.Equal(t, "tell me a joke", conv.Name)
}

func TestReplyDisconnectedStillPersistsAndSettles(t *testing.T) {
	h := newReplyHarness(t)
	u := h.member(true, 100)
	h.tr.gone = true

	res, err := Reply(h.ctx, h.deps, h.turn(u.ID, "one two"))
	require.NoError(t, err)
	assert.Empty(t, h.tr.events)
	assert.Equal(t, int64(100-2-2), h.credits(u.ID))
	_, saved := h.savedMessages(res.ConversationID)
	assert.Equal(t, "Hello world", saved[len(saved)-1].Content)
}

type failingCredits struct{ repos.SubscriptionRepo }

func (failingCredits) UpdateCredits(context.Context, *gorm.DB, uuid.UUID, int64) error {
	return errors.New("ledger offline")
}

func TestReplySettleFailureFollowsTerminalFrame(t *testing.T) {
	h := newReplyHarness(t)
	u := h.member(true, 100)
	h.deps.Subscriptions = failingCredits{h.deps.Subscriptions}

	res, err := Reply(h.ctx, h.deps, h.turn(u.ID, "one two"))
	require.Error(t, err)
	assert.Equal(t, CodeBillingFailed, ErrorCode(err))

	require.GreaterOrEqual(t, len(h.tr.events), 2)
	terminal := h.tr.events[len(h.tr.events)-2]
	p, ok := terminal.Data.(realtime.MessagePayload)
	require.True(t, ok, "payload type %T", terminal.Data)
	assert.True(t, p.Complete, "the reply was already shown")
	last := h.tr.events[len(h.tr.events)-1]
	require.Equal(t, realtime.EventError, last.Name)
	assert.Equal(t, CodeBillingFailed, last.Data.(realtime.ErrorPayload).Code)
	assert.Equal(t, p.ID, last.Data.(realtime.ErrorPayload).ID)

	_, saved := h.savedMessages(res.ConversationID)
	assert.Len(t, saved, 1, "the transaction rolled back the reply")
	assert.Equal(t, int64(100), h.credits(u.ID))
}

func TestReplyMalformedLineIsSkipped(t *testing.T) {
	h := newReplyHarness(t)
	u := h.member(true, 100)
	h.ai.chunks = [][]byte{[]byte(
		`data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n" +
			"data: {garbage\n" +
			`data: {"choices":[{"delta":{"content":"lo"}}]}` + "\n" +
			"data: [DONE]\n"),
	}

	res, err := Reply(h.ctx, h.deps, h.turn(u.ID, "x"))
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Text)
}

func TestReplyStreamFailureBillsAndPersistsNothing(t *testing.T) {
	t.Run("broken mid stream", func(t *testing.T) {
		h := newReplyHarness(t)
		u := h.member(true, 100)
		h.ai.chunks = [][]byte{[]byte(`data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n")}
		h.ai.failErr = context.DeadlineExceeded

		res, err := Reply(h.ctx, h.deps, h.turn(u.ID, "x"))
		require.Error(t, err)
		assert.Equal(t, CodeStreamFailed, ErrorCode(err))
		assert.Equal(t, OutcomeFailed, res.Outcome)

		errs := h.tr.errors()
		require.Len(t, errs, 1)
		assert.Equal(t, CodeStreamFailed, errs[0].Code)
		assert.Equal(t, res.ConversationID.String(), errs[0].ConversationID, "client learns the new conversation")
		for _, m := range h.tr.messages() {
			assert.False(t, m.Complete)
		}
		assert.Equal(t, int64(100), h.credits(u.ID))
		_, saved := h.savedMessages(res.ConversationID)
		assert.Len(t, saved, 1, "only the persona survives")
	})

	t.Run("provider rejects the request", func(t *testing.T) {
		h := newReplyHarness(t)
		u := h.member(true, 100)
		h.ai.openErr = &openai.HTTPError{StatusCode: http.StatusServiceUnavailable}

		_, err := Reply(h.ctx, h.deps, h.turn(u.ID, "x"))
		require.Error(t, err)
		require.Len(t, h.tr.errors(), 1)
		assert.Equal(t, CodeStreamFailed, h.tr.errors()[0].Code)
		assert.Equal(t, int64(100), h.credits(u.ID))
	})
}

func TestReplyAgentPersona(t *testing.T) {
	h := newReplyHarness(t)
	u := h.member(true, 100)
	agent := testutil.SeedAgent(t, h.ctx, h.db, "pirate", "You are a pirate", 0)

	existing := &types.Conversation{UserID: u.ID, Name: "Old"}
	require.NoError(t, existing.SetMessages([]types.Message{
		{Role: types.MessageSystem, Content: "stale persona"},
		{Role: types.MessageUser, Content: "ahoy"},
		{Role: types.MessageAssistant, Content: "arr"},
	}))
	existing, err := h.deps.Conversations.Create(h.ctx, nil, existing)
	require.NoError(t, err)

	turn := h.turn(u.ID, "where is the gold")
	turn.AgentID = agent.ID
	turn.ConversationID = existing.ID
	_, err = Reply(h.ctx, h.deps, turn)
	require.NoError(t, err)

	assert.Equal(t, "You are a pirate", h.ai.streamed[0].Content)
	assert.Equal(t, 0.7, h.ai.temperature)
	assert.Zero(t, h.ai.chatCalls, "existing conversation keeps its title")

	conv, saved := h.savedMessages(existing.ID)
	assert.Equal(t, "Old", conv.Name)
	require.Len(t, saved, 5)
	assert.Equal(t, "You are a pirate", saved[0].Content)
	assert.Equal(t, "Hello world", saved[4].Content)
}

func TestReplyFoldsToolResultOnlyIntoTheRequest(t *testing.T) {
	h := newReplyHarness(t)
	u := h.member(true, 100)
	reg := NewRegistry()
	require.NoError(t, Register(reg, "lookup", "", nil, func(context.Context, struct{}) (string, error) {
		return `[{"title":"x"}]`, nil
	}))
	h.ai.toolFn = func(openai.ChatRequest, []openai.Tool) (*openai.ToolCall, error) {
		return &openai.ToolCall{Name: "lookup", Arguments: json.RawMessage(`{}`)}, nil
	}
	h.deps.Tools = NewToolBroker(h.deps.Log, h.ai, reg, "gpt-4o")

	res, err := Reply(h.ctx, h.deps, h.turn(u.ID, "search the web"))
	require.NoError(t, err)

	last := h.ai.streamed[len(h.ai.streamed)-1]
	assert.Equal(t, openai.Message{Role: "function", Name: "lookup", Content: `[{"title":"x"}]`}, last)

	_, saved := h.savedMessages(res.ConversationID)
	for _, m := range saved {
		assert.NotEqual(t, types.MessageFunction, m.Role)
	}
}

func TestReplyToolFailureIsNotFatal(t *testing.T) {
	h := newReplyHarness(t)
	u := h.member(true, 100)
	h.ai.toolFn = func(openai.ChatRequest, []openai.Tool) (*openai.ToolCall, error) {
		return &openai.ToolCall{Name: "missing"}, nil
	}
	reg := NewRegistry()
	require.NoError(t, Register(reg, "present", "", nil, func(context.Context, struct{}) (string, error) { return "", nil }))
	h.deps.Tools = NewToolBroker(h.deps.Log, h.ai, reg, "gpt-4o")

	res, err := Reply(h.ctx, h.deps, h.turn(u.ID, "hi"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, "user", h.ai.streamed[len(h.ai.streamed)-1].Role)
}

func TestReplyRejectsForeignConversation(t *testing.T) {
	h := newReplyHarness(t)
	owner := h.member(true, 100)
	intruder := h.member(true, 100)
	conv, err := h.deps.Conversations.Create(h.ctx, nil, &types.Conversation{UserID: owner.ID})
	require.NoError(t, err)

	turn := h.turn(intruder.ID, "hi")
	turn.ConversationID = conv.ID
	_, err = Reply(h.ctx, h.deps, turn)
	require.ErrorIs(t, err, ErrConversationNotOwned)
	require.Len(t, h.tr.errors(), 1)
	assert.Equal(t, CodeTurnFailed, h.tr.errors()[0].Code)
	assert.Empty(t, h.tr.errors()[0].ConversationID)
	assert.Zero(t, h.ai.streamCalls)
}

func TestReplyUnknownConversationStartsNewOne(t *testing.T) {
	h := newReplyHarness(t)
	u := h.member(true, 100)
	turn := h.turn(u.ID, "hi")
	turn.ConversationID = uuid.New()

	res, err := Reply(h.ctx, h.deps, turn)
	require.NoError(t, err)
	assert.NotEqual(t, turn.ConversationID, res.ConversationID)
	assert.Equal(t, int64(1), h.conversations())
}

func TestNewTurnID(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "msg-1700000000123", NewTurnID(at))
}
