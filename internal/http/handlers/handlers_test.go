package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/creditchat-backend/internal/data/repos"
	"github.com/yungbote/creditchat-backend/internal/data/repos/testutil"
	types "github.com/yungbote/creditchat-backend/internal/domain"
	httpMW "github.com/yungbote/creditchat-backend/internal/http/middleware"
	"github.com/yungbote/creditchat-backend/internal/modules/chat/steps"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
	"github.com/yungbote/creditchat-backend/internal/realtime"
	"github.com/yungbote/creditchat-backend/internal/services"
)

// echoReplier answers every turn with one terminal frame.
type echoReplier struct{}

func (echoReplier) Reply(ctx context.Context, turn *steps.Turn) (steps.TurnResult, error) {
	err := turn.Transport.Emit(ctx, realtime.MessageEvent(realtime.MessagePayload{
		ID:       turn.ID,
		SenderID: turn.UserID.String(),
		Text:     "echo: " + turn.Text,
		Complete: true,
	}))
	return steps.TurnResult{TurnID: turn.ID, Outcome: steps.OutcomeCompleted}, err
}

type testEnv struct {
	db     *gorm.DB
	router http.Handler
	hub    *realtime.SSEHub
	auth   services.AuthService
	chat   services.ChatService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, echoReplier{})
}

func newTestEnvWith(t *testing.T, replier services.Replier) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	db := testutil.DB(t)

	users := repos.NewUserRepo(db, log)
	subs := repos.NewSubscriptionRepo(db, log)
	agents := repos.NewAgentRepo(db, log)
	convs := repos.NewConversationRepo(db, log)

	auth := services.NewAuthService(log, "handler-test-secret")
	hub := realtime.NewSSEHub(log)
	chat := services.NewChatService(log, replier, nil, services.ChatServiceConfig{TurnTimeout: 5 * time.Second})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = chat.Shutdown(ctx)
	})

	rt := NewRealtimeHandlerWithDeps(RealtimeHandlerDeps{
		Log:               log,
		Hub:               hub,
		Sessions:          realtime.NewSessionManager(log),
		Chat:              chat,
		MessagesPerSecond: 100,
		Burst:             100,
	})

	authMW := httpMW.NewAuthMiddleware(log, auth)
	r := gin.New()
	protected := r.Group("/api")
	protected.Use(authMW.RequireAuth())
	protected.GET("/sse/stream", rt.SSEStream)
	ch := NewChatHandler(ChatHandlerDeps{Chat: chat, Hub: hub})
	protected.POST("/chat/messages", ch.SendMessage)
	protected.GET("/chat/ongoing", ch.Ongoing)
	protected.GET("/agents", NewAgentHandler(AgentHandlerDeps{Agents: agents, Users: users, Subscriptions: subs}).List)
	cv := NewConversationHandler(convs)
	protected.GET("/conversations", cv.List)
	protected.GET("/conversations/:id", cv.Get)
	protected.GET("/me/subscription", NewSubscriptionHandler(subs).Get)
	r.GET("/healthcheck", NewHealthHandler(db).HealthCheck)

	mux := http.NewServeMux()
	mux.Handle("GET /api/realtime/ws", authMW.RequireAuthHTTP(http.HandlerFunc(rt.WebSocket)))
	mux.Handle("/", r)

	return &testEnv{db: db, router: mux, hub: hub, auth: auth, chat: chat}
}

func (e *testEnv) token(t *testing.T, u *types.User) string {
	t.Helper()
	tok, err := e.auth.IssueToken(u.ID, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthcheck", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestSendMessageRelaysOverUserChannel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, env.db, "a@example.com", types.RoleUser)

	client := env.hub.NewSSEClient(u.ID)
	env.hub.AddChannel(client, realtime.UserChannel(u.ID))
	defer env.hub.CloseClient(client)

	rec := env.do(t, http.MethodPost, "/api/chat/messages", env.token(t, u), `{"message":"hi there"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var body struct {
		TurnID string `json:"turnId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, strings.HasPrefix(body.TurnID, "msg-"), body.TurnID)

	select {
	case msg := <-client.Outbound:
		assert.Equal(t, realtime.EventMessage, msg.Event)
		p, ok := msg.Data.(realtime.MessagePayload)
		require.True(t, ok, "payload type %T", msg.Data)
		assert.Equal(t, body.TurnID, p.ID)
		assert.Equal(t, "echo: hi there", p.Text)
		assert.True(t, p.Complete)
	case <-time.After(3 * time.Second):
		t.Fatal("no relayed message")
	}
}

func TestSendMessageRejects(t *testing.T) {
	env := newTestEnv(t)
	u := testutil.SeedUser(t, context.Background(), env.db, "b@example.com", types.RoleUser)
	tok := env.token(t, u)

	cases := []struct {
		name   string
		token  string
		body   string
		status int
		code   string
	}{
		{"unauthenticated", "", `{"message":"x"}`, http.StatusUnauthorized, "unauthorized"},
		{"malformed body", tok, `{`, http.StatusBadRequest, "invalid_request"},
		{"empty message", tok, `{"message":"   "}`, http.StatusBadRequest, "empty_message"},
		{"bad agent id", tok, `{"message":"x","agentId":"nope"}`, http.StatusBadRequest, "invalid_agent_id"},
		{"bad conversation id", tok, `{"message":"x","conversationId":"nope"}`, http.StatusBadRequest, "invalid_conversation_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/chat/messages", tc.token, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, errorCode(t, rec))
		})
	}
}

func TestOngoingWithoutTurn(t *testing.T) {
	env := newTestEnv(t)
	u := testutil.SeedUser(t, context.Background(), env.db, "c@example.com", types.RoleUser)
	rec := env.do(t, http.MethodGet, "/api/chat/ongoing", env.token(t, u), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_ongoing_turn", errorCode(t, rec))
}

func TestAgentsVisibleByLevel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.SeedAgent(t, ctx, env.db, "basic", "You are basic", 0)
	testutil.SeedAgent(t, ctx, env.db, "pro", "You are pro", 1)
	testutil.SeedAgent(t, ctx, env.db, "staff", "You are staff", 5)

	free := testutil.SeedUser(t, ctx, env.db, "free@example.com", types.RoleUser)
	paid := testutil.SeedUser(t, ctx, env.db, "paid@example.com", types.RoleUser)
	testutil.SeedSubscription(t, ctx, env.db, paid.ID, true, 100)
	lapsed := testutil.SeedUser(t, ctx, env.db, "lapsed@example.com", types.RoleUser)
	testutil.SeedSubscription(t, ctx, env.db, lapsed.ID, false, 100)
	owner := testutil.SeedUser(t, ctx, env.db, "owner@example.com", types.RoleOwner)

	cases := []struct {
		user *types.User
		want []string
	}{
		{free, []string{"basic"}},
		{lapsed, []string{"basic"}},
		{paid, []string{"basic", "pro"}},
		{owner, []string{"basic", "pro", "staff"}},
	}
	for _, tc := range cases {
		t.Run(tc.user.Email, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/agents", env.token(t, tc.user), "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var body struct {
				Agents []types.Agent `json:"agents"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			var names []string
			for _, a := range body.Agents {
				names = append(names, a.Name)
			}
			assert.Equal(t, tc.want, names)
		})
	}
}

func TestConversationOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := testutil.SeedUser(t, ctx, env.db, "own@example.com", types.RoleUser)
	other := testutil.SeedUser(t, ctx, env.db, "other@example.com", types.RoleUser)

	conv := &types.Conversation{UserID: owner.ID, Name: "Pirates"}
	require.NoError(t, conv.SetMessages([]types.Message{
		{Role: types.MessageSystem, Content: types.DefaultPersona},
		{Role: types.MessageUser, Content: "ahoy"},
	}))
	_, err := repos.NewConversationRepo(env.db, logger.Nop()).Create(ctx, nil, conv)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/conversations/"+conv.ID.String(), env.token(t, owner), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Conversation struct {
			Name     string          `json:"name"`
			Messages []types.Message `json:"messages"`
		} `json:"conversation"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Pirates", body.Conversation.Name)
	assert.Len(t, body.Conversation.Messages, 2)

	rec = env.do(t, http.MethodGet, "/api/conversations/"+conv.ID.String(), env.token(t, other), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/conversations/not-a-uuid", env.token(t, owner), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/conversations", env.token(t, other), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"conversations":[]`)
}

func TestSubscriptionRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	none := testutil.SeedUser(t, ctx, env.db, "none@example.com", types.RoleUser)
	paid := testutil.SeedUser(t, ctx, env.db, "sub@example.com", types.RoleUser)
	testutil.SeedSubscription(t, ctx, env.db, paid.ID, true, 948)

	rec := env.do(t, http.MethodGet, "/api/me/subscription", env.token(t, none), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/me/subscription", env.token(t, paid), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"isActive":true,"credits":948}`, rec.Body.String())
}
