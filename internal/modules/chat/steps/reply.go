package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/creditchat-backend/internal/data/repos"
	types "github.com/yungbote/creditchat-backend/internal/domain"
	"github.com/yungbote/creditchat-backend/internal/domain/chat"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
	"github.com/yungbote/creditchat-backend/internal/platform/openai"
	"github.com/yungbote/creditchat-backend/internal/realtime"
)

type ReplyDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	AI         openai.Client
	TitleModel string
	Meter      TokenCounter
	// Tools is optional; nil skips the tool check.
	Tools *ToolBroker

	Users         repos.UserRepo
	Subscriptions repos.SubscriptionRepo
	Agents        repos.AgentRepo
	Conversations repos.ConversationRepo

	IdleTimeout time.Duration
}

// Reply runs one chat turn end to end: gate, context load, title and tool
// check, streamed completion, then persist and settle in one transaction.
// Any returned error has already been reported to the client as a single
// error event.
func Reply(ctx context.Context, deps ReplyDeps, turn *Turn) (res TurnResult, err error) {
	if deps.Log == nil || deps.AI == nil || deps.Meter == nil || deps.Users == nil || deps.Subscriptions == nil || deps.Conversations == nil {
		return res, fmt.Errorf("chat reply: missing deps")
	}
	if turn == nil || turn.UserID == uuid.Nil || turn.ID == "" {
		return res, fmt.Errorf("chat reply: missing turn ids")
	}
	res = TurnResult{TurnID: turn.ID, Outcome: OutcomeFailed}
	log := deps.Log.With("turn_id", turn.ID, "user_id", turn.UserID)

	defer func() {
		if err == nil {
			return
		}
		ReportFailure(ctx, log, turn, err)
	}()

	// Gate.
	u, err := deps.Users.GetByID(ctx, nil, turn.UserID)
	if err != nil {
		return res, stepErr(CodeTurnFailed, fmt.Errorf("load user: %w", err))
	}
	if u == nil {
		return res, stepErr(CodeTurnFailed, fmt.Errorf("user %s not found", turn.UserID))
	}
	sub, err := deps.Subscriptions.GetByUserID(ctx, nil, turn.UserID)
	if err != nil {
		return res, stepErr(CodeTurnFailed, fmt.Errorf("load subscription: %w", err))
	}
	turn.User, turn.Subscription = u, sub
	if d := CheckEntitlement(u, sub); d != Allow {
		res.Outcome, res.Decision = OutcomeDenied, d
		log.Info("turn denied", "decision", d.String())
		if turn.Transport != nil && turn.Transport.Connected() {
			if err := turn.Transport.Emit(ctx, turn.message(d.Notice(), true)); err != nil {
				log.Debug("denial emit failed", "error", err)
			}
		}
		return res, nil
	}

	// Context load.
	var agent *types.Agent
	if turn.AgentID != uuid.Nil && deps.Agents != nil {
		agent, err = deps.Agents.GetByID(ctx, nil, turn.AgentID)
		if err != nil {
			return res, stepErr(CodeTurnFailed, fmt.Errorf("load agent: %w", err))
		}
		if agent == nil {
			log.Warn("agent not found; using default persona", "agent_id", turn.AgentID)
		}
	}
	turn.Agent = agent
	persona, temperature := agent.Persona()
	turn.Temperature = temperature

	store := StoreDeps{Log: log, Conversations: deps.Conversations}
	conv, msgs, err := LoadConversation(ctx, store, nil, turn.UserID, turn.ConversationID)
	if err != nil {
		return res, stepErr(CodeTurnFailed, err)
	}
	turn.Conversation = conv
	res.ConversationID = conv.ID

	msgs = WithPersona(msgs, persona)
	if err := SaveConversation(ctx, store, nil, conv, msgs); err != nil {
		return res, stepErr(CodePersistFailed, fmt.Errorf("save persona: %w", err))
	}
	msgs = append(msgs, types.Message{Role: types.MessageUser, Content: turn.Text})
	turn.Context = msgs
	turn.Title = conv.Name
	turn.InputTokens = deps.Meter.Count(turn.Text)

	// Title and tool check only read the snapshot above.
	needTitle := len(msgs) == 2
	var tool *ToolResult
	g, gctx := errgroup.WithContext(ctx)
	if needTitle {
		g.Go(func() error {
			title, err := GenerateTitle(gctx, deps.AI, deps.TitleModel, turn.Text)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("title generation failed; using fallback", "error", err)
				title = FallbackTitle(turn.Text)
			}
			turn.Title = title
			return nil
		})
	}
	if deps.Tools != nil {
		g.Go(func() error {
			r, err := deps.Tools.MaybeInvoke(gctx, turn.Text)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("tool check failed; continuing without tool result", "error", err)
				return nil
			}
			tool = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, stepErr(CodeTurnFailed, err)
	}
	if needTitle {
		conv.Name = turn.Title
	}
	if tool != nil {
		turn.Context = append(turn.Context, types.Message{Role: types.MessageFunction, Name: tool.Name, Content: tool.Result})
	}

	// Stream and relay.
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := deps.AI.StreamChat(streamCtx, toProviderMessages(turn.Context), turn.Temperature)
	if err != nil {
		return res, stepErr(CodeStreamFailed, err)
	}
	defer stream.Close()

	out, err := Relay(ctx, RelayDeps{Log: log, Meter: deps.Meter, IdleTimeout: deps.IdleTimeout}, turn, stream, cancel)
	if err != nil {
		var sf *StreamFailure
		if errors.As(err, &sf) {
			log.Warn("stream failed; nothing persisted or billed",
				"partial_bytes", len(sf.Partial),
				"output_tokens", sf.OutputTokens,
			)
		}
		return res, stepErr(CodeStreamFailed, err)
	}
	res.Text = out.Text
	res.InputTokens = turn.InputTokens
	res.OutputTokens = out.OutputTokens

	// Persist and settle.
	final := append(chat.WithoutFunctionMessages(turn.Context), types.Message{Role: types.MessageAssistant, Content: out.Text})
	var settled Settlement
	err = withTx(ctx, deps.DB, func(tx *gorm.DB) error {
		if err := SaveConversation(ctx, store, tx, conv, final); err != nil {
			return stepErr(CodePersistFailed, err)
		}
		s, err := Settle(ctx, SettleDeps{Log: log, Subscriptions: deps.Subscriptions}, tx, u, sub, turn.InputTokens, out.OutputTokens)
		if err != nil {
			return stepErr(CodeBillingFailed, err)
		}
		settled = s
		return nil
	})
	if err != nil {
		return res, err
	}
	turn.Context = final
	res.Billed = !settled.Skipped
	res.NewBalance = settled.NewBalance
	res.Outcome = OutcomeCompleted
	return res, nil
}

func withTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// ReportFailure logs err and sends the turn's single error event.
func ReportFailure(ctx context.Context, log *logger.Logger, turn *Turn, err error) {
	code := ErrorCode(err)
	log.Error("chat turn failed", "code", code, "error", err)
	if turn.Transport == nil || !turn.Transport.Connected() {
		return
	}
	payload := realtime.ErrorPayload{ID: turn.ID, Message: errorMessage(code), Code: code}
	if turn.Conversation != nil {
		payload.ConversationID = turn.Conversation.ID.String()
	}
	ev := realtime.ErrorEvent(payload)
	if emitErr := turn.Transport.Emit(context.WithoutCancel(ctx), ev); emitErr != nil {
		log.Debug("error emit failed", "error", emitErr)
	}
}

func errorMessage(code string) string {
	switch code {
	case CodeStreamFailed:
		return "The assistant stopped responding. Please try again."
	case CodePersistFailed:
		return "Your conversation could not be saved."
	case CodeBillingFailed:
		return "Your usage could not be recorded."
	default:
		return "Something went wrong while answering your message."
	}
}

func toProviderMessages(msgs []types.Message) []openai.Message {
	out := make([]openai.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.Message{Role: string(m.Role), Content: m.Content, Name: m.Name})
	}
	return out
}
