package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/creditchat-backend/internal/data/repos"
	types "github.com/yungbote/creditchat-backend/internal/domain"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
)

var ErrConversationNotOwned = errors.New("conversation belongs to another user")

type StoreDeps struct {
	Log           *logger.Logger
	Conversations repos.ConversationRepo
}

// LoadConversation returns the conversation named by conversationID, or a
// freshly created one when the id is nil or unknown.
func LoadConversation(ctx context.Context, deps StoreDeps, tx *gorm.DB, userID, conversationID uuid.UUID) (*types.Conversation, []types.Message, error) {
	if deps.Conversations == nil {
		return nil, nil, fmt.Errorf("chat store: missing deps")
	}
	if conversationID != uuid.Nil {
		conv, err := deps.Conversations.GetByID(ctx, tx, conversationID)
		if err != nil {
			return nil, nil, fmt.Errorf("load conversation: %w", err)
		}
		if conv != nil {
			if conv.UserID != userID {
				return nil, nil, ErrConversationNotOwned
			}
			msgs, err := conv.Messages()
			if err != nil {
				return nil, nil, fmt.Errorf("decode conversation context: %w", err)
			}
			return conv, msgs, nil
		}
		if deps.Log != nil {
			deps.Log.Info("conversation not found; starting a new one", "conversation_id", conversationID)
		}
	}
	conv, err := deps.Conversations.Create(ctx, tx, &types.Conversation{UserID: userID})
	if err != nil {
		return nil, nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil, nil
}

// WithPersona returns msgs with element 0 set to the system persona.
func WithPersona(msgs []types.Message, persona string) []types.Message {
	sys := types.Message{Role: types.MessageSystem, Content: persona}
	if len(msgs) == 0 {
		return []types.Message{sys}
	}
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	if out[0].Role == types.MessageSystem {
		out[0] = sys
		return out
	}
	return append([]types.Message{sys}, out...)
}

// SaveConversation writes name and msgs back to the row.
func SaveConversation(ctx context.Context, deps StoreDeps, tx *gorm.DB, conv *types.Conversation, msgs []types.Message) error {
	if err := conv.SetMessages(msgs); err != nil {
		return err
	}
	return deps.Conversations.Save(ctx, tx, conv.ID, conv.Name, conv.Context, conv.UserID)
}
