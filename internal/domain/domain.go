package domain

import (
	"github.com/yungbote/creditchat-backend/internal/domain/billing"
	"github.com/yungbote/creditchat-backend/internal/domain/chat"
	"github.com/yungbote/creditchat-backend/internal/domain/user"
)

type User = user.User
type UserRole = user.Role

const (
	RoleUser  = user.RoleUser
	RoleOwner = user.RoleOwner
)

type UserSubscription = billing.UserSubscription

type Agent = chat.Agent
type Conversation = chat.Conversation
type Message = chat.Message
type MessageRole = chat.Role

const (
	DefaultPersona     = chat.DefaultPersona
	DefaultTemperature = chat.DefaultTemperature
)

const (
	MessageSystem    = chat.RoleSystem
	MessageUser      = chat.RoleUser
	MessageAssistant = chat.RoleAssistant
	MessageFunction  = chat.RoleFunction
)

// Models lists every persisted type, in migration order.
func Models() []any {
	return []any{
		&User{},
		&UserSubscription{},
		&Agent{},
		&Conversation{},
	}
}
