package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Conversation struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Name    string         `gorm:"column:name;not null;default:''" json:"name"`
	Context datatypes.JSON `gorm:"column:context" json:"context"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Conversation) TableName() string { return "conversation" }

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if len(c.Context) == 0 {
		c.Context = datatypes.JSON("[]")
	}
	return nil
}

// Messages decodes the stored context.
func (c *Conversation) Messages() ([]Message, error) {
	if c == nil || len(c.Context) == 0 {
		return []Message{}, nil
	}
	var out []Message
	if err := json.Unmarshal(c.Context, &out); err != nil {
		return nil, fmt.Errorf("decode conversation context: %w", err)
	}
	if out == nil {
		out = []Message{}
	}
	return out, nil
}

func (c *Conversation) SetMessages(msgs []Message) error {
	if msgs == nil {
		msgs = []Message{}
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode conversation context: %w", err)
	}
	c.Context = datatypes.JSON(raw)
	return nil
}
