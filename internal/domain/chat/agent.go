package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultPersona     = "You are a helpful assistant"
	DefaultTemperature = 0.5
)

// Agent is a named persona. Level gates which users may pick it.
type Agent struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `gorm:"column:name;not null;uniqueIndex" json:"name" yaml:"name"`
	Prompt       string    `gorm:"column:prompt;type:text;not null;default:''" json:"prompt" yaml:"prompt"`
	Temperature  float64   `gorm:"column:temperature;not null;default:0.5" json:"temperature" yaml:"temperature"`
	Level        int       `gorm:"column:level;not null;default:0;index" json:"level" yaml:"level"`
	Type         string    `gorm:"column:type;not null;default:'chat'" json:"type" yaml:"type"`
	ImageBackend string    `gorm:"column:image_backend;not null;default:''" json:"image_backend,omitempty" yaml:"image_backend"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at" yaml:"-"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at" yaml:"-"`
}

func (Agent) TableName() string { return "agent" }

func (a *Agent) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Persona returns the system prompt and temperature to use, falling back to
// the defaults when a is nil or unset.
func (a *Agent) Persona() (string, float64) {
	if a == nil || a.Prompt == "" {
		temp := DefaultTemperature
		if a != nil && a.Temperature > 0 {
			temp = a.Temperature
		}
		return DefaultPersona, temp
	}
	temp := a.Temperature
	if temp <= 0 {
		temp = DefaultTemperature
	}
	return a.Prompt, temp
}
