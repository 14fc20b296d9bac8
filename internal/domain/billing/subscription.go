package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserSubscription holds the spendable credit balance for one user.
// Credits are not clamped and may go negative after settlement.
type UserSubscription struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`

	SubscriptionID string `gorm:"column:subscription_id;not null;default:''" json:"subscription_id"`
	CustomerID     string `gorm:"column:customer_id;not null;default:'';index" json:"customer_id"`

	IsActive bool  `gorm:"column:is_active;not null;default:false" json:"is_active"`
	Credits  int64 `gorm:"column:credits;not null;default:0" json:"credits"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (UserSubscription) TableName() string { return "user_subscription" }

func (s *UserSubscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
