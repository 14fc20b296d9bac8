package subscription

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/creditchat-backend/internal/domain"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
)

type SubscriptionRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, sub *types.UserSubscription) (*types.UserSubscription, error)
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserSubscription, error)
	// UpdateCredits overwrites the balance in a single statement keyed by user id.
	UpdateCredits(ctx context.Context, tx *gorm.DB, userID uuid.UUID, credits int64) error
	SetActive(ctx context.Context, tx *gorm.DB, userID uuid.UUID, active bool) error
}

type subscriptionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubscriptionRepo(db *gorm.DB, baseLog *logger.Logger) SubscriptionRepo {
	repoLog := baseLog.With("repo", "SubscriptionRepo")
	return &subscriptionRepo{db: db, log: repoLog}
}

func (sr *subscriptionRepo) Upsert(ctx context.Context, tx *gorm.DB, sub *types.UserSubscription) (*types.UserSubscription, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}
	if sub == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"subscription_id", "customer_id", "is_active", "credits", "updated_at"}),
		}).
		Create(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

// GetByUserID returns nil, nil when the user has no subscription row.
func (sr *subscriptionRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserSubscription, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}
	var results []*types.UserSubscription
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (sr *subscriptionRepo) UpdateCredits(ctx context.Context, tx *gorm.DB, userID uuid.UUID, credits int64) error {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.UserSubscription{}).
		Where("user_id = ?", userID).
		Update("credits", credits)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (sr *subscriptionRepo) SetActive(ctx context.Context, tx *gorm.DB, userID uuid.UUID, active bool) error {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}
	return transaction.WithContext(ctx).
		Model(&types.UserSubscription{}).
		Where("user_id = ?", userID).
		Update("is_active", active).Error
}
