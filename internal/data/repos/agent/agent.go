package agent

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/creditchat-backend/internal/domain"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
)

type AgentRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, agentID uuid.UUID) (*types.Agent, error)
	GetByName(ctx context.Context, tx *gorm.DB, name string) (*types.Agent, error)
	ListUpToLevel(ctx context.Context, tx *gorm.DB, level int) ([]*types.Agent, error)
	UpsertByName(ctx context.Context, tx *gorm.DB, agents []*types.Agent) error
}

type agentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAgentRepo(db *gorm.DB, baseLog *logger.Logger) AgentRepo {
	repoLog := baseLog.With("repo", "AgentRepo")
	return &agentRepo{db: db, log: repoLog}
}

func (ar *agentRepo) first(ctx context.Context, tx *gorm.DB, query string, arg any) (*types.Agent, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}
	var results []*types.Agent
	if err := transaction.WithContext(ctx).
		Where(query, arg).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (ar *agentRepo) GetByID(ctx context.Context, tx *gorm.DB, agentID uuid.UUID) (*types.Agent, error) {
	return ar.first(ctx, tx, "id = ?", agentID)
}

func (ar *agentRepo) GetByName(ctx context.Context, tx *gorm.DB, name string) (*types.Agent, error) {
	return ar.first(ctx, tx, "name = ?", name)
}

func (ar *agentRepo) ListUpToLevel(ctx context.Context, tx *gorm.DB, level int) ([]*types.Agent, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}
	var results []*types.Agent
	if err := transaction.WithContext(ctx).
		Where("level <= ?", level).
		Order("level ASC, name ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (ar *agentRepo) UpsertByName(ctx context.Context, tx *gorm.DB, agents []*types.Agent) error {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}
	if len(agents) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"prompt", "temperature", "level", "type", "image_backend", "updated_at"}),
		}).
		Create(&agents).Error
}
