package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/creditchat-backend/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string, role types.UserRole) *types.User {
	tb.Helper()
	u := &types.User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: "A",
		LastName:  "B",
		Role:      role,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedSubscription(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, active bool, credits int64) *types.UserSubscription {
	tb.Helper()
	s := &types.UserSubscription{
		UserID:         userID,
		SubscriptionID: "sub_" + userID.String()[:8],
		CustomerID:     "cus_" + userID.String()[:8],
		IsActive:       active,
		Credits:        credits,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed subscription: %v", err)
	}
	return s
}

func SeedAgent(tb testing.TB, ctx context.Context, tx *gorm.DB, name, prompt string, level int) *types.Agent {
	tb.Helper()
	a := &types.Agent{Name: name, Prompt: prompt, Temperature: 0.7, Level: level, Type: "chat"}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed agent: %v", err)
	}
	return a
}
