package steps

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/creditchat-backend/internal/data/repos"
	types "github.com/yungbote/creditchat-backend/internal/domain"
	"github.com/yungbote/creditchat-backend/internal/observability"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
)

type SettleDeps struct {
	Log           *logger.Logger
	Subscriptions repos.SubscriptionRepo
}

type Settlement struct {
	Skipped    bool
	Debited    int64
	NewBalance int64
}

// Settle debits inputTokens+outputTokens from the balance read at gate time.
// Owners are never billed. The balance is not clamped at zero.
func Settle(ctx context.Context, deps SettleDeps, tx *gorm.DB, u *types.User, sub *types.UserSubscription, inputTokens, outputTokens int) (Settlement, error) {
	if u != nil && u.IsOwner() {
		return Settlement{Skipped: true}, nil
	}
	if deps.Subscriptions == nil || sub == nil {
		return Settlement{}, fmt.Errorf("chat settle: missing subscription")
	}
	debit := int64(inputTokens + outputTokens)
	balance := sub.Credits - debit
	if err := deps.Subscriptions.UpdateCredits(ctx, tx, sub.UserID, balance); err != nil {
		return Settlement{}, fmt.Errorf("update credits: %w", err)
	}
	observability.Current().AddCreditsDebited(debit)
	if deps.Log != nil {
		deps.Log.Info("credits settled",
			"user_id", sub.UserID,
			"input_tokens", inputTokens,
			"output_tokens", outputTokens,
			"balance", balance,
		)
	}
	return Settlement{Debited: debit, NewBalance: balance}, nil
}
