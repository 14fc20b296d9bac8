package steps

import (
	types "github.com/yungbote/creditchat-backend/internal/domain"
)

type Decision int

const (
	Allow Decision = iota
	DenyNoSubscription
	DenyNoCredits
)

const (
	noSubscriptionNotice = "You need an active subscription to continue using the service"
	noCreditsNotice      = "You need to purchase more credits to continue using the service"
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyNoSubscription:
		return "deny_no_subscription"
	case DenyNoCredits:
		return "deny_no_credits"
	default:
		return "unknown"
	}
}

// Notice is the user-facing text sent for a denial; empty for Allow.
func (d Decision) Notice() string {
	switch d {
	case DenyNoSubscription:
		return noSubscriptionNotice
	case DenyNoCredits:
		return noCreditsNotice
	default:
		return ""
	}
}

// CheckEntitlement decides whether u may start a turn. A missing user is
// treated as a non-owner.
func CheckEntitlement(u *types.User, sub *types.UserSubscription) Decision {
	if u != nil && u.IsOwner() {
		return Allow
	}
	if sub == nil || !sub.IsActive {
		return DenyNoSubscription
	}
	if sub.Credits <= 0 {
		return DenyNoCredits
	}
	return Allow
}
