package bus

import (
	"context"

	"github.com/yungbote/creditchat-backend/internal/realtime"
)

// Bus fans hub frames out across instances. Publish satisfies
// realtime.Publisher.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
