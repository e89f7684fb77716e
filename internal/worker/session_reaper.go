package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-conversation/internal/conversation"
)

// StartSessionReaper periodically tears down idle conversation sessions
// until the context is cancelled.
func StartSessionReaper(ctx context.Context, manager *conversation.Manager, interval time.Duration, logger *zap.Logger) {
	if manager == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if reaped := manager.ReapIdle(time.Now()); reaped > 0 {
					logger.Info("reaped idle sessions", zap.Int("count", reaped))
				}
			}
		}
	}()
}
