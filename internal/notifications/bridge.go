package notifications

import (
	"context"
	"log/slog"
	"time"

	"spool/internal/logging"
	"spool/internal/outcome"
	"spool/internal/queue"
)

// Bridge adapts Service to the scheduler's fire-and-forget surface:
// delivery failures are logged, never propagated.
type Bridge struct {
	Service Service
	Logger  *slog.Logger
}

// NewBridge wraps a service for scheduler use.
func NewBridge(service Service, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bridge{Service: service, Logger: logger.With(logging.String(logging.FieldComponent, "notifications"))}
}

func (b *Bridge) JobCompleted(ctx context.Context, item *queue.Item, jobID int64) {
	if err := b.Service.NotifyJobCompleted(ctx, item.Title); err != nil {
		b.Logger.Warn("completion notification failed", logging.Int64(logging.FieldJobID, jobID), logging.Error(err))
	}
}

func (b *Bridge) JobFailed(ctx context.Context, item *queue.Item, jobID int64, kind outcome.Kind) {
	if err := b.Service.NotifyJobFailed(ctx, item.Title, kind); err != nil {
		b.Logger.Warn("failure notification failed", logging.Int64(logging.FieldJobID, jobID), logging.Error(err))
	}
}

func (b *Bridge) QueueCompleted(ctx context.Context, processed int, elapsed time.Duration) {
	if err := b.Service.NotifyQueueCompleted(ctx, processed, elapsed); err != nil {
		b.Logger.Warn("queue notification failed", logging.Error(err))
	}
}
