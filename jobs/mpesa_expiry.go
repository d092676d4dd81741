package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dukapos/dukapos/internal/mpesa"
)

// NewMpesaExpiryHandler returns the handler for TaskMpesaExpiry. Pushes left
// pending past the configured age are finalized as failed, which also flips
// their sale to failed.
func NewMpesaExpiryHandler(logger *slog.Logger, svc *mpesa.Service, defaultMaxAge time.Duration) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload MpesaExpiryPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		maxAge := defaultMaxAge
		if payload.MaxAgeMinutes > 0 {
			maxAge = time.Duration(payload.MaxAgeMinutes) * time.Minute
		}
		expired, err := svc.ExpireStale(ctx, maxAge)
		if err != nil {
			logger.Error("mpesa expiry run failed", slog.Any("error", err))
			return err
		}
		logger.Info("mpesa expiry run complete", slog.Int("expired", expired))
		return nil
	}
}
