package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dukapos/dukapos/internal/accounting"
)

// NewJournalIntegrityHandler returns the handler for TaskJournalIntegrity.
// Every posting commits with its source in one transaction, so a day whose
// debits and credits disagree means rows were touched outside the API. The
// scan surfaces that loudly rather than repairing anything.
func NewJournalIntegrityHandler(logger *slog.Logger, repo *accounting.Repository) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload JournalIntegrityPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		lookback := 7
		if payload.LookbackDays > 0 {
			lookback = payload.LookbackDays
		}
		since := time.Now().AddDate(0, 0, -lookback)

		sums, err := repo.DailySums(ctx, since)
		if err != nil {
			logger.Error("journal integrity scan failed", slog.Any("error", err))
			return err
		}

		unbalanced := 0
		for day, totals := range sums {
			if totals[0] != totals[1] {
				unbalanced++
				logger.Error("journal day out of balance",
					slog.String("day", day),
					slog.String("debits", totals[0]),
					slog.String("credits", totals[1]))
			}
		}
		if unbalanced > 0 {
			return fmt.Errorf("journal integrity: %d day(s) out of balance", unbalanced)
		}
		logger.Info("journal integrity scan complete", slog.Int("days_checked", len(sums)))
		return nil
	}
}
