package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMpesaExpiry fails pending payment pushes that never received a
	// gateway callback.
	TaskMpesaExpiry = "mpesa:expire"
	// TaskJournalIntegrity verifies that daily journal debits equal credits.
	TaskJournalIntegrity = "journal:integrity"
)

// MpesaExpiryPayload bounds the age of pushes the expiry run touches.
type MpesaExpiryPayload struct {
	MaxAgeMinutes int `json:"max_age_minutes"`
}

// NewMpesaExpiryTask constructs an Asynq task.
func NewMpesaExpiryTask(payload MpesaExpiryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMpesaExpiry, data), nil
}

// JournalIntegrityPayload bounds how far back the integrity scan looks.
type JournalIntegrityPayload struct {
	LookbackDays int `json:"lookback_days"`
}

// NewJournalIntegrityTask constructs an Asynq task.
func NewJournalIntegrityTask(payload JournalIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskJournalIntegrity, data), nil
}
