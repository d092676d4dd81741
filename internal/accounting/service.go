package accounting

import (
	"context"
	"fmt"
	"time"

	"github.com/dukapos/dukapos/internal/shared"
)

// AuditPort abstracts audit logging for the service.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// RepositoryPort is the slice of the repository the service needs.
type RepositoryPort interface {
	InsertGroup(ctx context.Context, date time.Time, userID int64, entries []Entry) error
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
}

// Service coordinates standalone journal postings and reads. Posting sources
// that already hold a transaction use InsertEntries directly instead.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Record appends a balanced journal group atomically. This is the manual
// corrections path: mistakes are reversed with offsetting entries, never by
// editing posted lines. A zero date defaults to the current time.
func (s *Service) Record(ctx context.Context, actorID int64, date time.Time, entries []Entry) error {
	if err := Balanced(entries); err != nil {
		return err
	}
	if date.IsZero() {
		date = s.now()
	}
	if err := s.repo.InsertGroup(ctx, date, actorID, entries); err != nil {
		return err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID: &actorID,
			Action:  "create",
			Entity:  "journal_entry",
			Details: fmt.Sprintf("Posted journal group with %d lines", len(entries)),
			At:      s.now(),
		}); err != nil {
			return fmt.Errorf("accounting: audit journal post: %w", err)
		}
	}
	return nil
}

// List returns journal entries for the admin ledger view.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	return s.repo.List(ctx, filter)
}
