package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/accounting"
	"github.com/dukapos/dukapos/internal/shared"
)

// AuditPort abstracts audit logging for the service.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates credit sale reads and payment recording.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// RecordPaymentInput collects everything needed to record an installment.
type RecordPaymentInput struct {
	CreditSaleID int64
	Amount       decimal.Decimal
	ActorID      int64
	IP           string
}

// RecordPayment applies an installment to a credit sale. Paid only grows,
// the balance is recomputed from amount and paid, and a payment that would
// push paid past the amount owed is rejected. On full settlement the parent
// sale flips to completed. The cash receipt is journaled (debit Cash, credit
// Accounts Receivable) in the same transaction as the credit update.
func (s *Service) RecordPayment(ctx context.Context, input RecordPaymentInput) (CreditSale, error) {
	if !input.Amount.IsPositive() {
		return CreditSale{}, ErrInvalidAmount
	}

	var updated CreditSale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cs, err := tx.GetForUpdate(ctx, input.CreditSaleID)
		if err != nil {
			return err
		}

		newPaid := cs.Paid.Add(input.Amount)
		if newPaid.GreaterThan(cs.Amount) {
			return fmt.Errorf("%w: owed %s, already paid %s", ErrOverpayment, cs.Amount.StringFixed(2), cs.Paid.StringFixed(2))
		}
		newBalance := cs.Amount.Sub(newPaid)
		newStatus := DeriveStatus(newPaid, cs.Amount)

		if err := tx.UpdatePayment(ctx, cs.ID, newPaid, newBalance, newStatus); err != nil {
			return err
		}
		if newStatus == StatusPaid {
			if err := tx.MarkSaleCompleted(ctx, cs.SaleID); err != nil {
				return err
			}
		}

		desc := fmt.Sprintf("Credit payment for sale %d", cs.SaleID)
		entries := []accounting.Entry{
			accounting.Debit(accounting.AccountCash, input.Amount, desc),
			accounting.Credit(accounting.AccountReceivable, input.Amount, desc),
		}
		if err := accounting.Balanced(entries); err != nil {
			return err
		}
		if err := tx.InsertJournal(ctx, s.now(), input.ActorID, entries); err != nil {
			return err
		}

		cs.Paid = newPaid
		cs.Balance = newBalance
		cs.Status = newStatus
		updated = cs
		return nil
	})
	if err != nil {
		return CreditSale{}, err
	}

	if s.audit != nil {
		if aerr := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  &input.ActorID,
			Action:   "payment",
			Entity:   "credit_sale",
			EntityID: &updated.ID,
			Details:  fmt.Sprintf("Payment %s, balance %s", input.Amount.StringFixed(2), updated.Balance.StringFixed(2)),
			IP:       input.IP,
		}); aerr != nil {
			return CreditSale{}, fmt.Errorf("credit: audit payment: %w", aerr)
		}
	}
	return updated, nil
}

// Get fetches a credit sale by id.
func (s *Service) Get(ctx context.Context, id int64) (CreditSale, error) {
	return s.repo.Get(ctx, id)
}

// List returns credit sales, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status) ([]CreditSale, error) {
	return s.repo.List(ctx, status)
}
