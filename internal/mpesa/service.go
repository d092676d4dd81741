package mpesa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukapos/dukapos/internal/accounting"
	"github.com/dukapos/dukapos/internal/sales"
	"github.com/dukapos/dukapos/internal/shared"
)

// AuditPort abstracts audit logging for the service.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates STK pushes and their reconciliation.
type Service struct {
	logger  *slog.Logger
	repo    RepositoryPort
	gateway Gateway
	audit   AuditPort
	now     func() time.Time
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, gateway Gateway, audit AuditPort) *Service {
	return &Service{logger: logger, repo: repo, gateway: gateway, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// InitiateInput collects everything needed to start an STK push.
type InitiateInput struct {
	SaleID  int64
	Phone   string
	ActorID int64
	IP      string
}

// Initiate validates the sale, asks the gateway to prompt the customer, and
// records the push as pending. Only one pending push may exist per sale.
func (s *Service) Initiate(ctx context.Context, input InitiateInput) (Transaction, error) {
	var sale SaleInfo
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		sale, err = tx.GetSaleForUpdate(ctx, input.SaleID)
		if err != nil {
			return err
		}
		if sale.PaymentMethod != string(sales.PaymentMpesa) || sale.PaymentStatus != string(sales.PaymentStatusPending) {
			return ErrSaleNotPayable
		}
		pending, err := tx.HasPendingForSale(ctx, input.SaleID)
		if err != nil {
			return err
		}
		if pending {
			return ErrPushPending
		}
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}

	resp, err := s.gateway.STKPush(ctx, PushRequest{
		Phone:       input.Phone,
		Amount:      sale.Total,
		AccountRef:  sale.ReceiptNumber,
		Description: fmt.Sprintf("Sale %s", sale.ReceiptNumber),
	})
	if err != nil {
		return Transaction{}, fmt.Errorf("mpesa: stk push: %w", err)
	}

	txn := Transaction{
		SaleID:            input.SaleID,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: &resp.MerchantRequestID,
		Phone:             input.Phone,
		Amount:            sale.Total,
		Status:            StatusPending,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, txn)
		if err != nil {
			return err
		}
		txn.ID = id
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}

	if s.audit != nil {
		if aerr := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  &input.ActorID,
			Action:   "stk_push",
			Entity:   "mpesa_transaction",
			EntityID: &txn.ID,
			Details:  fmt.Sprintf("Push %s for sale %d amount %s", txn.CheckoutRequestID, txn.SaleID, txn.Amount.StringFixed(2)),
			IP:       input.IP,
		}); aerr != nil {
			return Transaction{}, fmt.Errorf("mpesa: audit push: %w", aerr)
		}
	}
	return txn, nil
}

// ReconcileInput carries a gateway callback outcome.
type ReconcileInput struct {
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	MpesaReceipt      *string
	ActorID           *int64
	IP                string
}

// Reconcile applies the gateway outcome exactly once. Success flips the sale
// to completed and posts revenue (debit M-Pesa, credit Sales Revenue and VAT
// Payable) attributed to the sale's cashier. Failure and cancellation flip
// the sale to failed with no posting. A transaction that already finalized
// is left untouched and ErrAlreadyFinalized is returned.
func (s *Service) Reconcile(ctx context.Context, input ReconcileInput) (Transaction, error) {
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		txn, err = tx.GetByCheckoutIDForUpdate(ctx, input.CheckoutRequestID)
		if err != nil {
			return err
		}
		if txn.Status.Terminal() {
			return ErrAlreadyFinalized
		}

		newStatus := statusForResult(input.ResultCode)
		if err := tx.Finalize(ctx, txn.ID, newStatus, input.ResultCode, input.ResultDesc, input.MpesaReceipt); err != nil {
			return err
		}

		sale, err := tx.GetSaleForUpdate(ctx, txn.SaleID)
		if err != nil {
			return err
		}

		if newStatus == StatusCompleted {
			// The sale can already be settled when a rival push completed
			// first. Finalize this transaction but never post revenue twice.
			if sale.PaymentStatus == string(sales.PaymentStatusCompleted) {
				s.logger.Warn("sale already settled, skipping posting",
					slog.Int64("sale_id", sale.ID),
					slog.String("checkout_request_id", txn.CheckoutRequestID))
				txn.Status = newStatus
				txn.ResultCode = &input.ResultCode
				txn.ResultDesc = &input.ResultDesc
				txn.MpesaReceipt = input.MpesaReceipt
				return nil
			}
			if err := tx.SetSalePaymentStatus(ctx, sale.ID, string(sales.PaymentStatusCompleted)); err != nil {
				return err
			}
			desc := fmt.Sprintf("Sale %s", sale.ReceiptNumber)
			entries := []accounting.Entry{
				accounting.Debit(accounting.AccountMpesa, sale.Total, desc),
				accounting.Credit(accounting.AccountSalesRevenue, sale.Subtotal, desc),
			}
			if sale.VAT.IsPositive() {
				entries = append(entries, accounting.Credit(accounting.AccountVATPayable, sale.VAT, desc))
			}
			if err := accounting.Balanced(entries); err != nil {
				return err
			}
			if err := tx.InsertJournal(ctx, s.now(), sale.CashierID, entries); err != nil {
				return err
			}
		} else {
			if sale.PaymentStatus == string(sales.PaymentStatusPending) {
				if err := tx.SetSalePaymentStatus(ctx, sale.ID, string(sales.PaymentStatusFailed)); err != nil {
					return err
				}
			}
		}

		txn.Status = newStatus
		txn.ResultCode = &input.ResultCode
		txn.ResultDesc = &input.ResultDesc
		txn.MpesaReceipt = input.MpesaReceipt
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}

	if s.audit != nil {
		if aerr := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "reconcile",
			Entity:   "mpesa_transaction",
			EntityID: &txn.ID,
			Details:  fmt.Sprintf("Push %s finalized as %s", txn.CheckoutRequestID, txn.Status),
			IP:       input.IP,
		}); aerr != nil {
			return Transaction{}, fmt.Errorf("mpesa: audit reconcile: %w", aerr)
		}
	}
	return txn, nil
}

// Status fetches a transaction by checkout id.
func (s *Service) Status(ctx context.Context, checkoutRequestID string) (Transaction, error) {
	return s.repo.GetByCheckoutID(ctx, checkoutRequestID)
}

// ExpireStale fails every pending push older than maxAge. It is run
// periodically by the background worker. Returns the number of transactions
// expired.
func (s *Service) ExpireStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	ids, err := s.repo.ListStalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		_, err := s.Reconcile(ctx, ReconcileInput{
			CheckoutRequestID: id,
			ResultCode:        1, // generic failure, no callback arrived in time
			ResultDesc:        "expired without gateway callback",
		})
		if err != nil {
			if errors.Is(err, ErrAlreadyFinalized) {
				continue
			}
			return expired, err
		}
		s.logger.Info("expired stale mpesa push", slog.String("checkout_request_id", id))
		expired++
	}
	return expired, nil
}
