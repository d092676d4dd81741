package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/accounting"
	"github.com/dukapos/dukapos/internal/inventory"
	"github.com/dukapos/dukapos/internal/platform/httpx"
	"github.com/dukapos/dukapos/internal/shared"
)

const receiptRetries = 3

var oneHundred = decimal.NewFromInt(100)

// AuditPort abstracts audit logging for the service.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates sale creation and reads.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	now     func() time.Time
	receipt func(time.Time) string
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now, receipt: newReceiptNumber}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithReceiptGenerator overrides receipt generation, used by tests.
func (s *Service) WithReceiptGenerator(fn func(time.Time) string) {
	if fn != nil {
		s.receipt = fn
	}
}

func newReceiptNumber(at time.Time) string {
	entropy := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("RCP-%s-%s", at.Format("20060102"), entropy)
}

// SaleItemInput is one requested line.
type SaleItemInput struct {
	ProductID int64
	Quantity  int
}

// CreateSaleInput collects everything needed to record a sale.
type CreateSaleInput struct {
	CashierID     int64
	Items         []SaleItemInput
	PaymentMethod PaymentMethod
	CustomerName  *string
	CustomerPhone *string
	Notes         *string
	DueDate       *time.Time
	IP            string
}

// CreateSale records a sale atomically: header, items, stock decrements, the
// credit row for Credit sales, and the journal group all commit together. A
// stock shortfall on any line aborts the whole sale with no row written.
func (s *Service) CreateSale(ctx context.Context, input CreateSaleInput) (Sale, error) {
	if len(input.Items) == 0 {
		return Sale{}, ErrEmptySale
	}
	if !input.PaymentMethod.Valid() {
		return Sale{}, ErrInvalidPaymentMethod
	}
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return Sale{}, fmt.Errorf("%w: quantity must be positive", httpx.ErrValidation)
		}
	}

	var created Sale
	var err error
	for attempt := 0; attempt < receiptRetries; attempt++ {
		created, err = s.createOnce(ctx, input)
		if !errors.Is(err, errReceiptCollision) {
			break
		}
	}
	if err != nil {
		return Sale{}, err
	}

	if s.audit != nil {
		if aerr := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  &input.CashierID,
			Action:   "create",
			Entity:   "sale",
			EntityID: &created.ID,
			Details:  fmt.Sprintf("Sale %s total %s via %s", created.ReceiptNumber, created.Total.StringFixed(2), created.PaymentMethod),
			IP:       input.IP,
		}); aerr != nil {
			return Sale{}, fmt.Errorf("sales: audit sale creation: %w", aerr)
		}
	}
	return created, nil
}

func (s *Service) createOnce(ctx context.Context, input CreateSaleInput) (Sale, error) {
	now := s.now()
	sale := Sale{
		ReceiptNumber: s.receipt(now),
		CashierID:     input.CashierID,
		PaymentMethod: input.PaymentMethod,
		PaymentStatus: initialPaymentStatus(input.PaymentMethod),
		CustomerName:  input.CustomerName,
		CustomerPhone: input.CustomerPhone,
		Notes:         input.Notes,
		CreatedAt:     now,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		subtotal := decimal.Zero
		vat := decimal.Zero
		items := make([]SaleItem, 0, len(input.Items))

		for _, line := range input.Items {
			product, err := tx.GetProductForUpdate(ctx, line.ProductID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return fmt.Errorf("%w: product %d", ErrUnknownProduct, line.ProductID)
				}
				return err
			}
			lineTotal := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			subtotal = subtotal.Add(lineTotal)
			vat = vat.Add(lineTotal.Mul(product.VATRate).Div(oneHundred))

			if err := tx.DecrementStock(ctx, product.ID, line.Quantity); err != nil {
				if errors.Is(err, inventory.ErrInsufficientStock) {
					return &inventory.InsufficientStockError{Product: product.Name, Requested: line.Quantity, Available: product.Stock}
				}
				return err
			}
			items = append(items, SaleItem{
				ProductID: product.ID,
				Quantity:  line.Quantity,
				Price:     product.Price,
				Total:     lineTotal.Round(2),
			})
		}

		sale.Subtotal = subtotal.Round(2)
		sale.VAT = vat.Round(2)
		sale.Total = sale.Subtotal.Add(sale.VAT)

		saleID, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = saleID
		for i := range items {
			items[i].SaleID = saleID
		}
		if err := tx.InsertItems(ctx, saleID, items); err != nil {
			return err
		}
		sale.Items = items

		if sale.PaymentMethod == PaymentCredit {
			if err := tx.InsertCreditSale(ctx, saleID, sale, input.DueDate); err != nil {
				return err
			}
		}

		entries := journalForSale(sale)
		if len(entries) > 0 {
			if err := accounting.Balanced(entries); err != nil {
				return err
			}
			if err := tx.InsertJournal(ctx, now, sale.CashierID, entries); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	return sale, nil
}

func initialPaymentStatus(method PaymentMethod) PaymentStatus {
	switch method {
	case PaymentMpesa, PaymentCredit:
		return PaymentStatusPending
	default:
		return PaymentStatusCompleted
	}
}

// journalForSale builds the posting group for a newly created sale. M-Pesa
// sales are journaled at reconciliation time instead, once payment is
// confirmed, so no revenue is recognized for an unconfirmed push.
func journalForSale(sale Sale) []accounting.Entry {
	desc := fmt.Sprintf("Sale %s", sale.ReceiptNumber)
	switch sale.PaymentMethod {
	case PaymentCash, PaymentCard, PaymentBankTransfer:
		return revenueEntries(accounting.AccountCash, sale, desc)
	case PaymentCredit:
		return revenueEntries(accounting.AccountReceivable, sale, desc)
	default:
		return nil
	}
}

func revenueEntries(debitAccount string, sale Sale, desc string) []accounting.Entry {
	entries := []accounting.Entry{
		accounting.Debit(debitAccount, sale.Total, desc),
		accounting.Credit(accounting.AccountSalesRevenue, sale.Subtotal, desc),
	}
	if sale.VAT.IsPositive() {
		entries = append(entries, accounting.Credit(accounting.AccountVATPayable, sale.VAT, desc))
	}
	return entries
}

// Get fetches a sale with items.
func (s *Service) Get(ctx context.Context, id int64) (Sale, error) {
	return s.repo.Get(ctx, id)
}
