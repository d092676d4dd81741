package credit

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/platform/httpx"
)

// Status enumerates the credit sale states. Transitions are monotonic:
// pending -> partial -> paid.
type Status string

const (
	StatusPending Status = "pending"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
)

// CreditSale tracks installment payment against a single Credit sale.
type CreditSale struct {
	ID            int64           `json:"id"`
	SaleID        int64           `json:"sale_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone *string         `json:"customer_phone,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Paid          decimal.Decimal `json:"paid"`
	Balance       decimal.Decimal `json:"balance"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DeriveStatus computes the state from the numeric fields. The stored column
// is refreshed from this on every write so it can never drift.
func DeriveStatus(paid, amount decimal.Decimal) Status {
	switch {
	case paid.IsZero():
		return StatusPending
	case paid.GreaterThanOrEqual(amount):
		return StatusPaid
	default:
		return StatusPartial
	}
}

var (
	// ErrOverpayment rejects a payment that would exceed the amount owed.
	// Overpayments are rejected outright, never clamped.
	ErrOverpayment = fmt.Errorf("%w: payment exceeds outstanding balance", httpx.ErrUnprocessable)
	// ErrInvalidAmount rejects non-positive payment amounts.
	ErrInvalidAmount = fmt.Errorf("%w: payment amount must be positive", httpx.ErrValidation)
)
