package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/platform/httpx"
)

// PaymentMethod enumerates how a sale is settled.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "Cash"
	PaymentMpesa        PaymentMethod = "M-Pesa"
	PaymentCard         PaymentMethod = "Card"
	PaymentCredit       PaymentMethod = "Credit"
	PaymentBankTransfer PaymentMethod = "Bank Transfer"
)

// Valid reports whether the method is one of the known values.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentMpesa, PaymentCard, PaymentCredit, PaymentBankTransfer:
		return true
	}
	return false
}

// PaymentStatus enumerates settlement states of a sale.
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Sale is a completed checkout with its line items. It is immutable after
// creation except for payment-status transitions driven by the credit ledger
// and the payment reconciler.
type Sale struct {
	ID            int64           `json:"id"`
	ReceiptNumber string          `json:"receipt_number"`
	CashierID     int64           `json:"cashier_id"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	VAT           decimal.Decimal `json:"vat"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	CustomerName  *string         `json:"customer_name,omitempty"`
	CustomerPhone *string         `json:"customer_phone,omitempty"`
	Notes         *string         `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []SaleItem      `json:"items,omitempty"`
}

// SaleItem snapshots the product price at sale time; later price changes do
// not affect recorded sales.
type SaleItem struct {
	ID        int64           `json:"id"`
	SaleID    int64           `json:"sale_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
}

var (
	// ErrEmptySale rejects a sale without line items.
	ErrEmptySale = fmt.Errorf("%w: sale requires at least one item", httpx.ErrValidation)
	// ErrUnknownProduct rejects a line for a missing or inactive product.
	ErrUnknownProduct = fmt.Errorf("%w: unknown product", httpx.ErrValidation)
	// ErrInvalidPaymentMethod rejects unrecognized payment methods.
	ErrInvalidPaymentMethod = fmt.Errorf("%w: invalid payment method", httpx.ErrValidation)
	// errReceiptCollision triggers a regeneration retry, never surfaces.
	errReceiptCollision = fmt.Errorf("receipt number collision")
)
