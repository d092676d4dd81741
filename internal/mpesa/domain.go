package mpesa

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/platform/httpx"
)

// Status enumerates payment push states. pending is the only non-terminal
// state; a transaction finalizes exactly once.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Transaction records a single STK push and its outcome.
type Transaction struct {
	ID                int64           `json:"id"`
	SaleID            int64           `json:"sale_id"`
	CheckoutRequestID string          `json:"checkout_request_id"`
	MerchantRequestID *string         `json:"merchant_request_id,omitempty"`
	Phone             string          `json:"phone"`
	Amount            decimal.Decimal `json:"amount"`
	Status            Status          `json:"status"`
	MpesaReceipt      *string         `json:"mpesa_receipt,omitempty"`
	ResultCode        *int            `json:"result_code,omitempty"`
	ResultDesc        *string         `json:"result_desc,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

var (
	// ErrAlreadyFinalized signals a reconcile attempt against a transaction
	// that already reached a terminal state. The stored outcome is kept.
	ErrAlreadyFinalized = fmt.Errorf("%w: transaction already finalized", httpx.ErrUnprocessable)
	// ErrSaleNotPayable signals an STK push request for a sale that is not
	// an M-Pesa sale awaiting payment.
	ErrSaleNotPayable = fmt.Errorf("%w: sale is not awaiting M-Pesa payment", httpx.ErrUnprocessable)
	// ErrPushPending signals a second push for a sale whose first push has
	// not finalized yet.
	ErrPushPending = fmt.Errorf("%w: a payment push is already pending for this sale", httpx.ErrDuplicate)
)

// Daraja result codes with defined meanings. Zero is success; 1032 is a
// user-side cancel. Everything else is treated as failure.
const (
	ResultSuccess   = 0
	ResultCancelled = 1032
)

func statusForResult(code int) Status {
	switch code {
	case ResultSuccess:
		return StatusCompleted
	case ResultCancelled:
		return StatusCancelled
	default:
		return StatusFailed
	}
}
