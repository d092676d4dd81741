package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/platform/httpx"
)

// Product is the authoritative stock record. Stock never goes below zero;
// it is mutated only by sale creation and explicit restock.
type Product struct {
	ID           int64           `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Cost         decimal.Decimal `json:"cost"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	ReorderLevel int             `json:"reorder_level"`
	VATRate      decimal.Decimal `json:"vat_rate"`
	Barcode      *string         `json:"barcode,omitempty"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ErrInsufficientStock rejects a decrement that would drive stock negative.
var ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", httpx.ErrUnprocessable)

// InsufficientStockError names the product and quantities involved.
type InsufficientStockError struct {
	Product   string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.Product, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
