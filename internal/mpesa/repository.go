package mpesa

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/accounting"
	"github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/internal/shared"
)

// SaleInfo is the slice of a sale the reconciler needs: identity for the
// journal description, cashier for attribution, and the amounts to post.
type SaleInfo struct {
	ID            int64
	ReceiptNumber string
	CashierID     int64
	Subtotal      decimal.Decimal
	VAT           decimal.Decimal
	Total         decimal.Decimal
	PaymentMethod string
	PaymentStatus string
}

// TxRepository exposes the writes of a reconciliation: the transaction
// finalize, the sale status flip, and the journal group commit together.
type TxRepository interface {
	GetByCheckoutIDForUpdate(ctx context.Context, checkoutRequestID string) (Transaction, error)
	GetSaleForUpdate(ctx context.Context, saleID int64) (SaleInfo, error)
	HasPendingForSale(ctx context.Context, saleID int64) (bool, error)
	Insert(ctx context.Context, txn Transaction) (int64, error)
	Finalize(ctx context.Context, id int64, status Status, resultCode int, resultDesc string, receipt *string) error
	SetSalePaymentStatus(ctx context.Context, saleID int64, status string) error
	InsertJournal(ctx context.Context, date time.Time, userID int64, entries []accounting.Entry) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetByCheckoutID(ctx context.Context, checkoutRequestID string) (Transaction, error)
	ListStalePending(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Repository persists M-Pesa transactions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("mpesa repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const txnColumns = `id, sale_id, checkout_request_id, merchant_request_id, phone, amount, status, mpesa_receipt, result_code, result_desc, created_at, updated_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.SaleID, &t.CheckoutRequestID, &t.MerchantRequestID, &t.Phone, &t.Amount, &t.Status, &t.MpesaReceipt, &t.ResultCode, &t.ResultDesc, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, shared.ErrNotFound
		}
		return Transaction{}, err
	}
	return t, nil
}

// GetByCheckoutID fetches a transaction by its gateway checkout id.
func (r *Repository) GetByCheckoutID(ctx context.Context, checkoutRequestID string) (Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx,
		`SELECT `+txnColumns+` FROM mpesa_transactions WHERE checkout_request_id = $1`, checkoutRequestID))
}

// ListStalePending returns checkout ids of pending pushes created before the
// cutoff, oldest first.
func (r *Repository) ListStalePending(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT checkout_request_id FROM mpesa_transactions WHERE status = 'pending' AND created_at < $1 ORDER BY created_at`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *txRepository) GetByCheckoutIDForUpdate(ctx context.Context, checkoutRequestID string) (Transaction, error) {
	return scanTransaction(t.tx.QueryRow(ctx,
		`SELECT `+txnColumns+` FROM mpesa_transactions WHERE checkout_request_id = $1 FOR UPDATE`, checkoutRequestID))
}

func (t *txRepository) GetSaleForUpdate(ctx context.Context, saleID int64) (SaleInfo, error) {
	var s SaleInfo
	err := t.tx.QueryRow(ctx,
		`SELECT id, receipt_number, cashier_id, subtotal, vat, total, payment_method, payment_status FROM sales WHERE id = $1 FOR UPDATE`, saleID).
		Scan(&s.ID, &s.ReceiptNumber, &s.CashierID, &s.Subtotal, &s.VAT, &s.Total, &s.PaymentMethod, &s.PaymentStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SaleInfo{}, shared.ErrNotFound
		}
		return SaleInfo{}, err
	}
	return s, nil
}

func (t *txRepository) HasPendingForSale(ctx context.Context, saleID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM mpesa_transactions WHERE sale_id = $1 AND status = 'pending')`, saleID).Scan(&exists)
	return exists, err
}

func (t *txRepository) Insert(ctx context.Context, txn Transaction) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO mpesa_transactions (sale_id, checkout_request_id, merchant_request_id, phone, amount, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING id`,
		txn.SaleID, txn.CheckoutRequestID, txn.MerchantRequestID, txn.Phone, txn.Amount, txn.Status).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrPushPending
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepository) Finalize(ctx context.Context, id int64, status Status, resultCode int, resultDesc string, receipt *string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE mpesa_transactions SET status = $2, result_code = $3, result_desc = $4, mpesa_receipt = $5, updated_at = NOW() WHERE id = $1`,
		id, status, resultCode, resultDesc, receipt)
	return err
}

func (t *txRepository) SetSalePaymentStatus(ctx context.Context, saleID int64, status string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE sales SET payment_status = $2, updated_at = NOW() WHERE id = $1`, saleID, status)
	return err
}

func (t *txRepository) InsertJournal(ctx context.Context, date time.Time, userID int64, entries []accounting.Entry) error {
	return accounting.InsertEntries(ctx, t.tx, date, userID, entries)
}

var _ RepositoryPort = (*Repository)(nil)
