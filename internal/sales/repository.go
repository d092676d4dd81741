package sales

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukapos/dukapos/internal/accounting"
	"github.com/dukapos/dukapos/internal/inventory"
	"github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/internal/shared"
)

// TxRepository exposes the writes that make up the atomic sale unit: header,
// items, stock decrements, optional credit row, and journal lines all commit
// or roll back together.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, productID int64) (inventory.Product, error)
	DecrementStock(ctx context.Context, productID int64, qty int) error
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertItems(ctx context.Context, saleID int64, items []SaleItem) error
	InsertCreditSale(ctx context.Context, saleID int64, sale Sale, dueDate *time.Time) error
	InsertJournal(ctx context.Context, date time.Time, userID int64, entries []accounting.Entry) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Sale, error)
	GetByReceipt(ctx context.Context, receiptNumber string) (Sale, error)
}

// Repository persists sales in PostgreSQL.
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
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const saleColumns = `id, receipt_number, cashier_id, subtotal, vat, total, payment_method, payment_status, customer_name, customer_phone, notes, created_at`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.ReceiptNumber, &s.CashierID, &s.Subtotal, &s.VAT, &s.Total, &s.PaymentMethod, &s.PaymentStatus, &s.CustomerName, &s.CustomerPhone, &s.Notes, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, shared.ErrNotFound
		}
		return Sale{}, err
	}
	return s, nil
}

func (r *Repository) loadItems(ctx context.Context, sale *Sale) error {
	rows, err := r.pool.Query(ctx,
		`SELECT id, sale_id, product_id, quantity, price, total FROM sale_items WHERE sale_id = $1 ORDER BY id`, sale.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var item SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity, &item.Price, &item.Total); err != nil {
			return err
		}
		sale.Items = append(sale.Items, item)
	}
	return rows.Err()
}

// Get fetches a sale with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		return Sale{}, err
	}
	if err := r.loadItems(ctx, &sale); err != nil {
		return Sale{}, err
	}
	return sale, nil
}

// GetByReceipt fetches a sale by its receipt number.
func (r *Repository) GetByReceipt(ctx context.Context, receiptNumber string) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE receipt_number = $1`, receiptNumber))
	if err != nil {
		return Sale{}, err
	}
	if err := r.loadItems(ctx, &sale); err != nil {
		return Sale{}, err
	}
	return sale, nil
}

func (t *txRepository) GetProductForUpdate(ctx context.Context, productID int64) (inventory.Product, error) {
	return inventory.GetForSaleTx(ctx, t.tx, productID)
}

func (t *txRepository) DecrementStock(ctx context.Context, productID int64, qty int) error {
	return inventory.DecrementStockTx(ctx, t.tx, productID, qty)
}

func (t *txRepository) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO sales (receipt_number, cashier_id, subtotal, vat, total, payment_method, payment_status, customer_name, customer_phone, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW()) RETURNING id`,
		sale.ReceiptNumber, sale.CashierID, sale.Subtotal, sale.VAT, sale.Total, sale.PaymentMethod, sale.PaymentStatus, sale.CustomerName, sale.CustomerPhone, sale.Notes).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, errReceiptCollision
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepository) InsertItems(ctx context.Context, saleID int64, items []SaleItem) error {
	for _, item := range items {
		if _, err := t.tx.Exec(ctx,
			`INSERT INTO sale_items (sale_id, product_id, quantity, price, total) VALUES ($1, $2, $3, $4, $5)`,
			saleID, item.ProductID, item.Quantity, item.Price, item.Total); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) InsertCreditSale(ctx context.Context, saleID int64, sale Sale, dueDate *time.Time) error {
	customer := ""
	if sale.CustomerName != nil {
		customer = *sale.CustomerName
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO credit_sales (sale_id, customer_name, customer_phone, amount, paid, balance, due_date, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, 0, $4, $5, 'pending', NOW(), NOW())`,
		saleID, customer, sale.CustomerPhone, sale.Total, dueDate)
	return err
}

func (t *txRepository) InsertJournal(ctx context.Context, date time.Time, userID int64, entries []accounting.Entry) error {
	return accounting.InsertEntries(ctx, t.tx, date, userID, entries)
}

var _ RepositoryPort = (*Repository)(nil)
