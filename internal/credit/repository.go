package credit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/accounting"
	"github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/internal/shared"
)

// TxRepository exposes the writes of a payment recording: the credit update,
// the sale status flip on full settlement, and the journal group commit
// together.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (CreditSale, error)
	UpdatePayment(ctx context.Context, id int64, paid, balance decimal.Decimal, status Status) error
	MarkSaleCompleted(ctx context.Context, saleID int64) error
	InsertJournal(ctx context.Context, date time.Time, userID int64, entries []accounting.Entry) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (CreditSale, error)
	List(ctx context.Context, status Status) ([]CreditSale, error)
}

// Repository persists credit sales in PostgreSQL.
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
		return errors.New("credit repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const creditColumns = `id, sale_id, customer_name, customer_phone, amount, paid, balance, due_date, status, created_at, updated_at`

func scanCreditSale(row pgx.Row) (CreditSale, error) {
	var cs CreditSale
	err := row.Scan(&cs.ID, &cs.SaleID, &cs.CustomerName, &cs.CustomerPhone, &cs.Amount, &cs.Paid, &cs.Balance, &cs.DueDate, &cs.Status, &cs.CreatedAt, &cs.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreditSale{}, shared.ErrNotFound
		}
		return CreditSale{}, err
	}
	return cs, nil
}

// Get fetches a credit sale by id.
func (r *Repository) Get(ctx context.Context, id int64) (CreditSale, error) {
	return scanCreditSale(r.pool.QueryRow(ctx, `SELECT `+creditColumns+` FROM credit_sales WHERE id = $1`, id))
}

// List returns credit sales, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status Status) ([]CreditSale, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+creditColumns+` FROM credit_sales WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sales := []CreditSale{}
	for rows.Next() {
		cs, err := scanCreditSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, cs)
	}
	return sales, rows.Err()
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (CreditSale, error) {
	return scanCreditSale(t.tx.QueryRow(ctx,
		`SELECT `+creditColumns+` FROM credit_sales WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) UpdatePayment(ctx context.Context, id int64, paid, balance decimal.Decimal, status Status) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE credit_sales SET paid = $2, balance = $3, status = $4, updated_at = NOW() WHERE id = $1`,
		id, paid, balance, status)
	return err
}

func (t *txRepository) MarkSaleCompleted(ctx context.Context, saleID int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE sales SET payment_status = 'completed', updated_at = NOW() WHERE id = $1`, saleID)
	return err
}

func (t *txRepository) InsertJournal(ctx context.Context, date time.Time, userID int64, entries []accounting.Entry) error {
	return accounting.InsertEntries(ctx, t.tx, date, userID, entries)
}

var _ RepositoryPort = (*Repository)(nil)
