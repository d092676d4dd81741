package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukapos/dukapos/internal/shared"
)

// Repository persists products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, sku, name, cost, price, stock, reorder_level, vat_rate, barcode, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Cost, &p.Price, &p.Stock, &p.ReorderLevel, &p.VATRate, &p.Barcode, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// Get fetches a product by id.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

// Restock atomically increments stock for a product.
func (r *Repository) Restock(ctx context.Context, id int64, qty int) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1 RETURNING `+productColumns, id, qty))
}

// ListLowStock returns active products at or below their reorder level.
func (r *Repository) ListLowStock(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE is_active AND stock <= reorder_level ORDER BY stock ASC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetForSaleTx locks a product row inside an open sale transaction. The row
// lock linearizes concurrent decrements of the same product.
func GetForSaleTx(ctx context.Context, tx pgx.Tx, productID int64) (Product, error) {
	return scanProduct(tx.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 AND is_active FOR UPDATE`, productID))
}

// DecrementStockTx conditionally decrements stock inside an open transaction.
// The stock >= qty guard fails the update instead of letting stock go
// negative; two concurrent sales for the last unit cannot both pass it.
func DecrementStockTx(ctx context.Context, tx pgx.Tx, productID int64, qty int) error {
	tag, err := tx.Exec(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND stock >= $2`, productID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientStock
	}
	return nil
}
