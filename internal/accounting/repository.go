package accounting

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukapos/dukapos/internal/platform/db"
)

// Repository persists journal entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertEntries appends a journal group on an open transaction. Posting
// sources (sales, credit, mpesa) call this from their own tx so the journal
// and the triggering write commit or roll back together.
func InsertEntries(ctx context.Context, tx pgx.Tx, date time.Time, userID int64, entries []Entry) error {
	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO journal_entries (date, account, debit, credit, description, user_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
			date, e.Account, e.Debit, e.Credit, e.Description, userID); err != nil {
			return err
		}
	}
	return nil
}

// WithTx runs fn inside a transaction on this repository's pool.
func (r *Repository) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, fn)
}

// InsertGroup appends a journal group in a transaction of its own, for
// postings that have no surrounding write to share one with.
func (r *Repository) InsertGroup(ctx context.Context, date time.Time, userID int64, entries []Entry) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		return InsertEntries(ctx, tx, date, userID, entries)
	})
}

// ListFilter narrows journal listings.
type ListFilter struct {
	From    *time.Time
	To      *time.Time
	Account string
	Limit   int
}

// List returns journal entries ordered by date then id.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	if r == nil {
		return nil, errors.New("accounting repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, date, account, debit, credit, description, user_id, created_at
FROM journal_entries
WHERE ($1::timestamptz IS NULL OR date >= $1)
  AND ($2::timestamptz IS NULL OR date <= $2)
  AND ($3 = '' OR account = $3)
ORDER BY date ASC, id ASC
LIMIT $4`, filter.From, filter.To, filter.Account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Date, &e.Account, &e.Debit, &e.Credit, &e.Description, &e.UserID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DailySums returns per-day debit and credit totals, used by the nightly
// integrity scan.
func (r *Repository) DailySums(ctx context.Context, since time.Time) (map[string][2]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT date::date::text, COALESCE(SUM(debit), 0)::text, COALESCE(SUM(credit), 0)::text
FROM journal_entries WHERE date >= $1 GROUP BY 1 ORDER BY 1`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sums := make(map[string][2]string)
	for rows.Next() {
		var day, debit, credit string
		if err := rows.Scan(&day, &debit, &credit); err != nil {
			return nil, err
		}
		sums[day] = [2]string{debit, credit}
	}
	return sums, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
