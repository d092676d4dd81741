package sales

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukapos/dukapos/internal/accounting"
	"github.com/dukapos/dukapos/internal/inventory"
	"github.com/dukapos/dukapos/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type creditRow struct {
	saleID  int64
	amount  decimal.Decimal
	dueDate *time.Time
}

type journalGroup struct {
	date    time.Time
	userID  int64
	entries []accounting.Entry
}

type mockRepository struct {
	products   map[int64]inventory.Product
	sales      map[int64]Sale
	receipts   map[string]int64
	creditRows []creditRow
	journal    []journalGroup
	nextSaleID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		products:   make(map[int64]inventory.Product),
		sales:      make(map[int64]Sale),
		receipts:   make(map[string]int64),
		nextSaleID: 1,
	}
}

func (m *mockRepository) snapshot() *mockRepository {
	cp := newMockRepository()
	cp.nextSaleID = m.nextSaleID
	for k, v := range m.products {
		cp.products[k] = v
	}
	for k, v := range m.sales {
		cp.sales[k] = v
	}
	for k, v := range m.receipts {
		cp.receipts[k] = v
	}
	cp.creditRows = append(cp.creditRows, m.creditRows...)
	cp.journal = append(cp.journal, m.journal...)
	return cp
}

func (m *mockRepository) restore(s *mockRepository) {
	m.products = s.products
	m.sales = s.sales
	m.receipts = s.receipts
	m.creditRows = s.creditRows
	m.journal = s.journal
	m.nextSaleID = s.nextSaleID
}

// WithTx rolls back every staged write when fn fails, matching the
// all-or-nothing behavior of the real transaction.
func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := m.snapshot()
	if err := fn(ctx, &mockTxRepo{mock: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (Sale, error) {
	s, ok := m.sales[id]
	if !ok {
		return Sale{}, shared.ErrNotFound
	}
	return s, nil
}

func (m *mockRepository) GetByReceipt(ctx context.Context, receipt string) (Sale, error) {
	id, ok := m.receipts[receipt]
	if !ok {
		return Sale{}, shared.ErrNotFound
	}
	return m.sales[id], nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (tx *mockTxRepo) GetProductForUpdate(ctx context.Context, productID int64) (inventory.Product, error) {
	p, ok := tx.mock.products[productID]
	if !ok || !p.IsActive {
		return inventory.Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (tx *mockTxRepo) DecrementStock(ctx context.Context, productID int64, qty int) error {
	p := tx.mock.products[productID]
	if p.Stock < qty {
		return inventory.ErrInsufficientStock
	}
	p.Stock -= qty
	tx.mock.products[productID] = p
	return nil
}

func (tx *mockTxRepo) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	if _, exists := tx.mock.receipts[sale.ReceiptNumber]; exists {
		return 0, errReceiptCollision
	}
	id := tx.mock.nextSaleID
	tx.mock.nextSaleID++
	sale.ID = id
	tx.mock.sales[id] = sale
	tx.mock.receipts[sale.ReceiptNumber] = id
	return id, nil
}

func (tx *mockTxRepo) InsertItems(ctx context.Context, saleID int64, items []SaleItem) error {
	s := tx.mock.sales[saleID]
	s.Items = items
	tx.mock.sales[saleID] = s
	return nil
}

func (tx *mockTxRepo) InsertCreditSale(ctx context.Context, saleID int64, sale Sale, dueDate *time.Time) error {
	tx.mock.creditRows = append(tx.mock.creditRows, creditRow{saleID: saleID, amount: sale.Total, dueDate: dueDate})
	return nil
}

func (tx *mockTxRepo) InsertJournal(ctx context.Context, date time.Time, userID int64, entries []accounting.Entry) error {
	tx.mock.journal = append(tx.mock.journal, journalGroup{date: date, userID: userID, entries: entries})
	return nil
}

// lockingRepository serializes transactions the way the row lock taken by
// SELECT ... FOR UPDATE does for sales touching the same product.
type lockingRepository struct {
	*mockRepository
	mu sync.Mutex
}

func (m *lockingRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mockRepository.WithTx(ctx, fn)
}

type mockAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
	err  error
}

func (m *mockAudit) Record(ctx context.Context, log shared.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedProducts(repo *mockRepository) {
	repo.products[1] = inventory.Product{
		ID: 1, SKU: "SODA-500", Name: "Soda 500ml",
		Price: money("100.00"), VATRate: money("16"), Stock: 10, IsActive: true,
	}
	repo.products[2] = inventory.Product{
		ID: 2, SKU: "BREAD-STD", Name: "Bread",
		Price: money("50.00"), VATRate: money("16"), Stock: 5, IsActive: true,
	}
}

func newTestService(repo *mockRepository, audit *mockAudit) *Service {
	svc := NewService(repo, audit)
	svc.WithNow(func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) })
	return svc
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateSaleTotals(t *testing.T) {
	repo := newMockRepository()
	seedProducts(repo)
	svc := newTestService(repo, &mockAudit{})

	sale, err := svc.CreateSale(context.Background(), CreateSaleInput{
		CashierID: 7,
		Items: []SaleItemInput{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		},
		PaymentMethod: PaymentCash,
	})
	require.NoError(t, err)

	assert.True(t, sale.Subtotal.Equal(money("250.00")), "subtotal %s", sale.Subtotal)
	assert.True(t, sale.VAT.Equal(money("40.00")), "vat %s", sale.VAT)
	assert.True(t, sale.Total.Equal(money("290.00")), "total %s", sale.Total)
	assert.Equal(t, PaymentStatusCompleted, sale.PaymentStatus)
	require.Len(t, sale.Items, 2)
	assert.True(t, sale.Items[0].Total.Equal(money("200.00")))

	assert.Equal(t, 8, repo.products[1].Stock)
	assert.Equal(t, 4, repo.products[2].Stock)

	require.Len(t, repo.journal, 1)
	group := repo.journal[0]
	assert.Equal(t, int64(7), group.userID)
	require.Len(t, group.entries, 3)
	assert.Equal(t, accounting.AccountCash, group.entries[0].Account)
	assert.True(t, group.entries[0].Debit.Equal(money("290.00")))
	assert.Equal(t, accounting.AccountSalesRevenue, group.entries[1].Account)
	assert.True(t, group.entries[1].Credit.Equal(money("250.00")))
	assert.Equal(t, accounting.AccountVATPayable, group.entries[2].Account)
	assert.True(t, group.entries[2].Credit.Equal(money("40.00")))
	require.NoError(t, accounting.Balanced(group.entries))
}

func TestCreateSaleInsufficientStockAbortsEverything(t *testing.T) {
	repo := newMockRepository()
	seedProducts(repo)
	svc := newTestService(repo, &mockAudit{})

	_, err := svc.CreateSale(context.Background(), CreateSaleInput{
		CashierID: 7,
		Items: []SaleItemInput{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 6}, // only 5 in stock
		},
		PaymentMethod: PaymentCash,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, inventory.ErrInsufficientStock))

	var detail *inventory.InsufficientStockError
	require.True(t, errors.As(err, &detail))
	assert.Equal(t, "Bread", detail.Product)
	assert.Equal(t, 6, detail.Requested)
	assert.Equal(t, 5, detail.Available)

	// Nothing committed: no sale, no journal, stock untouched on every line.
	assert.Empty(t, repo.sales)
	assert.Empty(t, repo.journal)
	assert.Equal(t, 10, repo.products[1].Stock)
	assert.Equal(t, 5, repo.products[2].Stock)
}

func TestConcurrentSalesLastUnitSellsOnce(t *testing.T) {
	repo := newMockRepository()
	repo.products[1] = inventory.Product{
		ID: 1, SKU: "SODA-500", Name: "Soda 500ml",
		Price: money("100.00"), VATRate: money("16"), Stock: 1, IsActive: true,
	}
	locked := &lockingRepository{mockRepository: repo}
	svc := NewService(locked, &mockAudit{})

	input := CreateSaleInput{
		CashierID:     7,
		Items:         []SaleItemInput{{ProductID: 1, Quantity: 1}},
		PaymentMethod: PaymentCash,
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateSale(context.Background(), input)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes, failures := 0, 0
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		require.True(t, errors.Is(err, inventory.ErrInsufficientStock), "unexpected error: %v", err)
		failures++
	}
	assert.Equal(t, 1, successes, "exactly one sale wins the last unit")
	assert.Equal(t, 1, failures)
	assert.Equal(t, 0, repo.products[1].Stock)
	assert.Len(t, repo.sales, 1)
	assert.Len(t, repo.journal, 1)
}

func TestCreateSaleValidation(t *testing.T) {
	repo := newMockRepository()
	seedProducts(repo)
	svc := newTestService(repo, &mockAudit{})
	ctx := context.Background()

	_, err := svc.CreateSale(ctx, CreateSaleInput{CashierID: 7, PaymentMethod: PaymentCash})
	assert.True(t, errors.Is(err, ErrEmptySale))

	_, err = svc.CreateSale(ctx, CreateSaleInput{
		CashierID:     7,
		Items:         []SaleItemInput{{ProductID: 1, Quantity: 1}},
		PaymentMethod: PaymentMethod("Cheque"),
	})
	assert.True(t, errors.Is(err, ErrInvalidPaymentMethod))

	_, err = svc.CreateSale(ctx, CreateSaleInput{
		CashierID:     7,
		Items:         []SaleItemInput{{ProductID: 999, Quantity: 1}},
		PaymentMethod: PaymentCash,
	})
	assert.True(t, errors.Is(err, ErrUnknownProduct))
}

func TestCreateSaleCreditCreatesReceivable(t *testing.T) {
	repo := newMockRepository()
	seedProducts(repo)
	svc := newTestService(repo, &mockAudit{})

	customer := "Wanjiku"
	due := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	sale, err := svc.CreateSale(context.Background(), CreateSaleInput{
		CashierID:     7,
		Items:         []SaleItemInput{{ProductID: 1, Quantity: 1}},
		PaymentMethod: PaymentCredit,
		CustomerName:  &customer,
		DueDate:       &due,
	})
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPending, sale.PaymentStatus)

	require.Len(t, repo.creditRows, 1)
	assert.Equal(t, sale.ID, repo.creditRows[0].saleID)
	assert.True(t, repo.creditRows[0].amount.Equal(money("116.00")))

	require.Len(t, repo.journal, 1)
	assert.Equal(t, accounting.AccountReceivable, repo.journal[0].entries[0].Account)
	assert.True(t, repo.journal[0].entries[0].Debit.Equal(money("116.00")))
}

func TestCreateSaleMpesaDefersRevenue(t *testing.T) {
	repo := newMockRepository()
	seedProducts(repo)
	svc := newTestService(repo, &mockAudit{})

	sale, err := svc.CreateSale(context.Background(), CreateSaleInput{
		CashierID:     7,
		Items:         []SaleItemInput{{ProductID: 1, Quantity: 1}},
		PaymentMethod: PaymentMpesa,
	})
	require.NoError(t, err)

	assert.Equal(t, PaymentStatusPending, sale.PaymentStatus)
	assert.Empty(t, repo.journal, "revenue must wait for reconciliation")
	assert.Equal(t, 9, repo.products[1].Stock, "stock is reserved at creation")
}

func TestCreateSaleReceiptCollisionRetries(t *testing.T) {
	repo := newMockRepository()
	seedProducts(repo)
	svc := newTestService(repo, &mockAudit{})

	seq := 0
	svc.WithReceiptGenerator(func(at time.Time) string {
		seq++
		return fmt.Sprintf("RCP-TEST-%d", seq)
	})
	repo.receipts["RCP-TEST-1"] = 99 // force one collision

	sale, err := svc.CreateSale(context.Background(), CreateSaleInput{
		CashierID:     7,
		Items:         []SaleItemInput{{ProductID: 1, Quantity: 1}},
		PaymentMethod: PaymentCash,
	})
	require.NoError(t, err)
	assert.Equal(t, "RCP-TEST-2", sale.ReceiptNumber)
}

func TestCreateSaleAuditFailureSurfaces(t *testing.T) {
	repo := newMockRepository()
	seedProducts(repo)
	svc := newTestService(repo, &mockAudit{err: errors.New("audit store down")})

	_, err := svc.CreateSale(context.Background(), CreateSaleInput{
		CashierID:     7,
		Items:         []SaleItemInput{{ProductID: 1, Quantity: 1}},
		PaymentMethod: PaymentCash,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit")
}
