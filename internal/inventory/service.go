package inventory

import (
	"context"
	"fmt"

	"github.com/dukapos/dukapos/internal/platform/httpx"
	"github.com/dukapos/dukapos/internal/shared"
)

// ErrInvalidQuantity rejects non-positive restock quantities.
var ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", httpx.ErrValidation)

// RepositoryPort abstracts the repository for the service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Product, error)
	Restock(ctx context.Context, id int64, qty int) (Product, error)
	ListLowStock(ctx context.Context) ([]Product, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates explicit stock operations. Sale-driven decrements run
// inside the sales transaction and do not pass through here.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Restock adds received stock to a product.
func (s *Service) Restock(ctx context.Context, actorID int64, productID int64, qty int, ip string) (Product, error) {
	if qty <= 0 {
		return Product{}, ErrInvalidQuantity
	}
	if _, err := s.repo.Get(ctx, productID); err != nil {
		return Product{}, err
	}
	product, err := s.repo.Restock(ctx, productID, qty)
	if err != nil {
		return Product{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  &actorID,
			Action:   "restock",
			Entity:   "product",
			EntityID: &product.ID,
			Details:  fmt.Sprintf("Restocked %s by %d (now %d)", product.SKU, qty, product.Stock),
			IP:       ip,
		}); err != nil {
			return Product{}, fmt.Errorf("inventory: audit restock: %w", err)
		}
	}
	return product, nil
}

// LowStock lists products at or below their reorder level.
func (s *Service) LowStock(ctx context.Context) ([]Product, error) {
	return s.repo.ListLowStock(ctx)
}

// Get resolves a single product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	return s.repo.Get(ctx, id)
}
