package catalog

import (
	"context"
	"errors"
	"strings"
)

// Service handles catalog business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// FindByID returns the product or ErrNotFound.
func (s *Service) FindByID(ctx context.Context, id int64) (*Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// Browse lists active products for the storefront.
func (s *Service) Browse(ctx context.Context, filter ProductFilter) ([]Product, int, error) {
	filter.ActiveOnly = true
	return s.repo.ListProducts(ctx, filter)
}

// ListAll lists products for the admin console, inactive included.
func (s *Service) ListAll(ctx context.Context, filter ProductFilter) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, filter)
}

// CreateProduct validates and inserts a product.
func (s *Service) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, errors.New("catalog: product name is required")
	}
	if p.Price.IsNegative() {
		return nil, errors.New("catalog: price must not be negative")
	}
	if p.Stock < 0 {
		return nil, errors.New("catalog: stock must not be negative")
	}
	id, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.repo.GetProduct(ctx, id)
}

// UpdateProduct applies product updates.
func (s *Service) UpdateProduct(ctx context.Context, p Product) (*Product, error) {
	if p.Price.IsNegative() {
		return nil, errors.New("catalog: price must not be negative")
	}
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	return s.repo.GetProduct(ctx, p.ID)
}

// DeactivateProduct hides a product from the storefront. Products referenced
// by ledger entries are never deleted.
func (s *Service) DeactivateProduct(ctx context.Context, id int64) error {
	return s.repo.DeactivateProduct(ctx, id)
}

// AdjustStock applies a warehouse-tier stock delta. Restocks are positive,
// issues negative; a decrement below zero fails with a StockError.
func (s *Service) AdjustStock(ctx context.Context, productID, delta int64) (int64, error) {
	if delta == 0 {
		return 0, errors.New("catalog: zero stock adjustment")
	}
	return s.repo.AdjustStock(ctx, productID, delta)
}

// Categories returns all categories.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

// CreateCategory validates and inserts a category.
func (s *Service) CreateCategory(ctx context.Context, c Category) (*Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, errors.New("catalog: category name is required")
	}
	if c.Slug == "" {
		c.Slug = slugify(c.Name)
	}
	id, err := s.repo.CreateCategory(ctx, c)
	if err != nil {
		return nil, err
	}
	return s.repo.GetCategory(ctx, id)
}

// UpdateCategory applies category updates.
func (s *Service) UpdateCategory(ctx context.Context, c Category) (*Category, error) {
	if c.Slug == "" {
		c.Slug = slugify(c.Name)
	}
	if err := s.repo.UpdateCategory(ctx, c); err != nil {
		return nil, err
	}
	return s.repo.GetCategory(ctx, c.ID)
}

// DeleteCategory removes a category.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.repo.DeleteCategory(ctx, id)
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		default:
			return -1
		}
	}, slug)
	return strings.Trim(slug, "-")
}
