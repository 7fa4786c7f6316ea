package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryCatalog struct {
	products   map[int64]Product
	categories map[int64]Category
	nextID     int64
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{
		products:   make(map[int64]Product),
		categories: make(map[int64]Category),
		nextID:     1,
	}
}

func (m *memoryCatalog) GetProduct(_ context.Context, id int64) (*Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *memoryCatalog) ListProducts(_ context.Context, filter ProductFilter) ([]Product, int, error) {
	var out []Product
	for _, p := range m.products {
		if filter.ActiveOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memoryCatalog) CreateProduct(_ context.Context, p Product) (int64, error) {
	p.ID = m.nextID
	m.nextID++
	p.IsActive = true
	m.products[p.ID] = p
	return p.ID, nil
}

func (m *memoryCatalog) UpdateProduct(_ context.Context, p Product) error {
	if _, ok := m.products[p.ID]; !ok {
		return ErrNotFound
	}
	m.products[p.ID] = p
	return nil
}

func (m *memoryCatalog) DeactivateProduct(_ context.Context, id int64) error {
	p, ok := m.products[id]
	if !ok {
		return ErrNotFound
	}
	p.IsActive = false
	m.products[id] = p
	return nil
}

func (m *memoryCatalog) AdjustStock(_ context.Context, productID, delta int64) (int64, error) {
	p, ok := m.products[productID]
	if !ok {
		return 0, ErrNotFound
	}
	next := p.Stock + delta
	if next < 0 {
		return 0, &StockError{ProductID: productID, Available: p.Stock, Requested: -delta}
	}
	p.Stock = next
	m.products[productID] = p
	return next, nil
}

func (m *memoryCatalog) GetCategory(_ context.Context, id int64) (*Category, error) {
	c, ok := m.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *memoryCatalog) ListCategories(_ context.Context) ([]Category, error) {
	var out []Category
	for _, c := range m.categories {
		out = append(out, c)
	}
	return out, nil
}

func (m *memoryCatalog) CreateCategory(_ context.Context, c Category) (int64, error) {
	c.ID = m.nextID
	m.nextID++
	m.categories[c.ID] = c
	return c.ID, nil
}

func (m *memoryCatalog) UpdateCategory(_ context.Context, c Category) error {
	if _, ok := m.categories[c.ID]; !ok {
		return ErrNotFound
	}
	m.categories[c.ID] = c
	return nil
}

func (m *memoryCatalog) DeleteCategory(_ context.Context, id int64) error {
	delete(m.categories, id)
	return nil
}

func TestCreateProductValidation(t *testing.T) {
	svc := NewService(newMemoryCatalog())
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, Product{Name: "  ", Price: decimal.NewFromInt(10)})
	require.Error(t, err)

	_, err = svc.CreateProduct(ctx, Product{Name: "Masala Chips", Price: decimal.NewFromInt(-1)})
	require.Error(t, err)

	_, err = svc.CreateProduct(ctx, Product{Name: "Masala Chips", Price: decimal.NewFromInt(10), Stock: -5})
	require.Error(t, err)

	p, err := svc.CreateProduct(ctx, Product{Name: "Masala Chips", Price: decimal.NewFromInt(10), Stock: 40})
	require.NoError(t, err)
	require.NotZero(t, p.ID)
	require.True(t, p.IsActive)
}

func TestBrowseHidesInactiveProducts(t *testing.T) {
	repo := newMemoryCatalog()
	svc := NewService(repo)
	ctx := context.Background()

	live, err := svc.CreateProduct(ctx, Product{Name: "Sev", Price: decimal.NewFromInt(15)})
	require.NoError(t, err)
	hidden, err := svc.CreateProduct(ctx, Product{Name: "Old Mix", Price: decimal.NewFromInt(12)})
	require.NoError(t, err)
	require.NoError(t, svc.DeactivateProduct(ctx, hidden.ID))

	visible, total, err := svc.Browse(ctx, ProductFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, live.ID, visible[0].ID)

	all, total, err := svc.ListAll(ctx, ProductFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, all, 2)
}

func TestAdjustStockRejectsDecrementBelowZero(t *testing.T) {
	repo := newMemoryCatalog()
	svc := NewService(repo)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, Product{Name: "Banana Chips", Price: decimal.NewFromInt(20), Stock: 8})
	require.NoError(t, err)

	_, err = svc.AdjustStock(ctx, p.ID, 0)
	require.Error(t, err)

	remaining, err := svc.AdjustStock(ctx, p.ID, -5)
	require.NoError(t, err)
	require.Equal(t, int64(3), remaining)

	_, err = svc.AdjustStock(ctx, p.ID, -4)
	require.ErrorIs(t, err, ErrStockExhausted)
	var stockErr *StockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(3), stockErr.Available)

	got, err := svc.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), got.Stock)
}

func TestCreateCategorySlug(t *testing.T) {
	svc := NewService(newMemoryCatalog())
	ctx := context.Background()

	c, err := svc.CreateCategory(ctx, Category{Name: "  Fried Snacks & Mixes  "})
	require.NoError(t, err)
	require.Equal(t, "Fried Snacks & Mixes", c.Name)
	require.Equal(t, "fried-snacks--mixes", c.Slug)

	custom, err := svc.CreateCategory(ctx, Category{Name: "Sweets", Slug: "mithai"})
	require.NoError(t, err)
	require.Equal(t, "mithai", custom.Slug)

	_, err = svc.CreateCategory(ctx, Category{Name: "   "})
	require.Error(t, err)
}
