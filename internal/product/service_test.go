package product_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/db"
	"github.com/vasiliy-maslov/storefront/internal/db/dbtest"
	"github.com/vasiliy-maslov/storefront/internal/product"
)

type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) Create(ctx context.Context, p *product.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*product.Product), args.Error(1)
}

func (m *MockProductRepository) ListAvailable(ctx context.Context) ([]product.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]product.Product), args.Error(1)
}

func (m *MockProductRepository) Update(ctx context.Context, id uuid.UUID, apply func(p *product.Product) error) (*product.Product, error) {
	args := m.Called(ctx, id, apply)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	p := args.Get(0).(*product.Product)
	if err := apply(p); err != nil {
		return nil, err
	}
	return p, args.Error(1)
}

func (m *MockProductRepository) ToggleAvailability(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*product.Product), args.Error(1)
}

func (m *MockProductRepository) ReadCurrent(ctx context.Context, q db.DBTX, id uuid.UUID) (*product.Product, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*product.Product), args.Error(1)
}

func (m *MockProductRepository) LockForOrder(ctx context.Context, q db.DBTX, ids []uuid.UUID) ([]product.StockRecord, error) {
	args := m.Called(ctx, q, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]product.StockRecord), args.Error(1)
}

func (m *MockProductRepository) AdjustStock(ctx context.Context, q db.DBTX, id uuid.UUID, delta int) (int, error) {
	args := m.Called(ctx, q, id, delta)
	return args.Int(0), args.Error(1)
}

// memoryCache is an in-memory product.Cache.
type memoryCache struct {
	items   map[uuid.UUID]product.Product
	deleted []uuid.UUID
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[uuid.UUID]product.Product)}
}

func (c *memoryCache) Get(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	p, ok := c.items[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (c *memoryCache) Set(ctx context.Context, p *product.Product) error {
	c.items[p.ID] = *p
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, ids ...uuid.UUID) error {
	for _, id := range ids {
		delete(c.items, id)
		c.deleted = append(c.deleted, id)
	}
	return nil
}

func newProduct(stock int) *product.Product {
	return &product.Product{
		ID:          uuid.Must(uuid.NewV4()),
		Name:        "Linen Shirt",
		Price:       decimal.RequireFromString("19.99"),
		Category:    product.CategoryMen,
		SubCategory: product.SubCategoryTopwear,
		Stock:       stock,
		Images:      []string{"shirt-front.jpg"},
		Sizes:       []string{"M", "L"},
		InStock:     stock > 0,
	}
}

func TestProductService_CreateProduct_Success(t *testing.T) {
	mockRepo := new(MockProductRepository)
	svc := product.NewService(mockRepo, nil, &dbtest.Transactor{})

	in := product.CreateInput{
		Name:        "  Linen Shirt ",
		Price:       decimal.RequireFromString("19.99"),
		Category:    product.CategoryMen,
		SubCategory: product.SubCategoryTopwear,
		Stock:       5,
		Images:      []string{"a.jpg"},
		Sizes:       []string{" m", "L", "M"},
	}

	mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(p *product.Product) bool {
		return p.Name == "Linen Shirt" && cmp.Equal(p.Sizes, []string{"M", "L"}) && p.Stock == 5
	})).Return(nil).Once()

	created, err := svc.CreateProduct(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, []string{"M", "L"}, created.Sizes)
	mockRepo.AssertExpectations(t)
}

func TestProductService_CreateProduct_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *product.CreateInput)
	}{
		{name: "unknown size", mutate: func(in *product.CreateInput) { in.Sizes = []string{"XS"} }},
		{name: "negative price", mutate: func(in *product.CreateInput) { in.Price = decimal.NewFromInt(-1) }},
		{name: "negative stock", mutate: func(in *product.CreateInput) { in.Stock = -2 }},
		{name: "bad category", mutate: func(in *product.CreateInput) { in.Category = "Pets" }},
		{name: "no sizes", mutate: func(in *product.CreateInput) { in.Sizes = nil }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := new(MockProductRepository)
			svc := product.NewService(mockRepo, nil, &dbtest.Transactor{})

			in := product.CreateInput{
				Name:        "Linen Shirt",
				Price:       decimal.NewFromInt(10),
				Category:    product.CategoryMen,
				SubCategory: product.SubCategoryTopwear,
				Stock:       1,
				Sizes:       []string{"M"},
			}
			tc.mutate(&in)

			_, err := svc.CreateProduct(context.Background(), in)

			require.ErrorIs(t, err, apperr.ErrInvalidArgument)
			mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestProductService_GetProduct_ReadThroughCache(t *testing.T) {
	mockRepo := new(MockProductRepository)
	cache := newMemoryCache()
	svc := product.NewService(mockRepo, cache, &dbtest.Transactor{})

	p := newProduct(3)
	mockRepo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()

	first, err := svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	second, err := svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)

	require.Empty(t, cmp.Diff(first, second, cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })))
	mockRepo.AssertExpectations(t)
}

func TestProductService_GetProduct_NotFound(t *testing.T) {
	mockRepo := new(MockProductRepository)
	svc := product.NewService(mockRepo, nil, &dbtest.Transactor{})

	id := uuid.Must(uuid.NewV4())
	mockRepo.On("GetByID", mock.Anything, id).Return(nil, product.ErrNotFound).Once()

	_, err := svc.GetProduct(context.Background(), id)

	require.ErrorIs(t, err, product.ErrNotFound)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestProductService_UpdateProduct_AppliesPartialFieldsAndInvalidates(t *testing.T) {
	mockRepo := new(MockProductRepository)
	cache := newMemoryCache()
	svc := product.NewService(mockRepo, cache, &dbtest.Transactor{})

	p := newProduct(3)
	require.NoError(t, cache.Set(context.Background(), p))

	newName := "Oxford Shirt"
	newStock := 0
	mockRepo.On("Update", mock.Anything, p.ID, mock.Anything).Return(p, nil).Once()

	updated, err := svc.UpdateProduct(context.Background(), p.ID, product.UpdateInput{
		Name:  &newName,
		Stock: &newStock,
		Sizes: []string{"xl"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Oxford Shirt", updated.Name)
	assert.Equal(t, 0, updated.Stock)
	assert.Equal(t, []string{"XL"}, updated.Sizes)
	assert.Equal(t, "19.99", updated.Price.StringFixed(2), "untouched fields stay")
	assert.Equal(t, []uuid.UUID{p.ID}, cache.deleted)
	mockRepo.AssertExpectations(t)
}

func TestProductService_ToggleAvailability(t *testing.T) {
	mockRepo := new(MockProductRepository)
	svc := product.NewService(mockRepo, nil, &dbtest.Transactor{})

	p := newProduct(3)
	p.IsDeleted = true
	mockRepo.On("ToggleAvailability", mock.Anything, p.ID).Return(p, nil).Once()

	toggled, err := svc.ToggleAvailability(context.Background(), p.ID)

	require.NoError(t, err)
	assert.True(t, toggled.IsDeleted)
	mockRepo.AssertExpectations(t)
}

func TestProductService_Restock(t *testing.T) {
	t.Run("adds stock inside a transaction", func(t *testing.T) {
		mockRepo := new(MockProductRepository)
		tx := &dbtest.Transactor{}
		svc := product.NewService(mockRepo, nil, tx)

		p := newProduct(7)
		mockRepo.On("AdjustStock", mock.Anything, mock.Anything, p.ID, 4).Return(7, nil).Once()
		mockRepo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()

		got, err := svc.Restock(context.Background(), p.ID, 4)

		require.NoError(t, err)
		assert.Equal(t, 7, got.Stock)
		assert.Equal(t, 1, tx.Calls)
		mockRepo.AssertExpectations(t)
	})

	t.Run("refuses to go below zero", func(t *testing.T) {
		mockRepo := new(MockProductRepository)
		svc := product.NewService(mockRepo, nil, &dbtest.Transactor{})

		id := uuid.Must(uuid.NewV4())
		mockRepo.On("AdjustStock", mock.Anything, mock.Anything, id, -5).
			Return(2, apperr.OutOfStock("product.AdjustStock", "Linen Shirt", 2)).Once()

		_, err := svc.Restock(context.Background(), id, -5)

		require.ErrorIs(t, err, apperr.ErrOutOfStock)
		mockRepo.AssertExpectations(t)
	})

	t.Run("zero delta", func(t *testing.T) {
		svc := product.NewService(new(MockProductRepository), nil, &dbtest.Transactor{})
		_, err := svc.Restock(context.Background(), uuid.Must(uuid.NewV4()), 0)
		require.True(t, errors.Is(err, apperr.ErrInvalidArgument))
	})
}
