package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gocommerce/internal/storage"
	"github.com/dshills/gocommerce/pkg/types"
)

func setupService(t *testing.T) (*Service, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, nil), store
}

func TestCreateProduct(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, &types.Category{Name: "Garden"})
	require.NoError(t, err)

	attrs, err := types.AttributesOf(map[string]any{"color": "red", "size": 42})
	require.NoError(t, err)

	product, err := svc.CreateProduct(ctx, &types.Product{
		Name:          "Hose",
		Price:         decimal.RequireFromString("19.95"),
		CategoryID:    category.ID,
		StockQuantity: 3,
		Attributes:    attrs,
	})
	require.NoError(t, err)
	assert.Greater(t, product.ID, int64(0))
	assert.Equal(t, []string{"color", "size"}, product.Attributes.Keys())

	encoded, err := product.Attributes.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"color":"red","size":42}`, string(encoded))
}

func TestCreateProduct_Validation(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, &types.Category{Name: "Garden"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		product types.Product
		wantErr error
	}{
		{"missing name", types.Product{Price: decimal.NewFromInt(1), CategoryID: category.ID}, types.ErrValidation},
		{"zero price", types.Product{Name: "x", CategoryID: category.ID}, types.ErrValidation},
		{"negative stock", types.Product{Name: "x", Price: decimal.NewFromInt(1), CategoryID: category.ID, StockQuantity: -1}, types.ErrValidation},
		{"unknown category", types.Product{Name: "x", Price: decimal.NewFromInt(1), CategoryID: 999}, types.ErrCategoryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product := tt.product
			_, err := svc.CreateProduct(ctx, &product)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUpdateAndDeleteProduct(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, &types.Category{Name: "Garden"})
	require.NoError(t, err)
	product, err := svc.CreateProduct(ctx, &types.Product{Name: "Rake", Price: decimal.NewFromInt(8), CategoryID: category.ID})
	require.NoError(t, err)

	product.Price = decimal.RequireFromString("7.50")
	updated, err := svc.UpdateProduct(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, "7.50", updated.Price.StringFixed(2))

	require.NoError(t, svc.DeleteProduct(ctx, product.ID))
	_, err = svc.GetProduct(ctx, product.ID)
	assert.ErrorIs(t, err, types.ErrProductNotFound)
	assert.ErrorIs(t, svc.DeleteProduct(ctx, product.ID), types.ErrProductNotFound)

	_, err = svc.UpdateProduct(ctx, product)
	assert.ErrorIs(t, err, types.ErrProductNotFound)
}

func TestListProducts_Paging(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, &types.Category{Name: "Garden"})
	require.NoError(t, err)
	for _, name := range []string{"a", "b", "c"} {
		_, err := svc.CreateProduct(ctx, &types.Product{Name: name, Price: decimal.NewFromInt(1), CategoryID: category.ID})
		require.NoError(t, err)
	}

	page, err := svc.ListProducts(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c", page[0].Name)

	all, err := svc.ListProducts(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.ListProducts(ctx, 0, 10)
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = svc.ListProducts(ctx, 1, MaxPageSize+1)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestDeleteCategory_InUse(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, &types.Category{Name: "Garden"})
	require.NoError(t, err)
	product, err := svc.CreateProduct(ctx, &types.Product{Name: "Rake", Price: decimal.NewFromInt(8), CategoryID: category.ID})
	require.NoError(t, err)

	err = svc.DeleteCategory(ctx, category.ID)
	assert.ErrorIs(t, err, types.ErrCategoryInUse)
	assert.ErrorIs(t, err, types.ErrConflict)

	require.NoError(t, svc.DeleteProduct(ctx, product.ID))
	require.NoError(t, svc.DeleteCategory(ctx, category.ID))

	_, err = svc.GetCategory(ctx, category.ID)
	assert.ErrorIs(t, err, types.ErrCategoryNotFound)
	assert.ErrorIs(t, svc.DeleteCategory(ctx, category.ID), types.ErrCategoryNotFound)
}

func TestCategoryCache(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, &types.Category{Name: "Garden"})
	require.NoError(t, err)

	first, err := svc.GetCategory(ctx, category.ID)
	require.NoError(t, err)
	first.Name = "mutated by caller"

	// Writes behind the service's back are hidden until the entry expires
	require.NoError(t, store.UpdateCategory(ctx, &types.Category{ID: category.ID, Name: "Outdoor"}))
	cached, err := svc.GetCategory(ctx, category.ID)
	require.NoError(t, err)
	assert.Equal(t, "Garden", cached.Name)

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	fresh, err := svc.GetCategory(ctx, category.ID)
	require.NoError(t, err)
	assert.Equal(t, "Outdoor", fresh.Name)

	// Updates through the service invalidate immediately
	_, err = svc.UpdateCategory(ctx, &types.Category{ID: category.ID, Name: "Patio"})
	require.NoError(t, err)
	got, err := svc.GetCategory(ctx, category.ID)
	require.NoError(t, err)
	assert.Equal(t, "Patio", got.Name)

	_, err = svc.UpdateCategory(ctx, &types.Category{ID: category.ID})
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = svc.UpdateCategory(ctx, &types.Category{ID: 999, Name: "x"})
	assert.ErrorIs(t, err, types.ErrCategoryNotFound)
}

// interleavedStore runs beforeWrite ahead of each category write, standing in
// for a reader that hits the service while the write is in flight
type interleavedStore struct {
	storage.Storage
	beforeWrite func()
}

func (s *interleavedStore) UpdateCategory(ctx context.Context, category *types.Category) error {
	s.beforeWrite()
	return s.Storage.UpdateCategory(ctx, category)
}

func (s *interleavedStore) DeleteCategory(ctx context.Context, categoryID int64) error {
	s.beforeWrite()
	return s.Storage.DeleteCategory(ctx, categoryID)
}

func TestCategoryCache_ReadDuringWrite(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	wrapped := &interleavedStore{Storage: store}
	svc := New(wrapped, nil)
	category, err := svc.CreateCategory(ctx, &types.Category{Name: "Garden"})
	require.NoError(t, err)

	wrapped.beforeWrite = func() {
		_, err := svc.GetCategory(ctx, category.ID)
		require.NoError(t, err)
	}

	_, err = svc.UpdateCategory(ctx, &types.Category{ID: category.ID, Name: "Patio"})
	require.NoError(t, err)
	got, err := svc.GetCategory(ctx, category.ID)
	require.NoError(t, err)
	assert.Equal(t, "Patio", got.Name)

	require.NoError(t, svc.DeleteCategory(ctx, category.ID))
	_, err = svc.GetCategory(ctx, category.ID)
	assert.ErrorIs(t, err, types.ErrCategoryNotFound)

	_, err = svc.CreateProduct(ctx, &types.Product{
		Name:       "Hose",
		Price:      decimal.RequireFromString("19.95"),
		CategoryID: category.ID,
	})
	assert.ErrorIs(t, err, types.ErrCategoryNotFound)
}

func TestListCategories(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	for _, name := range []string{"Toys", "Books"} {
		_, err := svc.CreateCategory(ctx, &types.Category{Name: name})
		require.NoError(t, err)
	}

	categories, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "Books", categories[0].Name)
}
