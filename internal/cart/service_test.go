package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gocommerce/internal/storage"
	"github.com/dshills/gocommerce/pkg/types"
)

type fixture struct {
	store *storage.SQLiteStorage
	svc   *Service
	user  *types.User
	book  *types.Product // 9.99
	pen   *types.Product // 5.00
}

func setupService(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	category := &types.Category{Name: "Stationery"}
	require.NoError(t, store.CreateCategory(ctx, category))

	book := &types.Product{Name: "Notebook", Price: decimal.RequireFromString("9.99"), CategoryID: category.ID, StockQuantity: 10}
	pen := &types.Product{Name: "Pen", Price: decimal.RequireFromString("5.00"), CategoryID: category.ID, StockQuantity: 10}
	require.NoError(t, store.CreateProduct(ctx, book))
	require.NoError(t, store.CreateProduct(ctx, pen))

	user := &types.User{Username: "alice", Email: "alice@example.com", PasswordHash: "h", Salt: "s"}
	require.NoError(t, store.CreateUser(ctx, user))

	return &fixture{store: store, svc: New(store, nil), user: user, book: book, pen: pen}
}

func TestGetOrCreateCart_Idempotent(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	first, err := f.svc.GetOrCreateCart(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, first.IsEmpty())
	assert.True(t, first.TotalAmount.IsZero())

	second, err := f.svc.GetOrCreateCart(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, f.user.ID, second.UserID)
}

func TestGetOrCreateCart_UnknownUser(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.GetOrCreateCart(context.Background(), 9999)
	assert.ErrorIs(t, err, types.ErrUserNotFound)
}

func TestAddItem_TotalIsSumOfSubtotals(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, f.user.ID, f.book.ID, 2)
	require.NoError(t, err)
	view, err := f.svc.AddItem(ctx, f.user.ID, f.pen.ID, 1)
	require.NoError(t, err)

	require.Len(t, view.Items, 2)
	assert.True(t, view.Items[0].Subtotal.Equal(decimal.RequireFromString("19.98")))
	assert.True(t, view.Items[1].Subtotal.Equal(decimal.RequireFromString("5.00")))

	sum := decimal.Zero
	for _, line := range view.Items {
		assert.True(t, line.Subtotal.Equal(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))))
		sum = sum.Add(line.Subtotal)
	}
	assert.True(t, view.TotalAmount.Equal(sum))
	assert.Equal(t, "24.98", view.TotalAmount.StringFixed(2))
}

func TestAddItem_MergesSameProduct(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, f.user.ID, f.book.ID, 2)
	require.NoError(t, err)
	view, err := f.svc.AddItem(ctx, f.user.ID, f.book.ID, 3)
	require.NoError(t, err)

	require.Len(t, view.Items, 1)
	assert.Equal(t, 5, view.Items[0].Quantity)
}

func TestAddItem_Validation(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		productID int64
		quantity  int
		wantErr   error
	}{
		{"zero quantity", f.book.ID, 0, types.ErrValidation},
		{"negative quantity", f.book.ID, -1, types.ErrValidation},
		{"quantity over limit", f.book.ID, types.MaxItemQuantity + 1, types.ErrValidation},
		{"unknown product", 9999, 1, types.ErrProductNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddItem(ctx, f.user.ID, tt.productID, tt.quantity)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := f.svc.AddItem(ctx, f.user.ID, f.book.ID, types.MaxItemQuantity)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, f.user.ID, f.book.ID, 1)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestUpdateItem(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, f.user.ID, f.book.ID, 2)
	require.NoError(t, err)

	view, err := f.svc.UpdateItem(ctx, f.user.ID, f.book.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, view.Items[0].Quantity)

	_, err = f.svc.UpdateItem(ctx, f.user.ID, f.pen.ID, 1)
	assert.ErrorIs(t, err, types.ErrItemNotFound)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = f.svc.UpdateItem(ctx, f.user.ID, f.book.ID, 0)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestRemoveItem_AbsentIsNoop(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, f.user.ID, f.book.ID, 1)
	require.NoError(t, err)

	view, err := f.svc.RemoveItem(ctx, f.user.ID, f.pen.ID)
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)

	view, err = f.svc.RemoveItem(ctx, f.user.ID, f.book.ID)
	require.NoError(t, err)
	assert.True(t, view.IsEmpty())
}

func TestClearCart_NewIdentity(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	before, err := f.svc.AddItem(ctx, f.user.ID, f.book.ID, 1)
	require.NoError(t, err)

	cleared, err := f.svc.ClearCart(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, cleared.IsEmpty())
	assert.NotEqual(t, before.ID, cleared.ID)

	after, err := f.svc.GetOrCreateCart(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, cleared.ID, after.ID)
	assert.Empty(t, after.Items)
}

func TestView_UsesLivePrices(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, f.user.ID, f.book.ID, 2)
	require.NoError(t, err)

	f.book.Price = decimal.RequireFromString("12.00")
	require.NoError(t, f.store.UpdateProduct(ctx, f.book))

	view, err := f.svc.GetOrCreateCart(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "24.00", view.TotalAmount.StringFixed(2))
}

func TestCheckout(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	before, err := f.svc.AddItem(ctx, f.user.ID, f.book.ID, 2)
	require.NoError(t, err)

	var seen *types.CartView
	err = f.svc.Checkout(ctx, f.user.ID, func(ctx context.Context, tx storage.Tx, view *types.CartView) error {
		seen = view
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Len(t, seen.Items, 1)
	assert.Equal(t, before.ID, seen.ID)

	after, err := f.svc.GetOrCreateCart(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, after.IsEmpty())
	assert.NotEqual(t, before.ID, after.ID)
}

func TestCheckout_CallbackErrorKeepsCart(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	before, err := f.svc.AddItem(ctx, f.user.ID, f.book.ID, 2)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = f.svc.Checkout(ctx, f.user.ID, func(ctx context.Context, tx storage.Tx, view *types.CartView) error {
		require.NoError(t, tx.CreateCategory(ctx, &types.Category{Name: "discarded"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	after, err := f.svc.GetOrCreateCart(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Len(t, after.Items, 1)

	categories, err := f.store.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 1)
}

func TestAddItem_ConcurrentSameUser(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.AddItem(ctx, f.user.ID, f.book.ID, 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	view, err := f.svc.GetOrCreateCart(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, workers, view.Items[0].Quantity)
	assert.Equal(t, 0, f.svc.locks.size())
}
