package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gocommerce/internal/cart"
	"github.com/dshills/gocommerce/internal/storage"
	"github.com/dshills/gocommerce/pkg/types"
)

// storeUsers resolves users straight from storage
type storeUsers struct {
	store storage.Storage
}

func (u storeUsers) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	user, err := u.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, types.ErrUserNotFound
	}
	return user, err
}

// recordingNotifier captures deliveries and optionally fails them
type recordingNotifier struct {
	delivered []*storage.Notification
	err       error
}

func (n *recordingNotifier) Deliver(ctx context.Context, notification *storage.Notification) error {
	n.delivered = append(n.delivered, notification)
	return n.err
}

type fixture struct {
	store    *storage.SQLiteStorage
	carts    *cart.Service
	svc      *Service
	notifier *recordingNotifier
	user     *types.User
	book     *types.Product // 9.99
	pen      *types.Product // 5.00
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

	carts := cart.New(store, nil)
	notifier := &recordingNotifier{}
	svc := New(store, carts, storeUsers{store}, notifier, &Config{NotifyTimeout: time.Second})

	return &fixture{store: store, carts: carts, svc: svc, notifier: notifier, user: user, book: book, pen: pen}
}

func (f *fixture) fillCart(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.carts.AddItem(ctx, f.user.ID, f.book.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, f.user.ID, f.pen.ID, 1)
	require.NoError(t, err)
}

func TestCreateOrderFromCart(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.fillCart(t)

	order, err := f.svc.CreateOrderFromCart(ctx, f.user.ID)
	require.NoError(t, err)

	assert.Greater(t, order.ID, int64(0))
	assert.NotEmpty(t, order.Reference)
	assert.Equal(t, f.user.ID, order.UserID)
	assert.Equal(t, types.StatusPending, order.Status)
	assert.Equal(t, "24.98", order.TotalAmount.StringFixed(2))
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Notebook", order.Items[0].ProductName)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, "19.98", order.Items[0].Subtotal.StringFixed(2))
	assert.Equal(t, order.ID, order.Items[1].OrderID)

	// The cart is empty afterwards
	view, err := f.carts.GetOrCreateCart(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, view.IsEmpty())

	// Confirmation was handed to the notifier after commit
	require.Len(t, f.notifier.delivered, 1)
	assert.Equal(t, order.ID, f.notifier.delivered[0].OrderID)
	assert.Equal(t, storage.NotificationOrderConfirmation, f.notifier.delivered[0].Kind)
}

func TestCreateOrderFromCart_CapturesPrices(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.fillCart(t)

	order, err := f.svc.CreateOrderFromCart(ctx, f.user.ID)
	require.NoError(t, err)

	f.book.Price = decimal.RequireFromString("100.00")
	f.book.Name = "Deluxe Notebook"
	require.NoError(t, f.store.UpdateProduct(ctx, f.book))

	got, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "24.98", got.TotalAmount.StringFixed(2))
	assert.Equal(t, "9.99", got.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "Notebook", got.Items[0].ProductName)
}

func TestCreateOrderFromCart_EmptyCart(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrderFromCart(ctx, f.user.ID)
	assert.ErrorIs(t, err, types.ErrEmptyCart)
	assert.ErrorIs(t, err, types.ErrInvalidOperation)

	orders, err := f.svc.ListOrdersForUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, f.notifier.delivered)

	status, err := f.store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Orders)
	assert.Equal(t, 0, status.PendingNotifications)
}

func TestCreateOrderFromCart_UnknownUser(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.CreateOrderFromCart(context.Background(), 9999)
	assert.ErrorIs(t, err, types.ErrUserNotFound)
}

func TestCreateOrderFromCart_NotificationFailureKeepsOrder(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.fillCart(t)
	f.notifier.err = errors.New("mail relay down")

	order, err := f.svc.CreateOrderFromCart(ctx, f.user.ID)
	require.NoError(t, err)

	got, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Reference, got.Reference)
}

func TestCreateOrderFromCart_NoNotifierLeavesOutboxPending(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.fillCart(t)

	svc := New(f.store, f.carts, storeUsers{f.store}, nil, nil)
	order, err := svc.CreateOrderFromCart(ctx, f.user.ID)
	require.NoError(t, err)

	pending, err := f.store.ListPendingNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, order.ID, pending[0].OrderID)
	assert.Equal(t, f.user.ID, pending[0].UserID)
}

func TestUpdateOrderStatus(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.fillCart(t)

	order, err := f.svc.CreateOrderFromCart(ctx, f.user.ID)
	require.NoError(t, err)

	updated, err := f.svc.UpdateOrderStatus(ctx, order.ID, "shipped")
	require.NoError(t, err)
	assert.Equal(t, types.StatusShipped, updated.Status)
	assert.Equal(t, order.TotalAmount.String(), updated.TotalAmount.String())

	_, err = f.svc.UpdateOrderStatus(ctx, order.ID, "Teleported")
	assert.ErrorIs(t, err, types.ErrValidation)

	got, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusShipped, got.Status)

	_, err = f.svc.UpdateOrderStatus(ctx, 9999, "Delivered")
	assert.ErrorIs(t, err, types.ErrOrderNotFound)

	// Status is validated before the order is looked up
	_, err = f.svc.UpdateOrderStatus(ctx, 9999, "bogus")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestListOrdersForUser_NewestFirst(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	clock := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return clock }

	var ids []int64
	for i := 0; i < 3; i++ {
		_, err := f.carts.AddItem(ctx, f.user.ID, f.pen.ID, 1)
		require.NoError(t, err)
		order, err := f.svc.CreateOrderFromCart(ctx, f.user.ID)
		require.NoError(t, err)
		ids = append(ids, order.ID)
		clock = clock.Add(time.Minute)
	}

	orders, err := f.svc.ListOrdersForUser(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, []int64{ids[2], ids[1], ids[0]}, []int64{orders[0].ID, orders[1].ID, orders[2].ID})
}

func TestGetOrderForUser_Forbidden(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.fillCart(t)

	order, err := f.svc.CreateOrderFromCart(ctx, f.user.ID)
	require.NoError(t, err)

	other := &types.User{Username: "mallory", Email: "mallory@example.com", PasswordHash: "h", Salt: "s"}
	require.NoError(t, f.store.CreateUser(ctx, other))

	_, err = f.svc.GetOrderForUser(ctx, other.ID, order.ID)
	assert.ErrorIs(t, err, types.ErrForbidden)

	got, err := f.svc.GetOrderForUser(ctx, f.user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.svc.GetOrderForUser(ctx, f.user.ID, 9999)
	assert.ErrorIs(t, err, types.ErrOrderNotFound)
}

func TestUpdateOrderStatusForUser(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.fillCart(t)

	order, err := f.svc.CreateOrderFromCart(ctx, f.user.ID)
	require.NoError(t, err)

	other := &types.User{Username: "mallory", Email: "mallory@example.com", PasswordHash: "h", Salt: "s"}
	require.NoError(t, f.store.CreateUser(ctx, other))

	_, err = f.svc.UpdateOrderStatusForUser(ctx, other.ID, order.ID, "Cancelled")
	assert.ErrorIs(t, err, types.ErrForbidden)

	got, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)

	updated, err := f.svc.UpdateOrderStatusForUser(ctx, f.user.ID, order.ID, "Cancelled")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, updated.Status)

	_, err = f.svc.UpdateOrderStatusForUser(ctx, f.user.ID, 9999, "Delivered")
	assert.ErrorIs(t, err, types.ErrOrderNotFound)

	// An invalid status is reported before ownership
	_, err = f.svc.UpdateOrderStatusForUser(ctx, other.ID, order.ID, "bogus")
	assert.ErrorIs(t, err, types.ErrValidation)
}
