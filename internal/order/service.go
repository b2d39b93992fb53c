package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/gocommerce/internal/cart"
	"github.com/dshills/gocommerce/internal/storage"
	"github.com/dshills/gocommerce/pkg/types"
)

// DefaultNotifyTimeout bounds the post-commit confirmation delivery
const DefaultNotifyTimeout = 5 * time.Second

// UserLookup resolves users. Implementations return an error wrapping
// types.ErrNotFound for unknown ids.
type UserLookup interface {
	GetUser(ctx context.Context, userID int64) (*types.User, error)
}

// Notifier delivers a queued notification
type Notifier interface {
	Deliver(ctx context.Context, n *storage.Notification) error
}

// Config contains configuration for the order service
type Config struct {
	NotifyTimeout time.Duration // Upper bound for post-commit delivery (default: 5s)
}

// Service places and tracks orders
type Service struct {
	storage  storage.Storage
	carts    *cart.Service
	users    UserLookup
	notifier Notifier
	config   Config

	now func() time.Time
}

// New creates an order service. A nil notifier leaves confirmations pending
// in the outbox for a background dispatcher.
func New(store storage.Storage, carts *cart.Service, users UserLookup, notifier Notifier, config *Config) *Service {
	cfg := Config{NotifyTimeout: DefaultNotifyTimeout}
	if config != nil && config.NotifyTimeout > 0 {
		cfg.NotifyTimeout = config.NotifyTimeout
	}
	return &Service{
		storage:  store,
		carts:    carts,
		users:    users,
		notifier: notifier,
		config:   cfg,
		now:      time.Now,
	}
}

// CreateOrderFromCart turns the user's cart into a Pending order and empties the cart
func (s *Service) CreateOrderFromCart(ctx context.Context, userID int64) (*types.OrderView, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user %d: %w", userID, err)
	}

	var (
		order        *types.Order
		notification *storage.Notification
	)
	err := s.carts.Checkout(ctx, userID, func(ctx context.Context, tx storage.Tx, view *types.CartView) error {
		if view.IsEmpty() {
			return types.ErrEmptyCart
		}

		order = snapshot(userID, view, s.now().UTC())
		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		notification = &storage.Notification{
			ID:      uuid.NewString(),
			Kind:    storage.NotificationOrderConfirmation,
			OrderID: order.ID,
			UserID:  userID,
		}
		if err := tx.EnqueueNotification(ctx, notification); err != nil {
			return fmt.Errorf("failed to enqueue confirmation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.deliver(ctx, notification)
	return order.View(), nil
}

// snapshot captures the cart lines as order items at their current prices
func snapshot(userID int64, view *types.CartView, at time.Time) *types.Order {
	items := make([]types.OrderItem, 0, len(view.Items))
	for _, line := range view.Items {
		items = append(items, types.OrderItem{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		})
	}
	return &types.Order{
		Reference:   uuid.NewString(),
		UserID:      userID,
		OrderDate:   at,
		TotalAmount: types.SumItems(items),
		Status:      types.StatusPending,
		Items:       items,
	}
}

// deliver sends the confirmation best-effort; the order is already committed
func (s *Service) deliver(ctx context.Context, n *storage.Notification) {
	if s.notifier == nil || n == nil {
		return
	}

	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.NotifyTimeout)
	defer cancel()

	if err := s.notifier.Deliver(deliverCtx, n); err != nil {
		log.Printf("order %d: confirmation not delivered: %v", n.OrderID, err)
	}
}

// UpdateOrderStatus moves an order to a new status from the fixed vocabulary
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*types.OrderView, error) {
	parsed, err := types.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	if err := s.storage.UpdateOrderStatus(ctx, orderID, parsed); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	return s.GetOrder(ctx, orderID)
}

// UpdateOrderStatusForUser updates the status of an order owned by userID.
// Orders of other users fail with ErrForbidden and are left unchanged.
func (s *Service) UpdateOrderStatusForUser(ctx context.Context, userID, orderID int64, status string) (*types.OrderView, error) {
	if _, err := types.ParseOrderStatus(status); err != nil {
		return nil, err
	}
	if _, err := s.GetOrderForUser(ctx, userID, orderID); err != nil {
		return nil, err
	}
	return s.UpdateOrderStatus(ctx, orderID, status)
}

// GetOrder returns an order with its items
func (s *Service) GetOrder(ctx context.Context, orderID int64) (*types.OrderView, error) {
	order, err := s.storage.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order.View(), nil
}

// GetOrderForUser returns an order only if it belongs to userID
func (s *Service) GetOrderForUser(ctx context.Context, userID, orderID int64) (*types.OrderView, error) {
	view, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if view.UserID != userID {
		return nil, fmt.Errorf("order %d: %w", orderID, types.ErrForbidden)
	}
	return view, nil
}

// ListOrdersForUser returns the user's orders, newest first
func (s *Service) ListOrdersForUser(ctx context.Context, userID int64) ([]*types.OrderView, error) {
	orders, err := s.storage.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	views := make([]*types.OrderView, len(orders))
	for i, order := range orders {
		views[i] = order.View()
	}
	return views, nil
}
