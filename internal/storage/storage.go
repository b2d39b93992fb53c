package storage

import (
	"context"
	"time"

	"github.com/dshills/gocommerce/pkg/types"
)

// Storage defines the persistence port for the catalog, accounts, carts and orders
type Storage interface {
	// Category operations
	CreateCategory(ctx context.Context, category *types.Category) error
	GetCategory(ctx context.Context, categoryID int64) (*types.Category, error)
	ListCategories(ctx context.Context) ([]*types.Category, error)
	UpdateCategory(ctx context.Context, category *types.Category) error
	DeleteCategory(ctx context.Context, categoryID int64) error
	CountProductsInCategory(ctx context.Context, categoryID int64) (int, error)

	// Product operations
	CreateProduct(ctx context.Context, product *types.Product) error
	GetProduct(ctx context.Context, productID int64) (*types.Product, error)
	ListProducts(ctx context.Context, offset, limit int) ([]*types.Product, error)
	UpdateProduct(ctx context.Context, product *types.Product) error
	DeleteProduct(ctx context.Context, productID int64) error
	GetProductAttributes(ctx context.Context, productID int64) (types.Attributes, error)
	PutProductAttributes(ctx context.Context, productID int64, attrs types.Attributes) error

	// User operations
	CreateUser(ctx context.Context, user *types.User) error
	GetUser(ctx context.Context, userID int64) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)
	UpdateUser(ctx context.Context, user *types.User) error
	DeleteUser(ctx context.Context, userID int64) error
	GetUserPreferences(ctx context.Context, userID int64) (types.Attributes, error)
	PutUserPreferences(ctx context.Context, userID int64, prefs types.Attributes) error

	// Cart operations
	CreateCart(ctx context.Context, userID int64) (*types.Cart, error)
	GetCartByUser(ctx context.Context, userID int64) (*types.Cart, error)
	DeleteCart(ctx context.Context, cartID int64) error
	AddCartItem(ctx context.Context, cartID, productID int64, quantity int) error
	UpdateCartItem(ctx context.Context, cartID, productID int64, quantity int) error
	RemoveCartItem(ctx context.Context, cartID, productID int64) error
	ListCartLines(ctx context.Context, cartID int64) ([]types.CartLine, error)

	// Order operations
	CreateOrder(ctx context.Context, order *types.Order) error
	GetOrder(ctx context.Context, orderID int64) (*types.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]*types.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status types.OrderStatus) error

	// Notification outbox operations
	EnqueueNotification(ctx context.Context, n *Notification) error
	ListPendingNotifications(ctx context.Context, limit int) ([]*Notification, error)
	ClaimNotification(ctx context.Context, notificationID string) error
	ReleaseStaleNotifications(ctx context.Context, claimedBefore time.Time) (int, error)
	MarkNotificationSent(ctx context.Context, notificationID string) error
	MarkNotificationFailed(ctx context.Context, notificationID string, reason string) error

	// Status operations
	GetStatus(ctx context.Context) (*StoreStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Notification kinds
const (
	NotificationOrderConfirmation = "order_confirmation"
)

// Notification states
const (
	NotificationPending = "pending"
	NotificationSending = "sending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// Notification is an outbox row recorded in the same transaction as the
// order it announces
type Notification struct {
	ID        string
	Kind      string
	OrderID   int64
	UserID    int64
	Status    string
	Attempts  int
	LastError *string // Nullable
	CreatedAt time.Time
	SentAt    *time.Time // Nullable
}

// StoreStatus contains row counts and health of the store
type StoreStatus struct {
	Categories           int
	Products             int
	Users                int
	Carts                int
	Orders               int
	PendingNotifications int
	SchemaVersion        string
	SizeMB               float64
	Health               HealthStatus
}

// HealthStatus represents the health of the database
type HealthStatus struct {
	DatabaseAccessible bool
	ForeignKeysEnabled bool
}
