package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/gocommerce/internal/storage"
	"github.com/dshills/gocommerce/pkg/types"
)

// ProductLookup resolves catalog products. Implementations return an error
// wrapping types.ErrNotFound for unknown ids.
type ProductLookup interface {
	GetProduct(ctx context.Context, productID int64) (*types.Product, error)
}

// CheckoutFunc receives the open transaction and a priced snapshot of the
// cart. Returning an error rolls the transaction back and leaves the cart as is.
type CheckoutFunc func(ctx context.Context, tx storage.Tx, view *types.CartView) error

// Service manages user carts
type Service struct {
	storage  storage.Storage
	products ProductLookup
	locks    *userLocks
}

// New creates a cart service. A nil products lookup reads products straight
// from storage.
func New(store storage.Storage, products ProductLookup) *Service {
	if products == nil {
		products = storageProducts{store}
	}
	return &Service{
		storage:  store,
		products: products,
		locks:    newUserLocks(),
	}
}

// GetOrCreateCart returns the user's cart, creating an empty one on first access
func (s *Service) GetOrCreateCart(ctx context.Context, userID int64) (*types.CartView, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	cart, err := s.ensureCart(ctx, s.storage, userID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, s.storage, cart)
}

// AddItem adds quantity units of a product, merging with an existing line
func (s *Service) AddItem(ctx context.Context, userID, productID int64, quantity int) (*types.CartView, error) {
	if err := types.ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	if _, err := s.products.GetProduct(ctx, productID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to look up product %d: %w", productID, err)
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	cart, err := s.ensureCart(ctx, s.storage, userID)
	if err != nil {
		return nil, err
	}

	for _, item := range cart.Items {
		if item.ProductID == productID {
			if err := types.ValidateQuantity(item.Quantity + quantity); err != nil {
				return nil, err
			}
		}
	}

	if err := s.storage.AddCartItem(ctx, cart.ID, productID, quantity); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Product deleted between lookup and insert
			return nil, types.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to add item: %w", err)
	}
	return s.view(ctx, s.storage, cart)
}

// UpdateItem sets the quantity of an existing line
func (s *Service) UpdateItem(ctx context.Context, userID, productID int64, quantity int) (*types.CartView, error) {
	if err := types.ValidateQuantity(quantity); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	cart, err := s.ensureCart(ctx, s.storage, userID)
	if err != nil {
		return nil, err
	}

	if err := s.storage.UpdateCartItem(ctx, cart.ID, productID, quantity); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	return s.view(ctx, s.storage, cart)
}

// RemoveItem drops a product from the cart. Removing an absent product is a no-op.
func (s *Service) RemoveItem(ctx context.Context, userID, productID int64) (*types.CartView, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	cart, err := s.ensureCart(ctx, s.storage, userID)
	if err != nil {
		return nil, err
	}

	if err := s.storage.RemoveCartItem(ctx, cart.ID, productID); err != nil {
		return nil, fmt.Errorf("failed to remove item: %w", err)
	}
	return s.view(ctx, s.storage, cart)
}

// ClearCart discards the user's cart and starts a fresh, empty one
func (s *Service) ClearCart(ctx context.Context, userID int64) (*types.CartView, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	tx, err := s.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cart, err := s.replaceCart(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return types.NewCartView(cart, nil), nil
}

// Checkout runs fn over a priced snapshot of the user's cart inside one
// transaction and clears the cart before committing. Nothing is written when
// fn fails.
func (s *Service) Checkout(ctx context.Context, userID int64, fn CheckoutFunc) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	tx, err := s.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cart, err := s.ensureCart(ctx, tx, userID)
	if err != nil {
		return err
	}
	view, err := s.view(ctx, tx, cart)
	if err != nil {
		return err
	}

	if err := fn(ctx, tx, view); err != nil {
		return err
	}

	if _, err := s.replaceCart(ctx, tx, userID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ensureCart loads the user's cart, creating it when missing
func (s *Service) ensureCart(ctx context.Context, q storage.Storage, userID int64) (*types.Cart, error) {
	cart, err := q.GetCartByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	cart, err = q.CreateCart(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, types.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return cart, nil
}

// replaceCart deletes the user's cart, if any, and creates a new one within tx
func (s *Service) replaceCart(ctx context.Context, tx storage.Tx, userID int64) (*types.Cart, error) {
	existing, err := tx.GetCartByUser(ctx, userID)
	switch {
	case err == nil:
		if err := tx.DeleteCart(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to delete cart: %w", err)
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	cart, err := tx.CreateCart(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, types.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return cart, nil
}

// view prices the cart's lines against current product rows
func (s *Service) view(ctx context.Context, q storage.Storage, cart *types.Cart) (*types.CartView, error) {
	lines, err := q.ListCartLines(ctx, cart.ID)
	if err != nil {
		if errors.Is(err, types.ErrProductNotLoaded) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load cart lines: %w", err)
	}
	return types.NewCartView(cart, lines), nil
}

// storageProducts adapts storage to ProductLookup
type storageProducts struct {
	storage storage.Storage
}

func (p storageProducts) GetProduct(ctx context.Context, productID int64) (*types.Product, error) {
	product, err := p.storage.GetProduct(ctx, productID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, types.ErrProductNotFound
	}
	return product, err
}
