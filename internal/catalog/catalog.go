// Package catalog manages products and categories.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/gocommerce/internal/storage"
	"github.com/dshills/gocommerce/pkg/types"
)

const (
	// DefaultPageSize is used when a caller asks for page size 0
	DefaultPageSize = 10
	// MaxPageSize bounds a single product page
	MaxPageSize = 100
)

// Config contains configuration for the catalog service
type Config struct {
	CacheSize int           // Cached categories (default: 256)
	CacheTTL  time.Duration // Category cache entry lifetime (default: 5m)
}

// categoryEntry is a cached category with its expiration time
type categoryEntry struct {
	category  types.Category
	expiresAt time.Time
}

// Service exposes catalog operations. Category reads are cached; product
// reads always hit storage so prices are never stale.
type Service struct {
	storage storage.Storage

	cache   *lru.Cache[int64, *categoryEntry]
	cacheMu sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
}

// New creates a catalog service
func New(store storage.Storage, config *Config) *Service {
	size, ttl := 256, 5*time.Minute
	if config != nil {
		if config.CacheSize > 0 {
			size = config.CacheSize
		}
		if config.CacheTTL > 0 {
			ttl = config.CacheTTL
		}
	}

	cache, err := lru.New[int64, *categoryEntry](size)
	if err != nil {
		// Should never happen with a positive size
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Service{
		storage: store,
		cache:   cache,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Product operations

// ListProducts returns one page of products. page is 1-based.
func (s *Service) ListProducts(ctx context.Context, page, pageSize int) ([]*types.Product, error) {
	if page < 1 {
		return nil, types.Validationf("page must be >= 1, got %d", page)
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, types.Validationf("page size must be between 1 and %d, got %d", MaxPageSize, pageSize)
	}

	products, err := s.storage.ListProducts(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// GetProduct returns a product with its attributes
func (s *Service) GetProduct(ctx context.Context, productID int64) (*types.Product, error) {
	product, err := s.storage.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

// CreateProduct validates and stores a new product
func (s *Service) CreateProduct(ctx context.Context, product *types.Product) (*types.Product, error) {
	if err := product.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.GetCategory(ctx, product.CategoryID); err != nil {
		return nil, err
	}

	if err := s.storage.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return s.GetProduct(ctx, product.ID)
}

// UpdateProduct replaces a product's fields. Nil attributes leave the stored ones untouched.
func (s *Service) UpdateProduct(ctx context.Context, product *types.Product) (*types.Product, error) {
	if err := product.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.GetCategory(ctx, product.CategoryID); err != nil {
		return nil, err
	}

	if err := s.storage.UpdateProduct(ctx, product); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return s.GetProduct(ctx, product.ID)
}

// DeleteProduct removes a product. Cart lines holding it go with it; order
// items keep their captured copy.
func (s *Service) DeleteProduct(ctx context.Context, productID int64) error {
	if err := s.storage.DeleteProduct(ctx, productID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.ErrProductNotFound
		}
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

// Category operations

// ListCategories returns all categories ordered by name
func (s *Service) ListCategories(ctx context.Context) ([]*types.Category, error) {
	categories, err := s.storage.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// GetCategory returns a category, served from cache when fresh
func (s *Service) GetCategory(ctx context.Context, categoryID int64) (*types.Category, error) {
	if cached, ok := s.cached(categoryID); ok {
		return cached, nil
	}

	category, err := s.storage.GetCategory(ctx, categoryID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}

	s.remember(category)
	return category, nil
}

// CreateCategory validates and stores a new category
func (s *Service) CreateCategory(ctx context.Context, category *types.Category) (*types.Category, error) {
	if err := category.Validate(); err != nil {
		return nil, err
	}
	if err := s.storage.CreateCategory(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return category, nil
}

// UpdateCategory replaces a category's name and description
func (s *Service) UpdateCategory(ctx context.Context, category *types.Category) (*types.Category, error) {
	if err := category.Validate(); err != nil {
		return nil, err
	}

	// Evicted once the write lands; a read in between re-caches the old row
	err := s.storage.UpdateCategory(ctx, category)
	s.forget(category.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	return category, nil
}

// DeleteCategory removes a category that no product references
func (s *Service) DeleteCategory(ctx context.Context, categoryID int64) error {
	count, err := s.storage.CountProductsInCategory(ctx, categoryID)
	if err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("category %d has %d products: %w", categoryID, count, types.ErrCategoryInUse)
	}

	err = s.storage.DeleteCategory(ctx, categoryID)
	s.forget(categoryID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.ErrCategoryNotFound
		}
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}

// cached returns a copy of a fresh cache entry
func (s *Service) cached(categoryID int64) (*types.Category, bool) {
	s.cacheMu.RLock()
	entry, found := s.cache.Get(categoryID)
	s.cacheMu.RUnlock()
	if !found {
		return nil, false
	}

	if s.now().After(entry.expiresAt) {
		s.forget(categoryID)
		return nil, false
	}

	category := entry.category
	return &category, true
}

func (s *Service) remember(category *types.Category) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Add(category.ID, &categoryEntry{
		category:  *category,
		expiresAt: s.now().Add(s.ttl),
	})
}

func (s *Service) forget(categoryID int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Remove(categoryID)
}
