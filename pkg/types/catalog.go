package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products. One category owns many products.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Validate checks the category fields
func (c *Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return Validationf("category name is required")
	}
	return nil
}

// Product is a catalog entry. Attributes are stored out-of-line and merged
// on read.
type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	CategoryID    int64           `json:"category_id"`
	StockQuantity int             `json:"stock_quantity"`
	ImageURL      string          `json:"image_url,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Attributes    Attributes      `json:"attributes"`
}

// Validate checks the fields a stored product must have
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return Validationf("product name is required")
	}
	if !p.Price.IsPositive() {
		return Validationf("price must be positive, got %s", p.Price)
	}
	if p.StockQuantity < 0 {
		return Validationf("stock quantity must not be negative, got %d", p.StockQuantity)
	}
	if p.CategoryID <= 0 {
		return Validationf("category id is required")
	}
	return nil
}
