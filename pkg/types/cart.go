package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxItemQuantity bounds the quantity of a single cart line
const MaxItemQuantity = 999

// Cart is the persisted form of a user's cart. Items carry no price; prices
// are resolved from the catalog whenever the cart is viewed.
type Cart struct {
	ID        int64
	UserID    int64
	CreatedAt time.Time
	Items     []CartItem
}

// CartItem is one product line in a cart
type CartItem struct {
	CartID    int64
	ProductID int64
	Quantity  int
}

// CartLine is a cart item joined with the current product row
type CartLine struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ImageURL    string          `json:"image_url"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// NewCartLine prices a quantity of product at its current price
func NewCartLine(p *Product, quantity int) CartLine {
	return CartLine{
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    quantity,
		UnitPrice:   p.Price,
		ImageURL:    p.ImageURL,
		Subtotal:    p.Price.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// CartView is the priced cart returned to callers
type CartView struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	CreatedAt   time.Time       `json:"created_date"`
	Items       []CartLine      `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// NewCartView builds a view over priced lines and computes the total
func NewCartView(cart *Cart, lines []CartLine) *CartView {
	if lines == nil {
		lines = []CartLine{}
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal)
	}
	return &CartView{
		ID:          cart.ID,
		UserID:      cart.UserID,
		CreatedAt:   cart.CreatedAt,
		Items:       lines,
		TotalAmount: total,
	}
}

// IsEmpty reports whether the cart has no lines
func (v *CartView) IsEmpty() bool { return len(v.Items) == 0 }

// ValidateQuantity checks a requested line quantity
func ValidateQuantity(quantity int) error {
	if quantity < 1 || quantity > MaxItemQuantity {
		return Validationf("quantity must be between 1 and %d, got %d", MaxItemQuantity, quantity)
	}
	return nil
}
