package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfilment state of an order
type OrderStatus string

const (
	StatusPending    OrderStatus = "Pending"
	StatusProcessing OrderStatus = "Processing"
	StatusShipped    OrderStatus = "Shipped"
	StatusDelivered  OrderStatus = "Delivered"
	StatusCancelled  OrderStatus = "Cancelled"
)

// OrderStatuses lists the status vocabulary in lifecycle order
var OrderStatuses = []OrderStatus{
	StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled,
}

// ParseOrderStatus maps a case-insensitive status name onto the vocabulary.
// Unknown names are a validation error.
func ParseOrderStatus(s string) (OrderStatus, error) {
	name := strings.TrimSpace(s)
	for _, status := range OrderStatuses {
		if strings.EqualFold(name, string(status)) {
			return status, nil
		}
	}
	return "", Validationf("unknown order status %q", s)
}

// IsTerminal reports whether no further transitions are expected
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Order is a completed purchase. Only Status changes after creation.
type Order struct {
	ID          int64
	Reference   string
	UserID      int64
	OrderDate   time.Time
	TotalAmount decimal.Decimal
	Status      OrderStatus
	Items       []OrderItem
}

// OrderItem is a line captured from the cart at purchase time. UnitPrice
// is frozen and never re-read from the catalog.
type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Subtotal returns UnitPrice × Quantity
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SumItems totals the captured lines
func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// OrderItemView is the caller-facing order line
type OrderItemView struct {
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// OrderView is the caller-facing order
type OrderView struct {
	ID          int64           `json:"id"`
	Reference   string          `json:"reference"`
	UserID      int64           `json:"user_id"`
	OrderDate   time.Time       `json:"order_date"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      OrderStatus     `json:"status"`
	Items       []OrderItemView `json:"items"`
}

// View converts the order into its caller-facing form
func (o *Order) View() *OrderView {
	items := make([]OrderItemView, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemView{
			OrderID:     o.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal(),
		}
	}
	return &OrderView{
		ID:          o.ID,
		Reference:   o.Reference,
		UserID:      o.UserID,
		OrderDate:   o.OrderDate,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
		Items:       items,
	}
}
