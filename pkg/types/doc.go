// Package types provides the shared domain types of gocommerce.
//
// # Catalog
//
// Category and Product describe what is for sale. Prices are
// decimal.Decimal; product attributes are an open-ended Attributes mapping
// stored beside the product row.
//
// # Carts and Orders
//
// Cart and CartItem are the persisted cart. Items hold no price: a CartView
// is built from CartLines that join each item with the current product, so
// totals always reflect live prices.
//
// An Order captures its lines as OrderItems with a frozen UnitPrice and
// ProductName. Later catalog changes never alter a placed order; only its
// Status changes:
//
//	Pending → Processing → Shipped → Delivered
//	        ↘ Cancelled
//
// ParseOrderStatus accepts status names case-insensitively.
//
// # Attribute values
//
// Value is a tagged JSON value (null, bool, number, string, array, object).
// Numbers keep their literal text, so {"color":"red","size":42} decodes back
// with size still the integer 42.
//
//	attrs, _ := types.AttributesOf(map[string]any{"color": "red", "size": 42})
//	blob, _ := attrs.Encode() // {"color":"red","size":42}
//
// # Errors
//
// Every domain error wraps one kind sentinel (ErrNotFound, ErrConflict,
// ErrInvalidOperation, ErrValidation, ErrForbidden, ErrCorruptData), so
// transports map failures with errors.Is:
//
//	if errors.Is(err, types.ErrNotFound) {
//	    // 404
//	}
package types
