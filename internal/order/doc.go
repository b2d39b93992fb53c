// Package order places orders from carts and manages their lifecycle.
//
// CreateOrderFromCart runs as a single transaction through cart.Checkout:
// the cart is snapshotted into order items (product name and unit price are
// captured at that instant), the order and an outbox notification are
// inserted, and the cart is cleared. The confirmation is delivered after
// commit; a delivery failure never fails the order.
package order
