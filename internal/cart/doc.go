// Package cart implements the shopping cart service.
//
// A user owns at most one cart. Cart items store only a product reference and
// a quantity; prices are resolved from the catalog every time a cart is
// viewed, so a CartView always reflects current product prices:
//
//	svc := cart.New(store, nil)
//	view, err := svc.AddItem(ctx, userID, productID, 2)
//	fmt.Println(view.TotalAmount) // Σ unit price × quantity
//
// All mutations for one user run under a per-user lock. Checkout hands a
// transaction and a priced snapshot to a callback and clears the cart in the
// same transaction, which is how orders are placed.
package cart
