// Package storage provides SQLite-based persistence for the store: the
// catalog, user accounts, shopping carts, orders and the notification outbox.
//
// # Database Schema
//
// Tables:
//   - categories, products: catalog rows; prices are stored as decimal text
//   - product_attributes: one JSON object per product
//   - users, user_preferences: accounts and their JSON preferences
//   - carts, cart_items: one cart per user, at most one line per product
//   - orders, order_items: immutable snapshots taken at checkout
//   - notification_outbox: confirmations waiting to be delivered
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("gocommerce.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	cart, err := db.CreateCart(ctx, userID)
//	err = db.AddCartItem(ctx, cart.ID, productID, 2)
//
// # Transactions
//
// Use transactions for atomic operations. While a transaction is open, every
// call must go through the Tx value: the pool holds a single connection.
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	if err := tx.CreateOrder(ctx, order); err != nil {
//	    return err
//	}
//	if err := tx.DeleteCart(ctx, cartID); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// # Build Tags
//
// The default build uses modernc.org/sqlite and needs no C compiler:
//
//	CGO_ENABLED=0 go build -tags "purego"
//
// The cgo_sqlite tag switches to github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "cgo_sqlite"
package storage
