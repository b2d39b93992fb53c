package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dshills/gocommerce/internal/attrstore"
	"github.com/dshills/gocommerce/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrNestedTx is returned when BeginTx is called on a transaction
	ErrNestedTx = errors.New("nested transactions are not supported")
)

// Options configures a SQLiteStorage
type Options struct {
	// AttributePolicy decides how malformed attribute/preference blobs are handled
	AttributePolicy attrstore.DecodePolicy
}

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db          *sql.DB
	productAttr *attrstore.Store
	userPrefs   *attrstore.Store
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance with strict attribute decoding
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	return NewSQLiteStorageWithOptions(dbPath, Options{})
}

// NewSQLiteStorageWithOptions creates a new SQLite storage instance
func NewSQLiteStorageWithOptions(dbPath string, opts Options) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{
		db:          db,
		productAttr: attrstore.New(attrstore.ProductAttributes, opts.AttributePolicy),
		userPrefs:   attrstore.New(attrstore.UserPreferences, opts.AttributePolicy),
	}, nil
}

// DB exposes the underlying handle for maintenance commands and tests
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// inTx runs fn inside a fresh transaction on the DB
func (s *SQLiteStorage) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure from either driver
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation reports whether err is a FOREIGN KEY constraint failure from either driver
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// expectRows maps a zero-row write onto ErrNotFound
func expectRows(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Category operations

func (s *SQLiteStorage) createCategoryWithQuerier(ctx context.Context, q querier, category *types.Category) error {
	query := `INSERT INTO categories (name, description) VALUES (?, ?) RETURNING id`
	if err := q.QueryRowContext(ctx, query, category.Name, category.Description).Scan(&category.ID); err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CreateCategory(ctx context.Context, category *types.Category) error {
	return s.createCategoryWithQuerier(ctx, s.querier(), category)
}

func (s *SQLiteStorage) getCategoryWithQuerier(ctx context.Context, q querier, categoryID int64) (*types.Category, error) {
	query := `SELECT id, name, description FROM categories WHERE id = ?`
	var category types.Category
	err := q.QueryRowContext(ctx, query, categoryID).Scan(&category.ID, &category.Name, &category.Description)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (s *SQLiteStorage) GetCategory(ctx context.Context, categoryID int64) (*types.Category, error) {
	return s.getCategoryWithQuerier(ctx, s.querier(), categoryID)
}

func (s *SQLiteStorage) listCategoriesWithQuerier(ctx context.Context, q querier) ([]*types.Category, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, description FROM categories ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	categories := make([]*types.Category, 0)
	for rows.Next() {
		var category types.Category
		if err := rows.Scan(&category.ID, &category.Name, &category.Description); err != nil {
			return nil, err
		}
		categories = append(categories, &category)
	}
	return categories, rows.Err()
}

func (s *SQLiteStorage) ListCategories(ctx context.Context) ([]*types.Category, error) {
	return s.listCategoriesWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) updateCategoryWithQuerier(ctx context.Context, q querier, category *types.Category) error {
	result, err := q.ExecContext(ctx, `UPDATE categories SET name = ?, description = ? WHERE id = ?`,
		category.Name, category.Description, category.ID)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	return expectRows(result)
}

func (s *SQLiteStorage) UpdateCategory(ctx context.Context, category *types.Category) error {
	return s.updateCategoryWithQuerier(ctx, s.querier(), category)
}

func (s *SQLiteStorage) deleteCategoryWithQuerier(ctx context.Context, q querier, categoryID int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, categoryID)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return expectRows(result)
}

func (s *SQLiteStorage) DeleteCategory(ctx context.Context, categoryID int64) error {
	return s.deleteCategoryWithQuerier(ctx, s.querier(), categoryID)
}

func (s *SQLiteStorage) countProductsInCategoryWithQuerier(ctx context.Context, q querier, categoryID int64) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE category_id = ?`, categoryID).Scan(&count)
	return count, err
}

func (s *SQLiteStorage) CountProductsInCategory(ctx context.Context, categoryID int64) (int, error) {
	return s.countProductsInCategoryWithQuerier(ctx, s.querier(), categoryID)
}

// Product operations

const productColumns = `id, name, description, price, category_id, stock_quantity, image_url, created_at`

func scanProduct(scan func(dest ...interface{}) error) (*types.Product, error) {
	var product types.Product
	err := scan(&product.ID, &product.Name, &product.Description, &product.Price,
		&product.CategoryID, &product.StockQuantity, &product.ImageURL, &product.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *SQLiteStorage) createProductWithQuerier(ctx context.Context, q querier, product *types.Product) error {
	query := `
		INSERT INTO products (name, description, price, category_id, stock_quantity, image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	now := time.Now().UTC()
	err := q.QueryRowContext(ctx, query,
		product.Name, product.Description, product.Price.String(), product.CategoryID,
		product.StockQuantity, product.ImageURL, now).Scan(&product.ID)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	product.CreatedAt = now

	if len(product.Attributes) > 0 {
		if err := s.productAttr.Put(ctx, q, product.ID, product.Attributes); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) CreateProduct(ctx context.Context, product *types.Product) error {
	return s.inTx(ctx, func(q querier) error {
		return s.createProductWithQuerier(ctx, q, product)
	})
}

func (s *SQLiteStorage) getProductWithQuerier(ctx context.Context, q querier, productID int64) (*types.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?`
	product, err := scanProduct(q.QueryRowContext(ctx, query, productID).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	product.Attributes, err = s.productAttr.Get(ctx, q, product.ID)
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *SQLiteStorage) GetProduct(ctx context.Context, productID int64) (*types.Product, error) {
	return s.getProductWithQuerier(ctx, s.querier(), productID)
}

func (s *SQLiteStorage) listProductsWithQuerier(ctx context.Context, q querier, offset, limit int) ([]*types.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY id LIMIT ? OFFSET ?`
	rows, err := q.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}

	products := make([]*types.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows.Scan)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	// Release the connection before the attribute lookups reuse it
	_ = rows.Close()

	for _, product := range products {
		if product.Attributes, err = s.productAttr.Get(ctx, q, product.ID); err != nil {
			return nil, err
		}
	}
	return products, nil
}

func (s *SQLiteStorage) ListProducts(ctx context.Context, offset, limit int) ([]*types.Product, error) {
	return s.listProductsWithQuerier(ctx, s.querier(), offset, limit)
}

func (s *SQLiteStorage) updateProductWithQuerier(ctx context.Context, q querier, product *types.Product) error {
	query := `
		UPDATE products
		SET name = ?, description = ?, price = ?, category_id = ?, stock_quantity = ?, image_url = ?
		WHERE id = ?
	`
	result, err := q.ExecContext(ctx, query,
		product.Name, product.Description, product.Price.String(), product.CategoryID,
		product.StockQuantity, product.ImageURL, product.ID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if err := expectRows(result); err != nil {
		return err
	}

	if product.Attributes != nil {
		return s.productAttr.Put(ctx, q, product.ID, product.Attributes)
	}
	return nil
}

func (s *SQLiteStorage) UpdateProduct(ctx context.Context, product *types.Product) error {
	return s.inTx(ctx, func(q querier) error {
		return s.updateProductWithQuerier(ctx, q, product)
	})
}

func (s *SQLiteStorage) deleteProductWithQuerier(ctx context.Context, q querier, productID int64) error {
	if err := s.productAttr.Delete(ctx, q, productID); err != nil {
		return err
	}
	result, err := q.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, productID)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return expectRows(result)
}

func (s *SQLiteStorage) DeleteProduct(ctx context.Context, productID int64) error {
	return s.inTx(ctx, func(q querier) error {
		return s.deleteProductWithQuerier(ctx, q, productID)
	})
}

func (s *SQLiteStorage) GetProductAttributes(ctx context.Context, productID int64) (types.Attributes, error) {
	return s.productAttr.Get(ctx, s.querier(), productID)
}

func (s *SQLiteStorage) PutProductAttributes(ctx context.Context, productID int64, attrs types.Attributes) error {
	return s.productAttr.Put(ctx, s.querier(), productID, attrs)
}

// User operations

const userColumns = `id, username, email, password_hash, salt, first_name, last_name, created_at`

func scanUser(scan func(dest ...interface{}) error) (*types.User, error) {
	var user types.User
	err := scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Salt,
		&user.FirstName, &user.LastName, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLiteStorage) createUserWithQuerier(ctx context.Context, q querier, user *types.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, salt, first_name, last_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	now := time.Now().UTC()
	err := q.QueryRowContext(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.Salt,
		user.FirstName, user.LastName, now).Scan(&user.ID)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.CreatedAt = now

	if user.Preferences != nil {
		return s.userPrefs.Put(ctx, q, user.ID, user.Preferences)
	}
	return nil
}

func (s *SQLiteStorage) CreateUser(ctx context.Context, user *types.User) error {
	return s.inTx(ctx, func(q querier) error {
		return s.createUserWithQuerier(ctx, q, user)
	})
}

func (s *SQLiteStorage) getUserWhereWithQuerier(ctx context.Context, q querier, where string, arg interface{}) (*types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	user, err := scanUser(q.QueryRowContext(ctx, query, arg).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	user.Preferences, err = s.userPrefs.Get(ctx, q, user.ID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *SQLiteStorage) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	return s.getUserWhereWithQuerier(ctx, s.querier(), "id = ?", userID)
}

func (s *SQLiteStorage) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return s.getUserWhereWithQuerier(ctx, s.querier(), "email = ?", email)
}

func (s *SQLiteStorage) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	return s.getUserWhereWithQuerier(ctx, s.querier(), "username = ?", username)
}

func (s *SQLiteStorage) updateUserWithQuerier(ctx context.Context, q querier, user *types.User) error {
	query := `
		UPDATE users
		SET email = ?, password_hash = ?, salt = ?, first_name = ?, last_name = ?
		WHERE id = ?
	`
	result, err := q.ExecContext(ctx, query,
		user.Email, user.PasswordHash, user.Salt, user.FirstName, user.LastName, user.ID)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return expectRows(result)
}

func (s *SQLiteStorage) UpdateUser(ctx context.Context, user *types.User) error {
	return s.updateUserWithQuerier(ctx, s.querier(), user)
}

func (s *SQLiteStorage) deleteUserWithQuerier(ctx context.Context, q querier, userID int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return expectRows(result)
}

func (s *SQLiteStorage) DeleteUser(ctx context.Context, userID int64) error {
	return s.deleteUserWithQuerier(ctx, s.querier(), userID)
}

func (s *SQLiteStorage) GetUserPreferences(ctx context.Context, userID int64) (types.Attributes, error) {
	return s.userPrefs.Get(ctx, s.querier(), userID)
}

func (s *SQLiteStorage) PutUserPreferences(ctx context.Context, userID int64, prefs types.Attributes) error {
	return s.userPrefs.Put(ctx, s.querier(), userID, prefs)
}

// Cart operations

func (s *SQLiteStorage) createCartWithQuerier(ctx context.Context, q querier, userID int64) (*types.Cart, error) {
	// A concurrent creator may win the race; the UNIQUE user_id keeps one cart either way
	query := `INSERT INTO carts (user_id, created_at) VALUES (?, ?) ON CONFLICT(user_id) DO NOTHING`
	_, err := q.ExecContext(ctx, query, userID, time.Now().UTC())
	if isForeignKeyViolation(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return s.getCartByUserWithQuerier(ctx, q, userID)
}

func (s *SQLiteStorage) CreateCart(ctx context.Context, userID int64) (*types.Cart, error) {
	return s.createCartWithQuerier(ctx, s.querier(), userID)
}

func (s *SQLiteStorage) getCartByUserWithQuerier(ctx context.Context, q querier, userID int64) (*types.Cart, error) {
	var cart types.Cart
	err := q.QueryRowContext(ctx, `SELECT id, user_id, created_at FROM carts WHERE user_id = ?`, userID).
		Scan(&cart.ID, &cart.UserID, &cart.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT cart_id, product_id, quantity FROM cart_items WHERE cart_id = ? ORDER BY id`, cart.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cart.Items = make([]types.CartItem, 0)
	for rows.Next() {
		var item types.CartItem
		if err := rows.Scan(&item.CartID, &item.ProductID, &item.Quantity); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, item)
	}
	return &cart, rows.Err()
}

func (s *SQLiteStorage) GetCartByUser(ctx context.Context, userID int64) (*types.Cart, error) {
	return s.getCartByUserWithQuerier(ctx, s.querier(), userID)
}

func (s *SQLiteStorage) deleteCartWithQuerier(ctx context.Context, q querier, cartID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, cartID); err != nil {
		return fmt.Errorf("failed to delete cart items: %w", err)
	}
	result, err := q.ExecContext(ctx, `DELETE FROM carts WHERE id = ?`, cartID)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return expectRows(result)
}

func (s *SQLiteStorage) DeleteCart(ctx context.Context, cartID int64) error {
	return s.inTx(ctx, func(q querier) error {
		return s.deleteCartWithQuerier(ctx, q, cartID)
	})
}

func (s *SQLiteStorage) addCartItemWithQuerier(ctx context.Context, q querier, cartID, productID int64, quantity int) error {
	// Adding a product already in the cart increments its line
	query := `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES (?, ?, ?)
		ON CONFLICT(cart_id, product_id) DO UPDATE SET
			quantity = cart_items.quantity + excluded.quantity
	`
	_, err := q.ExecContext(ctx, query, cartID, productID, quantity)
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to add cart item: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) AddCartItem(ctx context.Context, cartID, productID int64, quantity int) error {
	return s.addCartItemWithQuerier(ctx, s.querier(), cartID, productID, quantity)
}

func (s *SQLiteStorage) updateCartItemWithQuerier(ctx context.Context, q querier, cartID, productID int64, quantity int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE cart_items SET quantity = ? WHERE cart_id = ? AND product_id = ?`,
		quantity, cartID, productID)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	return expectRows(result)
}

func (s *SQLiteStorage) UpdateCartItem(ctx context.Context, cartID, productID int64, quantity int) error {
	return s.updateCartItemWithQuerier(ctx, s.querier(), cartID, productID, quantity)
}

func (s *SQLiteStorage) removeCartItemWithQuerier(ctx context.Context, q querier, cartID, productID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ? AND product_id = ?`, cartID, productID)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) RemoveCartItem(ctx context.Context, cartID, productID int64) error {
	return s.removeCartItemWithQuerier(ctx, s.querier(), cartID, productID)
}

// listCartLinesWithQuerier joins cart items with their current product rows
func (s *SQLiteStorage) listCartLinesWithQuerier(ctx context.Context, q querier, cartID int64) ([]types.CartLine, error) {
	query := `
		SELECT ci.product_id, ci.quantity, p.id, p.name, p.price, p.image_url
		FROM cart_items ci
		LEFT JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = ?
		ORDER BY ci.id
	`
	rows, err := q.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	lines := make([]types.CartLine, 0)
	for rows.Next() {
		var (
			itemProductID int64
			quantity      int
			productID     sql.NullInt64
			name          sql.NullString
			price         decimal.NullDecimal
			imageURL      sql.NullString
		)
		if err := rows.Scan(&itemProductID, &quantity, &productID, &name, &price, &imageURL); err != nil {
			return nil, err
		}
		if !productID.Valid || !price.Valid {
			return nil, fmt.Errorf("cart %d product %d: %w", cartID, itemProductID, types.ErrProductNotLoaded)
		}
		product := &types.Product{
			ID:       productID.Int64,
			Name:     name.String,
			Price:    price.Decimal,
			ImageURL: imageURL.String,
		}
		lines = append(lines, types.NewCartLine(product, quantity))
	}
	return lines, rows.Err()
}

func (s *SQLiteStorage) ListCartLines(ctx context.Context, cartID int64) ([]types.CartLine, error) {
	return s.listCartLinesWithQuerier(ctx, s.querier(), cartID)
}

// Order operations

func (s *SQLiteStorage) createOrderWithQuerier(ctx context.Context, q querier, order *types.Order) error {
	query := `
		INSERT INTO orders (reference, user_id, order_date, total_amount, status)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query,
		order.Reference, order.UserID, order.OrderDate, order.TotalAmount.String(), string(order.Status)).
		Scan(&order.ID)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`
	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := q.QueryRowContext(ctx, itemQuery,
			order.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice.String()).
			Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStorage) CreateOrder(ctx context.Context, order *types.Order) error {
	return s.inTx(ctx, func(q querier) error {
		return s.createOrderWithQuerier(ctx, q, order)
	})
}

const orderColumns = `id, reference, user_id, order_date, total_amount, status`

func scanOrder(scan func(dest ...interface{}) error) (*types.Order, error) {
	var order types.Order
	var status string
	err := scan(&order.ID, &order.Reference, &order.UserID, &order.OrderDate, &order.TotalAmount, &status)
	if err != nil {
		return nil, err
	}
	order.Status = types.OrderStatus(status)
	return &order, nil
}

func (s *SQLiteStorage) listOrderItemsWithQuerier(ctx context.Context, q querier, orderID int64) ([]types.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, product_name, quantity, unit_price
		FROM order_items
		WHERE order_id = ?
		ORDER BY id
	`
	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := make([]types.OrderItem, 0)
	for rows.Next() {
		var item types.OrderItem
		err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.UnitPrice)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStorage) getOrderWithQuerier(ctx context.Context, q querier, orderID int64) (*types.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	order, err := scanOrder(q.QueryRowContext(ctx, query, orderID).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	order.Items, err = s.listOrderItemsWithQuerier(ctx, q, order.ID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *SQLiteStorage) GetOrder(ctx context.Context, orderID int64) (*types.Order, error) {
	return s.getOrderWithQuerier(ctx, s.querier(), orderID)
}

func (s *SQLiteStorage) listOrdersByUserWithQuerier(ctx context.Context, q querier, userID int64) ([]*types.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = ? ORDER BY order_date DESC, id DESC`
	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}

	orders := make([]*types.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, order := range orders {
		if order.Items, err = s.listOrderItemsWithQuerier(ctx, q, order.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *SQLiteStorage) ListOrdersByUser(ctx context.Context, userID int64) ([]*types.Order, error) {
	return s.listOrdersByUserWithQuerier(ctx, s.querier(), userID)
}

func (s *SQLiteStorage) updateOrderStatusWithQuerier(ctx context.Context, q querier, orderID int64, status types.OrderStatus) error {
	result, err := q.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, string(status), orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return expectRows(result)
}

func (s *SQLiteStorage) UpdateOrderStatus(ctx context.Context, orderID int64, status types.OrderStatus) error {
	return s.updateOrderStatusWithQuerier(ctx, s.querier(), orderID, status)
}

// Notification outbox operations

func (s *SQLiteStorage) enqueueNotificationWithQuerier(ctx context.Context, q querier, n *Notification) error {
	query := `
		INSERT INTO notification_outbox (id, kind, order_id, user_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	if n.Status == "" {
		n.Status = NotificationPending
	}
	_, err := q.ExecContext(ctx, query, n.ID, n.Kind, n.OrderID, n.UserID, n.Status, now)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	n.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) EnqueueNotification(ctx context.Context, n *Notification) error {
	return s.enqueueNotificationWithQuerier(ctx, s.querier(), n)
}

func (s *SQLiteStorage) listPendingNotificationsWithQuerier(ctx context.Context, q querier, limit int) ([]*Notification, error) {
	query := `
		SELECT id, kind, order_id, user_id, status, attempts, last_error, created_at, sent_at
		FROM notification_outbox
		WHERE status = ?
		ORDER BY created_at, id
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, NotificationPending, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	notifications := make([]*Notification, 0)
	for rows.Next() {
		var n Notification
		var lastError sql.NullString
		var sentAt sql.NullTime
		err := rows.Scan(&n.ID, &n.Kind, &n.OrderID, &n.UserID, &n.Status, &n.Attempts,
			&lastError, &n.CreatedAt, &sentAt)
		if err != nil {
			return nil, err
		}
		if lastError.Valid {
			n.LastError = &lastError.String
		}
		if sentAt.Valid {
			n.SentAt = &sentAt.Time
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

func (s *SQLiteStorage) ListPendingNotifications(ctx context.Context, limit int) ([]*Notification, error) {
	return s.listPendingNotificationsWithQuerier(ctx, s.querier(), limit)
}

// claimNotificationWithQuerier moves a pending row to sending; ErrNotFound means
// another worker claimed it first or it was already handled
func (s *SQLiteStorage) claimNotificationWithQuerier(ctx context.Context, q querier, notificationID string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE notification_outbox SET status = ?, claimed_at = ? WHERE id = ? AND status = ?`,
		NotificationSending, time.Now().UTC(), notificationID, NotificationPending)
	if err != nil {
		return fmt.Errorf("failed to claim notification: %w", err)
	}
	return expectRows(result)
}

func (s *SQLiteStorage) ClaimNotification(ctx context.Context, notificationID string) error {
	return s.claimNotificationWithQuerier(ctx, s.querier(), notificationID)
}

// releaseStaleNotificationsWithQuerier returns rows stuck in sending, claimed
// before the cutoff, to pending. Such rows belong to a process that stopped
// between claim and outcome.
func (s *SQLiteStorage) releaseStaleNotificationsWithQuerier(ctx context.Context, q querier, claimedBefore time.Time) (int, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE notification_outbox SET status = ?, claimed_at = NULL
		WHERE status = ? AND (claimed_at IS NULL OR claimed_at < ?)`,
		NotificationPending, NotificationSending, claimedBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to release stale notifications: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStorage) ReleaseStaleNotifications(ctx context.Context, claimedBefore time.Time) (int, error) {
	return s.releaseStaleNotificationsWithQuerier(ctx, s.querier(), claimedBefore)
}

func (s *SQLiteStorage) markNotificationSentWithQuerier(ctx context.Context, q querier, notificationID string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE notification_outbox SET status = ?, attempts = attempts + 1, sent_at = ? WHERE id = ?`,
		NotificationSent, time.Now().UTC(), notificationID)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return expectRows(result)
}

func (s *SQLiteStorage) MarkNotificationSent(ctx context.Context, notificationID string) error {
	return s.markNotificationSentWithQuerier(ctx, s.querier(), notificationID)
}

func (s *SQLiteStorage) markNotificationFailedWithQuerier(ctx context.Context, q querier, notificationID, reason string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE notification_outbox SET status = ?, attempts = attempts + 1, last_error = ? WHERE id = ?`,
		NotificationFailed, reason, notificationID)
	if err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return expectRows(result)
}

func (s *SQLiteStorage) MarkNotificationFailed(ctx context.Context, notificationID, reason string) error {
	return s.markNotificationFailedWithQuerier(ctx, s.querier(), notificationID, reason)
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*StoreStatus, error) {
	status := &StoreStatus{}
	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM categories`, &status.Categories},
		{`SELECT COUNT(*) FROM products`, &status.Products},
		{`SELECT COUNT(*) FROM users`, &status.Users},
		{`SELECT COUNT(*) FROM carts`, &status.Carts},
		{`SELECT COUNT(*) FROM orders`, &status.Orders},
		{`SELECT COUNT(*) FROM notification_outbox WHERE status = 'pending'`, &status.PendingNotifications},
	}
	for _, c := range counts {
		if err := q.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to get status: %w", err)
		}
	}
	status.Health.DatabaseAccessible = true

	var fk int
	if err := q.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk); err == nil {
		status.Health.ForeignKeysEnabled = fk == 1
	}

	var pageCount, pageSize int64
	if err := q.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err == nil {
		if err := q.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err == nil {
			status.SizeMB = float64(pageCount*pageSize) / (1024 * 1024)
		}
	}

	version, err := currentSchemaVersion(ctx, q)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version.String()
	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*StoreStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

// sqliteTx implements the Tx interface
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// Implement Storage interface methods for transaction by delegating to the shared helpers

func (t *sqliteTx) CreateCategory(ctx context.Context, category *types.Category) error {
	return t.storage.createCategoryWithQuerier(ctx, t.querier(), category)
}

func (t *sqliteTx) GetCategory(ctx context.Context, categoryID int64) (*types.Category, error) {
	return t.storage.getCategoryWithQuerier(ctx, t.querier(), categoryID)
}

func (t *sqliteTx) ListCategories(ctx context.Context) ([]*types.Category, error) {
	return t.storage.listCategoriesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) UpdateCategory(ctx context.Context, category *types.Category) error {
	return t.storage.updateCategoryWithQuerier(ctx, t.querier(), category)
}

func (t *sqliteTx) DeleteCategory(ctx context.Context, categoryID int64) error {
	return t.storage.deleteCategoryWithQuerier(ctx, t.querier(), categoryID)
}

func (t *sqliteTx) CountProductsInCategory(ctx context.Context, categoryID int64) (int, error) {
	return t.storage.countProductsInCategoryWithQuerier(ctx, t.querier(), categoryID)
}

func (t *sqliteTx) CreateProduct(ctx context.Context, product *types.Product) error {
	return t.storage.createProductWithQuerier(ctx, t.querier(), product)
}

func (t *sqliteTx) GetProduct(ctx context.Context, productID int64) (*types.Product, error) {
	return t.storage.getProductWithQuerier(ctx, t.querier(), productID)
}

func (t *sqliteTx) ListProducts(ctx context.Context, offset, limit int) ([]*types.Product, error) {
	return t.storage.listProductsWithQuerier(ctx, t.querier(), offset, limit)
}

func (t *sqliteTx) UpdateProduct(ctx context.Context, product *types.Product) error {
	return t.storage.updateProductWithQuerier(ctx, t.querier(), product)
}

func (t *sqliteTx) DeleteProduct(ctx context.Context, productID int64) error {
	return t.storage.deleteProductWithQuerier(ctx, t.querier(), productID)
}

func (t *sqliteTx) GetProductAttributes(ctx context.Context, productID int64) (types.Attributes, error) {
	return t.storage.productAttr.Get(ctx, t.querier(), productID)
}

func (t *sqliteTx) PutProductAttributes(ctx context.Context, productID int64, attrs types.Attributes) error {
	return t.storage.productAttr.Put(ctx, t.querier(), productID, attrs)
}

func (t *sqliteTx) CreateUser(ctx context.Context, user *types.User) error {
	return t.storage.createUserWithQuerier(ctx, t.querier(), user)
}

func (t *sqliteTx) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	return t.storage.getUserWhereWithQuerier(ctx, t.querier(), "id = ?", userID)
}

func (t *sqliteTx) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return t.storage.getUserWhereWithQuerier(ctx, t.querier(), "email = ?", email)
}

func (t *sqliteTx) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	return t.storage.getUserWhereWithQuerier(ctx, t.querier(), "username = ?", username)
}

func (t *sqliteTx) UpdateUser(ctx context.Context, user *types.User) error {
	return t.storage.updateUserWithQuerier(ctx, t.querier(), user)
}

func (t *sqliteTx) DeleteUser(ctx context.Context, userID int64) error {
	return t.storage.deleteUserWithQuerier(ctx, t.querier(), userID)
}

func (t *sqliteTx) GetUserPreferences(ctx context.Context, userID int64) (types.Attributes, error) {
	return t.storage.userPrefs.Get(ctx, t.querier(), userID)
}

func (t *sqliteTx) PutUserPreferences(ctx context.Context, userID int64, prefs types.Attributes) error {
	return t.storage.userPrefs.Put(ctx, t.querier(), userID, prefs)
}

func (t *sqliteTx) CreateCart(ctx context.Context, userID int64) (*types.Cart, error) {
	return t.storage.createCartWithQuerier(ctx, t.querier(), userID)
}

func (t *sqliteTx) GetCartByUser(ctx context.Context, userID int64) (*types.Cart, error) {
	return t.storage.getCartByUserWithQuerier(ctx, t.querier(), userID)
}

func (t *sqliteTx) DeleteCart(ctx context.Context, cartID int64) error {
	return t.storage.deleteCartWithQuerier(ctx, t.querier(), cartID)
}

func (t *sqliteTx) AddCartItem(ctx context.Context, cartID, productID int64, quantity int) error {
	return t.storage.addCartItemWithQuerier(ctx, t.querier(), cartID, productID, quantity)
}

func (t *sqliteTx) UpdateCartItem(ctx context.Context, cartID, productID int64, quantity int) error {
	return t.storage.updateCartItemWithQuerier(ctx, t.querier(), cartID, productID, quantity)
}

func (t *sqliteTx) RemoveCartItem(ctx context.Context, cartID, productID int64) error {
	return t.storage.removeCartItemWithQuerier(ctx, t.querier(), cartID, productID)
}

func (t *sqliteTx) ListCartLines(ctx context.Context, cartID int64) ([]types.CartLine, error) {
	return t.storage.listCartLinesWithQuerier(ctx, t.querier(), cartID)
}

func (t *sqliteTx) CreateOrder(ctx context.Context, order *types.Order) error {
	return t.storage.createOrderWithQuerier(ctx, t.querier(), order)
}

func (t *sqliteTx) GetOrder(ctx context.Context, orderID int64) (*types.Order, error) {
	return t.storage.getOrderWithQuerier(ctx, t.querier(), orderID)
}

func (t *sqliteTx) ListOrdersByUser(ctx context.Context, userID int64) ([]*types.Order, error) {
	return t.storage.listOrdersByUserWithQuerier(ctx, t.querier(), userID)
}

func (t *sqliteTx) UpdateOrderStatus(ctx context.Context, orderID int64, status types.OrderStatus) error {
	return t.storage.updateOrderStatusWithQuerier(ctx, t.querier(), orderID, status)
}

func (t *sqliteTx) EnqueueNotification(ctx context.Context, n *Notification) error {
	return t.storage.enqueueNotificationWithQuerier(ctx, t.querier(), n)
}

func (t *sqliteTx) ListPendingNotifications(ctx context.Context, limit int) ([]*Notification, error) {
	return t.storage.listPendingNotificationsWithQuerier(ctx, t.querier(), limit)
}

func (t *sqliteTx) ClaimNotification(ctx context.Context, notificationID string) error {
	return t.storage.claimNotificationWithQuerier(ctx, t.querier(), notificationID)
}

func (t *sqliteTx) ReleaseStaleNotifications(ctx context.Context, claimedBefore time.Time) (int, error) {
	return t.storage.releaseStaleNotificationsWithQuerier(ctx, t.querier(), claimedBefore)
}

func (t *sqliteTx) MarkNotificationSent(ctx context.Context, notificationID string) error {
	return t.storage.markNotificationSentWithQuerier(ctx, t.querier(), notificationID)
}

func (t *sqliteTx) MarkNotificationFailed(ctx context.Context, notificationID, reason string) error {
	return t.storage.markNotificationFailedWithQuerier(ctx, t.querier(), notificationID, reason)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*StoreStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

// Close is a no-op for transactions; use Commit or Rollback
func (t *sqliteTx) Close() error {
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, ErrNestedTx
}
