package types

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain error wraps exactly one of these so transports can
// map failures with errors.Is without knowing the specific cause.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrValidation       = errors.New("validation failed")
	ErrForbidden        = errors.New("forbidden")
	ErrCorruptData      = errors.New("corrupt stored data")
)

// NotFound errors
var (
	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)
	ErrCategoryNotFound = fmt.Errorf("category %w", ErrNotFound)
	ErrCartNotFound     = fmt.Errorf("cart %w", ErrNotFound)
	ErrItemNotFound     = fmt.Errorf("item not found in cart: %w", ErrNotFound)
	ErrOrderNotFound    = fmt.Errorf("order %w", ErrNotFound)
	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)
)

// Conflict errors
var (
	ErrUsernameTaken = fmt.Errorf("username already exists: %w", ErrConflict)
	ErrEmailTaken    = fmt.Errorf("email already exists: %w", ErrConflict)
	ErrCategoryInUse = fmt.Errorf("category is referenced by products: %w", ErrConflict)
)

// InvalidOperation errors
var (
	ErrEmptyCart        = fmt.Errorf("cart is empty: %w", ErrInvalidOperation)
	ErrProductNotLoaded = fmt.Errorf("product not loaded for cart item: %w", ErrInvalidOperation)
)

// Validationf returns an ErrValidation carrying a field-specific message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
