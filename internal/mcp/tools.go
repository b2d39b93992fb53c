package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/gocommerce/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound         = -32001 // Product, cart item, order or user does not exist
	ErrorCodeConflict         = -32002 // Request conflicts with stored state
	ErrorCodeInvalidOperation = -32003 // Operation not allowed in the current state, e.g. empty cart
	ErrorCodeForbidden        = -32004 // Order belongs to another user
)

// handleGetCart handles the get_cart tool invocation
func (s *Server) handleGetCart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	userID, err := requireID(args, "user_id")
	if err != nil {
		return nil, err
	}

	view, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, toolError("failed to get cart", err)
	}
	return mcp.NewToolResultText(formatJSON(view)), nil
}

// handleAddCartItem handles the add_cart_item tool invocation
func (s *Server) handleAddCartItem(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	userID, err := requireID(args, "user_id")
	if err != nil {
		return nil, err
	}
	productID, err := requireID(args, "product_id")
	if err != nil {
		return nil, err
	}
	quantity, err := requireInt(args, "quantity")
	if err != nil {
		return nil, err
	}

	view, err := s.carts.AddItem(ctx, userID, productID, quantity)
	if err != nil {
		return nil, toolError("failed to add item", err)
	}
	return mcp.NewToolResultText(formatJSON(view)), nil
}

// handleUpdateCartItem handles the update_cart_item tool invocation
func (s *Server) handleUpdateCartItem(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	userID, err := requireID(args, "user_id")
	if err != nil {
		return nil, err
	}
	productID, err := requireID(args, "product_id")
	if err != nil {
		return nil, err
	}
	quantity, err := requireInt(args, "quantity")
	if err != nil {
		return nil, err
	}

	view, err := s.carts.UpdateItem(ctx, userID, productID, quantity)
	if err != nil {
		return nil, toolError("failed to update item", err)
	}
	return mcp.NewToolResultText(formatJSON(view)), nil
}

// handleRemoveCartItem handles the remove_cart_item tool invocation
func (s *Server) handleRemoveCartItem(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	userID, err := requireID(args, "user_id")
	if err != nil {
		return nil, err
	}
	productID, err := requireID(args, "product_id")
	if err != nil {
		return nil, err
	}

	view, err := s.carts.RemoveItem(ctx, userID, productID)
	if err != nil {
		return nil, toolError("failed to remove item", err)
	}
	return mcp.NewToolResultText(formatJSON(view)), nil
}

// handleClearCart handles the clear_cart tool invocation
func (s *Server) handleClearCart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	userID, err := requireID(args, "user_id")
	if err != nil {
		return nil, err
	}

	view, err := s.carts.ClearCart(ctx, userID)
	if err != nil {
		return nil, toolError("failed to clear cart", err)
	}
	return mcp.NewToolResultText(formatJSON(view)), nil
}

// handlePlaceOrder handles the place_order tool invocation
func (s *Server) handlePlaceOrder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	userID, err := requireID(args, "user_id")
	if err != nil {
		return nil, err
	}

	view, err := s.orders.CreateOrderFromCart(ctx, userID)
	if err != nil {
		return nil, toolError("failed to place order", err)
	}
	return mcp.NewToolResultText(formatJSON(view)), nil
}

// handleGetOrder handles the get_order tool invocation
func (s *Server) handleGetOrder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	orderID, err := requireID(args, "order_id")
	if err != nil {
		return nil, err
	}

	var view *types.OrderView
	if _, present := args["user_id"]; present {
		userID, idErr := requireID(args, "user_id")
		if idErr != nil {
			return nil, idErr
		}
		view, err = s.orders.GetOrderForUser(ctx, userID, orderID)
	} else {
		view, err = s.orders.GetOrder(ctx, orderID)
	}
	if err != nil {
		return nil, toolError("failed to get order", err)
	}
	return mcp.NewToolResultText(formatJSON(view)), nil
}

// handleListOrders handles the list_orders tool invocation
func (s *Server) handleListOrders(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	userID, err := requireID(args, "user_id")
	if err != nil {
		return nil, err
	}

	orders, err := s.orders.ListOrdersForUser(ctx, userID)
	if err != nil {
		return nil, toolError("failed to list orders", err)
	}
	response := map[string]interface{}{
		"count":  len(orders),
		"orders": orders,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleUpdateOrderStatus handles the update_order_status tool invocation
func (s *Server) handleUpdateOrderStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	orderID, err := requireID(args, "order_id")
	if err != nil {
		return nil, err
	}
	status, ok := args["status"].(string)
	if !ok || status == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "status parameter is required", map[string]interface{}{
			"param":  "status",
			"reason": "missing or empty",
		})
	}

	view, err := s.orders.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		return nil, toolError("failed to update order status", err)
	}
	return mcp.NewToolResultText(formatJSON(view)), nil
}

// handleListProducts handles the list_products tool invocation
func (s *Server) handleListProducts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	page := getIntDefault(args, "page", 1)
	pageSize := getIntDefault(args, "page_size", 0)

	products, err := s.catalog.ListProducts(ctx, page, pageSize)
	if err != nil {
		return nil, toolError("failed to list products", err)
	}
	response := map[string]interface{}{
		"page":     page,
		"count":    len(products),
		"products": products,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"schema_version": status.SchemaVersion,
		"statistics": map[string]interface{}{
			"categories":            status.Categories,
			"products":              status.Products,
			"users":                 status.Users,
			"carts":                 status.Carts,
			"orders":                status.Orders,
			"pending_notifications": status.PendingNotifications,
			"db_size_mb":            fmt.Sprintf("%.2f", status.SizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"foreign_keys_enabled": status.Health.ForeignKeysEnabled,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// toolError maps a service error onto an MCP error code
func toolError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, types.ErrCorruptData):
		// stored data is unreadable; report as internal
	case errors.Is(err, types.ErrNotFound):
		code = ErrorCodeNotFound
	case errors.Is(err, types.ErrConflict):
		code = ErrorCodeConflict
	case errors.Is(err, types.ErrInvalidOperation):
		code = ErrorCodeInvalidOperation
	case errors.Is(err, types.ErrValidation):
		code = ErrorCodeInvalidParams
	case errors.Is(err, types.ErrForbidden):
		code = ErrorCodeForbidden
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// arguments returns the tool arguments as a map
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// requireInt extracts a required integer parameter. JSON numbers arrive as
// float64; fractional values are rejected.
func requireInt(args map[string]interface{}, key string) (int, error) {
	var value int
	switch v := args[key].(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, invalidParam(key, "must be an integer", v)
		}
		value = int(v)
	case int:
		value = v
	case int64:
		value = int(v)
	case nil:
		return 0, newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing",
		})
	default:
		return 0, invalidParam(key, "must be an integer", v)
	}
	return value, nil
}

// requireID extracts a required positive identifier
func requireID(args map[string]interface{}, key string) (int64, error) {
	v, err := requireInt(args, key)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, invalidParam(key, "must be positive", v)
	}
	return int64(v), nil
}

func invalidParam(key, reason string, value interface{}) error {
	return newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("invalid %s", key), map[string]interface{}{
		"param":  key,
		"reason": reason,
		"value":  value,
	})
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}
