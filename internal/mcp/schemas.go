package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/gocommerce/pkg/types"
)

func idProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
		"minimum":     1,
	}
}

func quantityProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Line quantity (1-999)",
		"minimum":     1,
		"maximum":     types.MaxItemQuantity,
	}
}

// userTool builds a tool whose only input is the acting user
func userTool(name, description string) mcp.Tool {
	return mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": idProperty("ID of the user whose cart or orders are used"),
			},
			Required: []string{"user_id"},
		},
	}
}

func getCartTool() mcp.Tool {
	return userTool("get_cart", "Return the user's cart with live prices and total, creating it if needed")
}

func clearCartTool() mcp.Tool {
	return userTool("clear_cart", "Empty the user's cart")
}

func placeOrderTool() mcp.Tool {
	return userTool("place_order", "Turn the user's cart into a Pending order and empty the cart")
}

func listOrdersTool() mcp.Tool {
	return userTool("list_orders", "List the user's orders, newest first")
}

func addCartItemTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_cart_item",
		Description: "Add a product to the user's cart, merging with an existing line",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id":    idProperty("ID of the cart owner"),
				"product_id": idProperty("ID of the product to add"),
				"quantity":   quantityProperty(),
			},
			Required: []string{"user_id", "product_id", "quantity"},
		},
	}
}

func updateCartItemTool() mcp.Tool {
	return mcp.Tool{
		Name:        "update_cart_item",
		Description: "Set the quantity of a product already in the user's cart",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id":    idProperty("ID of the cart owner"),
				"product_id": idProperty("ID of the product in the cart"),
				"quantity":   quantityProperty(),
			},
			Required: []string{"user_id", "product_id", "quantity"},
		},
	}
}

func removeCartItemTool() mcp.Tool {
	return mcp.Tool{
		Name:        "remove_cart_item",
		Description: "Remove a product from the user's cart; removing an absent product is a no-op",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id":    idProperty("ID of the cart owner"),
				"product_id": idProperty("ID of the product to remove"),
			},
			Required: []string{"user_id", "product_id"},
		},
	}
}

func getOrderTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_order",
		Description: "Return one order with its captured line items",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"order_id": idProperty("ID of the order"),
				"user_id":  idProperty("If set, the order must belong to this user"),
			},
			Required: []string{"order_id"},
		},
	}
}

func updateOrderStatusTool() mcp.Tool {
	statuses := make([]string, len(types.OrderStatuses))
	for i, s := range types.OrderStatuses {
		statuses[i] = string(s)
	}
	return mcp.Tool{
		Name:        "update_order_status",
		Description: "Change an order's status. Status names are case-insensitive",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"order_id": idProperty("ID of the order"),
				"status": map[string]interface{}{
					"type":        "string",
					"description": "New status",
					"enum":        statuses,
				},
			},
			Required: []string{"order_id", "status"},
		},
	}
}

func listProductsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_products",
		Description: "List catalog products one page at a time",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "1-based page number",
					"default":     1,
					"minimum":     1,
				},
				"page_size": map[string]interface{}{
					"type":        "integer",
					"description": "Products per page (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
		},
	}
}

func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report store row counts, schema version and database health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
