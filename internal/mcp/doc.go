// Package mcp implements a Model Context Protocol (MCP) server for gocommerce.
//
// The server lets an operator or assistant drive carts and orders for any
// user over stdio. It trusts its caller: tools take the acting user_id as an
// argument instead of a bearer token.
//
// # Tools
//
// Cart:
//   - get_cart: the user's cart with live prices and total
//   - add_cart_item: add or merge a product line
//   - update_cart_item: set the quantity of an existing line
//   - remove_cart_item: drop a line (no-op when absent)
//   - clear_cart: empty the cart
//
// Orders:
//   - place_order: check out the cart into a Pending order
//   - get_order: one order; with user_id, ownership is enforced
//   - list_orders: the user's orders, newest first
//   - update_order_status: Pending, Processing, Shipped, Delivered or Cancelled
//
// Store:
//   - list_products: one page of the catalog
//   - get_status: row counts, schema version and database health
//
// # Example
//
//	Request:
//	{
//	  "name": "add_cart_item",
//	  "arguments": {"user_id": 1, "product_id": 42, "quantity": 2}
//	}
//
//	Response:
//	{
//	  "id": 7,
//	  "user_id": 1,
//	  "items": [
//	    {"product_id": 42, "product_name": "Notebook", "quantity": 2,
//	     "unit_price": "9.99", "subtotal": "19.98"}
//	  ],
//	  "total_amount": "19.98"
//	}
//
// # Errors
//
// Failures are returned as *MCPError:
//
//	-32602  invalid or missing parameter, or a value that fails validation
//	-32603  internal error
//	-32001  product, cart item, order or user not found
//	-32002  conflict with stored state
//	-32003  invalid operation, e.g. placing an order from an empty cart
//	-32004  order belongs to another user
//
// Logs go to stderr; stdout carries the protocol.
package mcp
