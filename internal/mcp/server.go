package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/gocommerce/internal/cart"
	"github.com/dshills/gocommerce/internal/catalog"
	"github.com/dshills/gocommerce/internal/order"
	"github.com/dshills/gocommerce/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "gocommerce"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Services groups the application services exposed as tools
type Services struct {
	Storage storage.Storage
	Catalog *catalog.Service
	Carts   *cart.Service
	Orders  *order.Service
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	storage storage.Storage
	catalog *catalog.Service
	carts   *cart.Service
	orders  *order.Service
}

// NewServer creates a new MCP server instance. The caller owns the storage
// and closes it after Serve returns.
func NewServer(svc Services) *Server {
	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion),
		storage: svc.Storage,
		catalog: svc.Catalog,
		carts:   svc.Carts,
		orders:  svc.Orders,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	// Cart
	s.mcp.AddTool(getCartTool(), s.handleGetCart)
	s.mcp.AddTool(addCartItemTool(), s.handleAddCartItem)
	s.mcp.AddTool(updateCartItemTool(), s.handleUpdateCartItem)
	s.mcp.AddTool(removeCartItemTool(), s.handleRemoveCartItem)
	s.mcp.AddTool(clearCartTool(), s.handleClearCart)

	// Orders
	s.mcp.AddTool(placeOrderTool(), s.handlePlaceOrder)
	s.mcp.AddTool(getOrderTool(), s.handleGetOrder)
	s.mcp.AddTool(listOrdersTool(), s.handleListOrders)
	s.mcp.AddTool(updateOrderStatusTool(), s.handleUpdateOrderStatus)

	s.mcp.AddTool(listProductsTool(), s.handleListProducts)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
