package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StatusRequest is the body of PUT /api/orders/:id/status
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// GET /api/orders
func (s *Server) listOrders(c *gin.Context) {
	orders, err := s.svc.Orders.ListOrdersForUser(c.Request.Context(), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// POST /api/orders places an order from the caller's cart
func (s *Server) createOrder(c *gin.Context) {
	view, err := s.svc.Orders.CreateOrderFromCart(c.Request.Context(), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// GET /api/orders/:id
func (s *Server) getOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	view, err := s.svc.Orders.GetOrderForUser(c.Request.Context(), currentUser(c), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// PUT /api/orders/:id/status
func (s *Server) updateOrderStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	view, err := s.svc.Orders.UpdateOrderStatusForUser(c.Request.Context(), currentUser(c), id, req.Status)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
