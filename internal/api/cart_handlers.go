package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AddItemRequest is the body of POST /api/cart/items
type AddItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required,min=1"`
	Quantity  int   `json:"quantity"`
}

// UpdateItemRequest is the body of PUT /api/cart/items/:productId
type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

// GET /api/cart
func (s *Server) getCart(c *gin.Context) {
	view, err := s.svc.Carts.GetOrCreateCart(c.Request.Context(), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// POST /api/cart/items
func (s *Server) addCartItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	view, err := s.svc.Carts.AddItem(c.Request.Context(), currentUser(c), req.ProductID, req.Quantity)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// PUT /api/cart/items/:productId
func (s *Server) updateCartItem(c *gin.Context) {
	productID, ok := idParam(c, "productId")
	if !ok {
		return
	}
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	view, err := s.svc.Carts.UpdateItem(c.Request.Context(), currentUser(c), productID, req.Quantity)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DELETE /api/cart/items/:productId
func (s *Server) removeCartItem(c *gin.Context) {
	productID, ok := idParam(c, "productId")
	if !ok {
		return
	}
	view, err := s.svc.Carts.RemoveItem(c.Request.Context(), currentUser(c), productID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DELETE /api/cart
func (s *Server) clearCart(c *gin.Context) {
	view, err := s.svc.Carts.ClearCart(c.Request.Context(), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
