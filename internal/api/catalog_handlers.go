package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dshills/gocommerce/pkg/types"
)

// ProductRequest is the body of product create and update
type ProductRequest struct {
	Name          string           `json:"name" binding:"required"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	CategoryID    int64            `json:"category_id" binding:"required,min=1"`
	StockQuantity int              `json:"stock_quantity" binding:"min=0"`
	ImageURL      string           `json:"image_url"`
	Attributes    types.Attributes `json:"attributes"`
}

func (r ProductRequest) product(id int64) *types.Product {
	return &types.Product{
		ID:            id,
		Name:          r.Name,
		Description:   r.Description,
		Price:         r.Price,
		CategoryID:    r.CategoryID,
		StockQuantity: r.StockQuantity,
		ImageURL:      r.ImageURL,
		Attributes:    r.Attributes,
	}
}

// CategoryRequest is the body of category create and update
type CategoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// ProductSummary is a compact product view with a condensed description
type ProductSummary struct {
	ProductID           int64           `json:"product_id"`
	Name                string          `json:"name"`
	OriginalDescription string          `json:"original_description"`
	Summary             string          `json:"summary"`
	Price               decimal.Decimal `json:"price"`
	CategoryName        string          `json:"category_name"`
	InStock             bool            `json:"in_stock"`
}

// summaryMaxRunes bounds the length of a description summary, excluding the ellipsis
const summaryMaxRunes = 100

// summarize condenses a description to its first sentence, cut back to a
// word boundary and suffixed with "..." when still longer than summaryMaxRunes.
func summarize(description string) string {
	text := strings.Join(strings.Fields(description), " ")
	if end := sentenceEnd(text); end > 0 {
		text = text[:end]
	}

	runes := []rune(text)
	if len(runes) <= summaryMaxRunes {
		return text
	}
	cut := string(runes[:summaryMaxRunes])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + "..."
}

// sentenceEnd returns the byte offset just past the first sentence
// terminator followed by a space, or -1
func sentenceEnd(text string) int {
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' {
				return i + 1
			}
		}
	}
	return -1
}

// idParam parses a positive integer path parameter, writing a 400 on failure
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// queryInt reads an integer query parameter, falling back to def when absent
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

// GET /api/products?page=1&pageSize=10
func (s *Server) listProducts(c *gin.Context) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	pageSize, ok := queryInt(c, "pageSize", 0)
	if !ok {
		return
	}

	products, err := s.svc.Catalog.ListProducts(c.Request.Context(), page, pageSize)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// GET /api/products/:id
func (s *Server) getProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	product, err := s.svc.Catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// GET /api/products/:id/summary
func (s *Server) getProductSummary(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	product, err := s.svc.Catalog.GetProduct(ctx, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	category, err := s.svc.Catalog.GetCategory(ctx, product.CategoryID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ProductSummary{
		ProductID:           product.ID,
		Name:                product.Name,
		OriginalDescription: product.Description,
		Summary:             summarize(product.Description),
		Price:               product.Price,
		CategoryName:        category.Name,
		InStock:             product.StockQuantity > 0,
	})
}

// POST /api/products
func (s *Server) createProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	product, err := s.svc.Catalog.CreateProduct(c.Request.Context(), req.product(0))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// PUT /api/products/:id
func (s *Server) updateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	product, err := s.svc.Catalog.UpdateProduct(c.Request.Context(), req.product(id))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// DELETE /api/products/:id
func (s *Server) deleteProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/categories
func (s *Server) listCategories(c *gin.Context) {
	categories, err := s.svc.Catalog.ListCategories(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

// GET /api/categories/:id
func (s *Server) getCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	category, err := s.svc.Catalog.GetCategory(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

// POST /api/categories
func (s *Server) createCategory(c *gin.Context) {
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	category, err := s.svc.Catalog.CreateCategory(c.Request.Context(), &types.Category{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

// PUT /api/categories/:id
func (s *Server) updateCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	category, err := s.svc.Catalog.UpdateCategory(c.Request.Context(), &types.Category{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

// DELETE /api/categories/:id
func (s *Server) deleteCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Catalog.DeleteCategory(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
