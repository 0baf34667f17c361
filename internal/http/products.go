package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"flowershop/internal/domain"
	"flowershop/internal/service"
)

type productReq struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" swaggertype:"string"`
	Stock       *int64           `json:"stock"`
	Image       *string          `json:"image"`
	CategoryID  *int64           `json:"category_id"`
	Active      *bool            `json:"active"`
}

func (r productReq) input() service.ProductInput {
	return service.ProductInput{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		Image:       r.Image,
		CategoryID:  r.CategoryID,
		Active:      r.Active,
	}
}

// @Summary Create product
// @Tags products
// @Accept json
// @Produce json
// @Param input body productReq true "Product"
// @Success 201 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /products [post]
func (s *Server) createProduct(c *gin.Context) {
	var req productReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := s.products.Create(c.Request.Context(), req.input())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary Get product by id
// @Tags products
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /products/{id} [get]
func (s *Server) getProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	p, err := s.products.GetByID(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Update product
// @Description Omitted fields keep their value. Stock, if present, is set through the inventory ledger.
// @Tags products
// @Accept json
// @Produce json
// @Param id path int true "Product ID"
// @Param input body productReq true "Fields to change"
// @Success 200 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /products/{id} [put]
func (s *Server) updateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req productReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := s.products.Update(c.Request.Context(), id, req.input())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Delete product
// @Tags products
// @Param id path int true "Product ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /products/{id} [delete]
func (s *Server) deleteProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.products.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary List products
// @Tags products
// @Produce json
// @Param q query string false "Name or description contains"
// @Param category_id query int false "Category ID"
// @Param page query int false "Page, starting at 1"
// @Param pageSize query int false "Page size (max 100)"
// @Success 200 {object} page[domain.Product]
// @Router /products [get]
func (s *Server) listProducts(c *gin.Context) {
	p, size := pageParams(c)
	q := service.ProductQuery{Page: p, PageSize: size, Keyword: c.Query("q")}
	if v := c.Query("category_id"); v != "" {
		id, err := parseID(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category_id"})
			return
		}
		q.CategoryID = id
	}
	list, total, err := s.products.List(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page[domain.Product]{Items: list, Total: total, Page: p, PageSize: size})
}

// @Summary Search products
// @Tags products
// @Produce json
// @Param keyword query string true "Name or description contains"
// @Success 200 {array} domain.Product
// @Router /products/search [get]
func (s *Server) searchProducts(c *gin.Context) {
	list, _, err := s.products.List(c.Request.Context(), service.ProductQuery{Keyword: c.Query("keyword"), PageSize: 100})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary List products of a category
// @Tags products
// @Produce json
// @Param categoryId path int true "Category ID"
// @Success 200 {array} domain.Product
// @Failure 404 {object} map[string]string
// @Router /products/category/{categoryId} [get]
func (s *Server) listProductsByCategory(c *gin.Context) {
	id, ok := idParam(c, "categoryId")
	if !ok {
		return
	}
	list, err := s.products.ListByCategory(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
