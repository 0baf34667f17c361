package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flowershop/internal/domain"
	"flowershop/internal/service"
)

type createOrderReq struct {
	CustomerName  string             `json:"customer_name"`
	CustomerPhone string             `json:"customer_phone"`
	Address       string             `json:"address"`
	Remark        string             `json:"remark"`
	Items         []domain.OrderLine `json:"items"`
}

type updateStatusReq struct {
	Status string `json:"status"`
}

// @Summary Create order
// @Description Decrements stock of every line and stores the order atomically.
// @Tags orders
// @Accept json
// @Produce json
// @Param input body createOrderReq true "Order"
// @Success 201 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /orders [post]
func (s *Server) createOrder(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	o, err := s.orders.CreateOrder(c.Request.Context(), service.CreateOrderInput{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Address:       req.Address,
		Remark:        req.Remark,
		Lines:         req.Items,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// @Summary List orders
// @Tags orders
// @Produce json
// @Param page query int false "Page, starting at 1"
// @Param pageSize query int false "Page size (max 100)"
// @Success 200 {object} page[domain.Order]
// @Router /orders [get]
func (s *Server) listOrders(c *gin.Context) {
	p, size := pageParams(c)
	list, total, err := s.orders.ListOrders(c.Request.Context(), p, size)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page[domain.Order]{Items: list, Total: total, Page: p, PageSize: size})
}

// @Summary Get order by id
// @Tags orders
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /orders/{id} [get]
func (s *Server) getOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	o, err := s.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary Get order by number
// @Tags orders
// @Produce json
// @Param orderNo path string true "Order number"
// @Success 200 {object} domain.Order
// @Failure 404 {object} map[string]string
// @Router /orders/number/{orderNo} [get]
func (s *Server) getOrderByNumber(c *gin.Context) {
	o, err := s.orders.GetOrderByNumber(c.Request.Context(), c.Param("orderNo"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary Update order status
// @Description Any of pending, processing, shipped, delivered, cancelled is accepted from any current status.
// @Tags orders
// @Accept json
// @Produce json
// @Param id path int true "Order ID"
// @Param input body updateStatusReq true "New status"
// @Success 200 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /orders/{id}/status [put]
func (s *Server) updateOrderStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	o, err := s.orders.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary Delete order
// @Tags orders
// @Param id path int true "Order ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /orders/{id} [delete]
func (s *Server) deleteOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.orders.DeleteOrder(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
