package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"flowershop/internal/domain"
	"flowershop/internal/service"
)

// Deps зависимости HTTP-слоя
type Deps struct {
	Products       *service.ProductService
	Categories     *service.CategoryService
	Orders         *service.OrderService
	Imports        *service.ImportService
	Users          *service.UserService
	Logger         *zap.Logger
	ImportMaxBytes int64
}

type Server struct {
	engine         *gin.Engine
	products       *service.ProductService
	categories     *service.CategoryService
	orders         *service.OrderService
	imports        *service.ImportService
	users          *service.UserService
	logger         *zap.Logger
	importMaxBytes int64
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.ImportMaxBytes <= 0 {
		d.ImportMaxBytes = 10 << 20
	}
	r := gin.New()
	r.Use(requestLogger(d.Logger), gin.Recovery())
	s := &Server{
		engine:         r,
		products:       d.Products,
		categories:     d.Categories,
		orders:         d.Orders,
		imports:        d.Imports,
		users:          d.Users,
		logger:         d.Logger,
		importMaxBytes: d.ImportMaxBytes,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := s.engine.Group("/api/v1")
	{
		categories := v1.Group("/categories")
		categories.POST("", s.createCategory)
		categories.GET("", s.listCategories)
		categories.GET(":id", s.getCategory)
		categories.GET(":id/can-delete", s.canDeleteCategory)
		categories.PUT(":id", s.updateCategory)
		categories.DELETE(":id", s.deleteCategory)

		products := v1.Group("/products")
		products.POST("", s.createProduct)
		products.GET("", s.listProducts)
		products.GET("search", s.searchProducts)
		products.GET("category/:categoryId", s.listProductsByCategory)
		products.POST("import", s.importProducts)
		products.GET(":id", s.getProduct)
		products.PUT(":id", s.updateProduct)
		products.DELETE(":id", s.deleteProduct)

		orders := v1.Group("/orders")
		orders.POST("", s.createOrder)
		orders.GET("", s.listOrders)
		orders.GET("number/:orderNo", s.getOrderByNumber)
		orders.GET(":id", s.getOrder)
		orders.PUT(":id/status", s.updateOrderStatus)
		orders.DELETE(":id", s.deleteOrder)

		users := v1.Group("/users")
		users.POST("", s.createUser)
		users.GET("", s.listUsers)
		users.GET(":id", s.getUser)
		users.PUT(":id", s.updateUser)
		users.DELETE(":id", s.deleteUser)

		v1.GET("/inventory/export", s.exportInventory)
	}
}

// page ответ постраничного списка
type page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

func pageParams(c *gin.Context) (int, int) {
	p, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("pageSize", "10"))
	if p < 1 {
		p = 1
	}
	if size < 1 || size > 100 {
		size = 10
	}
	return p, size
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// idParam parses a positive path id or writes 400.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := parseID(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func (s *Server) fail(c *gin.Context, err error) {
	status := mapErrorToStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrReferentialIntegrity),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
