package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"flowershop/internal/domain"
	"flowershop/internal/repository"
	"flowershop/internal/service"
)

func init() { gin.SetMode(gin.TestMode) }

func setupServer(t *testing.T) *Server {
	t.Helper()
	store := repository.NewMemory()
	ledger := service.NewInventoryLedger(store.Products)
	products := service.NewProductService(store.Products, store.Categories, ledger, store.Tx)
	guard := service.NewCategoryGuard(store.Categories, store.Products, store.Tx, nil)
	return NewServer(Deps{
		Products:   products,
		Categories: service.NewCategoryService(store.Categories, guard),
		Orders:     service.NewOrderService(ledger, store.Orders, store.Tx),
		Imports:    service.NewImportService(service.NewCategoryResolver(store.Categories), products, store.Tx, nil),
		Users:      service.NewUserService(store.Users, service.WithPasswordCost(bcrypt.MinCost)),
	})
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// seed creates category 1 and product 1 with the given stock.
func seed(t *testing.T, s *Server, stock int) {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/v1/categories", map[string]any{"name": "Roses"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = doJSON(t, s, http.MethodPost, "/api/v1/products", map[string]any{
		"name": "Red Rose", "price": "12.50", "stock": stock, "category_id": 1,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestProductFlow(t *testing.T) {
	s := setupServer(t)
	seed(t, s, 5)

	w := doJSON(t, s, http.MethodGet, "/api/v1/products/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	p := decode[map[string]any](t, w)
	assert.Equal(t, "Red Rose", p["name"])
	assert.Equal(t, "Roses", p["category"].(map[string]any)["name"])

	w = doJSON(t, s, http.MethodPut, "/api/v1/products/1", map[string]any{"name": "White Rose", "stock": 7})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	p = decode[map[string]any](t, w)
	assert.Equal(t, "White Rose", p["name"])
	assert.EqualValues(t, 7, p["stock"])

	w = doJSON(t, s, http.MethodGet, "/api/v1/products?q=white&page=1&pageSize=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pg := decode[map[string]any](t, w)
	assert.EqualValues(t, 1, pg["total"])
	assert.EqualValues(t, 5, pg["page_size"])

	w = doJSON(t, s, http.MethodGet, "/api/v1/products/search?keyword=rose", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]any](t, w), 1)

	w = doJSON(t, s, http.MethodGet, "/api/v1/products/category/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]any](t, w), 1)

	w = doJSON(t, s, http.MethodDelete, "/api/v1/products/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, s, http.MethodGet, "/api/v1/products/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrderFlow(t *testing.T) {
	s := setupServer(t)
	seed(t, s, 5)

	order := map[string]any{
		"customer_name": "Anna", "customer_phone": "123", "address": "Lenina 1",
		"items": []map[string]any{{"product_id": 1, "quantity": 3}},
	}
	w := doJSON(t, s, http.MethodPost, "/api/v1/orders", order)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	o := decode[map[string]any](t, w)
	assert.Equal(t, "pending", o["status"])
	assert.Equal(t, "37.5", o["total_amount"])
	orderNo := o["order_no"].(string)

	w = doJSON(t, s, http.MethodGet, "/api/v1/orders/number/"+orderNo, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPut, "/api/v1/orders/1/status", map[string]any{"status": "shipped"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "shipped", decode[map[string]any](t, w)["status"])

	w = doJSON(t, s, http.MethodPut, "/api/v1/orders/1/status", map[string]any{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(t, s, http.MethodPut, "/api/v1/orders/9999/status", map[string]any{"status": "shipped"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 2 left in stock
	w = doJSON(t, s, http.MethodPost, "/api/v1/orders", order)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["error"], "insufficient stock")

	w = doJSON(t, s, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["total"])

	w = doJSON(t, s, http.MethodDelete, "/api/v1/orders/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, s, http.MethodGet, "/api/v1/orders/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCategoryDeleteGuarded(t *testing.T) {
	s := setupServer(t)
	seed(t, s, 1)

	w := doJSON(t, s, http.MethodGet, "/api/v1/categories/1/can-delete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["can_delete"])

	w = doJSON(t, s, http.MethodDelete, "/api/v1/categories/1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	require.Equal(t, http.StatusNoContent, doJSON(t, s, http.MethodDelete, "/api/v1/products/1", nil).Code)
	w = doJSON(t, s, http.MethodDelete, "/api/v1/categories/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, s, http.MethodGet, "/api/v1/categories/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func upload(t *testing.T, s *Server, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func TestImportProducts(t *testing.T) {
	s := setupServer(t)
	csv := "name,price,stock,category\n" +
		"Red Rose,12.5,10,Roses\n" +
		",3,1,Roses\n" +
		"Tulip,3.2,4,Tulips\n"
	w := upload(t, s, "products.csv", []byte(csv))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rep := decode[map[string]any](t, w)
	assert.EqualValues(t, 3, rep["total"])
	assert.EqualValues(t, 2, rep["imported"])
	assert.EqualValues(t, 1, rep["failed"])
	assert.Equal(t, []any{"row 2 failed: name: is required"}, rep["errors"])

	w = doJSON(t, s, http.MethodGet, "/api/v1/categories", nil)
	assert.Len(t, decode[[]any](t, w), 2)

	w = upload(t, s, "products.txt", []byte(csv))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/import", nil)
	w = httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportInventory(t *testing.T) {
	s := setupServer(t)
	seed(t, s, 3)

	w := doJSON(t, s, http.MethodGet, "/api/v1/inventory/export?stockStatus=low", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "inventory_report_")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Inventory")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Red Rose", rows[1][1])

	w = doJSON(t, s, http.MethodGet, "/api/v1/inventory/export?stockStatus=plenty", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHTTP_BadRequests(t *testing.T) {
	s := setupServer(t)
	for _, path := range []string{"/api/v1/products/abc", "/api/v1/orders/0", "/api/v1/categories/-1"} {
		w := doJSON(t, s, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/orders", map[string]any{"customer_name": "A", "items": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/products", map[string]any{"name": "", "price": 1, "category_id": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestID(t *testing.T) {
	s := setupServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil)
	req.Header.Set(requestIDHeader, "req-42")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(requestIDHeader))

	w = doJSON(t, s, http.MethodGet, "/api/v1/categories", nil)
	assert.Len(t, w.Header().Get(requestIDHeader), 36)
}

func TestMapErrorToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError("status", "unknown"), http.StatusBadRequest},
		{&domain.NotFoundError{Entity: "order", ID: 9999}, http.StatusNotFound},
		{fmt.Errorf("create order: %w", &domain.InsufficientStockError{ProductID: 1}), http.StatusConflict},
		{&domain.ReferentialIntegrityError{Entity: "category", ID: 1, Dependents: 2}, http.StatusConflict},
		{&domain.ConflictError{Entity: "user", Field: "username", Value: "anna"}, http.StatusConflict},
		{&domain.PersistenceError{Op: "insert order", Err: errors.New("disk full")}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, mapErrorToStatus(c.err), c.err.Error())
	}
}

func TestUserFlow(t *testing.T) {
	s := setupServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/users", map[string]any{
		"username": "anna", "password": "secret1", "email": "anna@example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	u := decode[map[string]any](t, w)
	assert.Equal(t, "anna", u["username"])
	assert.EqualValues(t, 0, u["role"])
	assert.NotContains(t, u, "password")
	id := int64(u["id"].(float64))

	w = doJSON(t, s, http.MethodPost, "/api/v1/users", map[string]any{"username": "anna", "password": "secret2"})
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	w = doJSON(t, s, http.MethodPost, "/api/v1/users", map[string]any{"username": "al", "password": "secret2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPut, fmt.Sprintf("/api/v1/users/%d", id), map[string]any{"role": 1, "active": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	u = decode[map[string]any](t, w)
	assert.EqualValues(t, 1, u["role"])
	assert.Equal(t, false, u["active"])

	w = doJSON(t, s, http.MethodGet, "/api/v1/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]any](t, w), 1)

	w = doJSON(t, s, http.MethodDelete, fmt.Sprintf("/api/v1/users/%d", id), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/v1/users/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, s, http.MethodGet, "/api/v1/users/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
