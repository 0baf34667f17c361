package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOrderStatus(t *testing.T) {
	for _, s := range []string{"pending", "processing", "shipped", "delivered", "cancelled"} {
		st, ok := ParseOrderStatus(s)
		assert.True(t, ok, s)
		assert.Equal(t, OrderStatus(s), st)
	}
	for _, s := range []string{"", "bogus", "Pending", "SHIPPED"} {
		_, ok := ParseOrderStatus(s)
		assert.False(t, ok, s)
	}
}

func TestErrorKinds(t *testing.T) {
	wrapped := fmt.Errorf("create order: %w", &InsufficientStockError{ProductID: 7, ProductName: "Rose", Requested: 3, Available: 1})
	assert.ErrorIs(t, wrapped, ErrInsufficientStock)
	assert.NotErrorIs(t, wrapped, ErrNotFound)

	var stockErr *InsufficientStockError
	if assert.True(t, errors.As(wrapped, &stockErr)) {
		assert.Equal(t, int64(7), stockErr.ProductID)
		assert.Equal(t, int64(1), stockErr.Available)
	}

	assert.ErrorIs(t, &NotFoundError{Entity: "product", ID: 9999}, ErrNotFound)
	assert.ErrorIs(t, NewValidationError("quantity", "must be positive"), ErrValidation)
	assert.ErrorIs(t, &ReferentialIntegrityError{Entity: "category", ID: 1, Dependents: 2}, ErrReferentialIntegrity)
	conflict := &ConflictError{Entity: "user", Field: "username", Value: "anna"}
	assert.ErrorIs(t, conflict, ErrConflict)
	assert.Equal(t, `user with username "anna" already exists`, conflict.Error())

	cause := errors.New("disk full")
	pe := &PersistenceError{Op: "insert order", Err: cause}
	assert.ErrorIs(t, pe, ErrPersistence)
	assert.ErrorIs(t, pe, cause)
	assert.Equal(t, "insert order: disk full", pe.Error())
}

func TestValidationErrorMessage(t *testing.T) {
	assert.Equal(t, "quantity: must be positive, got -1", NewValidationError("quantity", "must be positive, got %d", -1).Error())
	assert.Equal(t, "order has no lines", (&ValidationError{Message: "order has no lines"}).Error())
}

func TestStockLevelOf(t *testing.T) {
	cases := map[int64]StockLevel{
		-1: StockOut, 0: StockOut, 1: StockLow, 10: StockLow,
		11: StockNormal, 50: StockNormal, 51: StockAmple,
	}
	for stock, want := range cases {
		assert.Equal(t, want, StockLevelOf(stock), "stock %d", stock)
	}
}
