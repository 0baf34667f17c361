package service

import (
	"context"
	"errors"
	"slices"

	"flowershop/internal/domain"
	"flowershop/internal/repository"
)

// InventoryLedger единственная точка изменения остатков товара.
// Вызовы внутри одной транзакции TxManager откатываются вместе с ней.
type InventoryLedger struct {
	products repository.ProductRepository
}

func NewInventoryLedger(products repository.ProductRepository) *InventoryLedger {
	return &InventoryLedger{products: products}
}

// LockProducts берёт блокировки строк товаров по возрастанию id. Заказы с одними и теми же
// товарами в разном порядке строк тогда ждут друг друга, а не взаимоблокируются.
// Отсутствующие товары пропускаются: о них сообщит TryDecrement.
func (l *InventoryLedger) LockProducts(ctx context.Context, productIDs []int64) error {
	ids := slices.Clone(productIDs)
	slices.Sort(ids)
	for _, id := range slices.Compact(ids) {
		if _, err := l.products.GetForUpdate(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return persistence("lock product", err)
		}
	}
	return nil
}

// TryDecrement списывает quantity единиц товара или возвращает
// NotFoundError / InsufficientStockError без изменения остатка.
func (l *InventoryLedger) TryDecrement(ctx context.Context, productID, quantity int64) (*domain.Product, error) {
	if quantity <= 0 {
		return nil, domain.NewValidationError("quantity", "must be positive, got %d", quantity)
	}
	// row lock first so the check below sees the value the decrement will apply to
	p, err := l.products.GetForUpdate(ctx, productID)
	if err != nil {
		return nil, notFoundOr(err, "product", productID, "load product")
	}
	if p.Stock < quantity {
		return nil, &domain.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: quantity, Available: p.Stock}
	}

	updated, err := l.products.DecrementStock(ctx, productID, quantity)
	switch {
	case errors.Is(err, repository.ErrInsufficientStock):
		available := p.Stock
		if updated != nil {
			available = updated.Stock
		}
		return nil, &domain.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: quantity, Available: available}
	case err != nil:
		return nil, notFoundOr(err, "product", productID, "decrement stock")
	}
	return updated, nil
}

// SetStock выставляет остаток (ручная инвентаризация)
func (l *InventoryLedger) SetStock(ctx context.Context, productID, stock int64) (*domain.Product, error) {
	if stock < 0 {
		return nil, domain.NewValidationError("stock", "must not be negative, got %d", stock)
	}
	p, err := l.products.SetStock(ctx, productID, stock)
	if err != nil {
		return nil, notFoundOr(err, "product", productID, "set stock")
	}
	return p, nil
}
