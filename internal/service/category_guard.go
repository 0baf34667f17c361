package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"flowershop/internal/domain"
	"flowershop/internal/repository"
)

// CategoryGuard не даёт удалить категорию, на которую ссылаются товары
type CategoryGuard struct {
	categories repository.CategoryRepository
	products   repository.ProductRepository
	tx         repository.TxManager
	logger     *zap.Logger
}

func NewCategoryGuard(categories repository.CategoryRepository, products repository.ProductRepository, tx repository.TxManager, logger *zap.Logger) *CategoryGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryGuard{categories: categories, products: products, tx: tx, logger: logger}
}

// CanDelete is advisory; DeleteCategory re-checks under lock.
func (g *CategoryGuard) CanDelete(ctx context.Context, categoryID int64) (bool, error) {
	if _, err := g.categories.GetByID(ctx, categoryID); err != nil {
		return false, notFoundOr(err, "category", categoryID, "get category")
	}
	n, err := g.products.CountByCategory(ctx, categoryID)
	if err != nil {
		return false, persistence("count products", err)
	}
	return n == 0, nil
}

// DeleteCategory locks the category row, counts dependents and deletes in one transaction.
// Product creation share-locks the same row, so no product can be attached in between.
func (g *CategoryGuard) DeleteCategory(ctx context.Context, categoryID int64) error {
	ctx, span := tracer.Start(ctx, "CategoryGuard.DeleteCategory")
	defer span.End()
	span.SetAttributes(attribute.Int64("category.id", categoryID))

	err := g.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := g.categories.GetForUpdate(ctx, categoryID); err != nil {
			return notFoundOr(err, "category", categoryID, "lock category")
		}
		n, err := g.products.CountByCategory(ctx, categoryID)
		if err != nil {
			return persistence("count products", err)
		}
		if n > 0 {
			return &domain.ReferentialIntegrityError{Entity: "category", ID: categoryID, Dependents: n}
		}
		err = g.categories.Delete(ctx, categoryID)
		if errors.Is(err, repository.ErrForeignKey) {
			// the storage constraint caught a reference the count did not see
			return &domain.ReferentialIntegrityError{Entity: "category", ID: categoryID, Dependents: 1}
		}
		return notFoundOr(err, "category", categoryID, "delete category")
	})
	if errors.Is(err, domain.ErrReferentialIntegrity) {
		g.logger.Info("category delete blocked", zap.Int64("category_id", categoryID), zap.Error(err))
	}
	return persistence("delete category", err)
}
