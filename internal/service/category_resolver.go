package service

import (
	"context"
	"errors"

	"flowershop/internal/domain"
	"flowershop/internal/repository"
)

// CategoryResolver находит категорию по точному имени или создаёт новую.
// Внутри одного батча импорта дубликатов не возникает, так как строки идут последовательно.
type CategoryResolver struct {
	categories repository.CategoryRepository
}

func NewCategoryResolver(categories repository.CategoryRepository) *CategoryResolver {
	return &CategoryResolver{categories: categories}
}

// ResolveOrCreate returns the category and whether it was created by this call.
func (r *CategoryResolver) ResolveOrCreate(ctx context.Context, name string) (*domain.Category, bool, error) {
	// same limits as a category created through CategoryService
	if err := validateCategoryName("category", name); err != nil {
		return nil, false, err
	}
	c, err := r.categories.FindByName(ctx, name)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, persistence("find category", err)
	}
	c = &domain.Category{Name: name, Description: "", IsActive: true}
	if err := r.categories.Create(ctx, c); err != nil {
		return nil, false, persistence("create category", err)
	}
	return c, true, nil
}
