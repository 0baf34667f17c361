package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"flowershop/internal/domain"
	"flowershop/internal/repository"
)

// CategoryService CRUD категорий; удаление идёт через CategoryGuard
type CategoryService struct {
	repo  repository.CategoryRepository
	guard *CategoryGuard
}

func NewCategoryService(repo repository.CategoryRepository, guard *CategoryGuard) *CategoryService {
	return &CategoryService{repo: repo, guard: guard}
}

// CategoryInput поля категории; nil означает "не менять" при обновлении
type CategoryInput struct {
	Name        *string
	Description *string
	IsActive    *bool
}

// maxCategoryName совпадает с size:50 колонки categories.name
const maxCategoryName = 50

// validateCategoryName проверяет имя категории; field попадает в текст ошибки
func validateCategoryName(field, name string) error {
	if name == "" {
		return domain.NewValidationError(field, "is required")
	}
	if utf8.RuneCountInString(name) > maxCategoryName {
		return domain.NewValidationError(field, "must be at most %d characters", maxCategoryName)
	}
	return nil
}

func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (*domain.Category, error) {
	c := domain.Category{IsActive: true}
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if err := validateCategoryName("name", c.Name); err != nil {
		return nil, err
	}
	if in.Description != nil {
		c.Description = strings.TrimSpace(*in.Description)
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	if err := s.repo.Create(ctx, &c); err != nil {
		return nil, persistence("create category", err)
	}
	return &c, nil
}

func (s *CategoryService) GetByID(ctx context.Context, id int64) (*domain.Category, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "category", id, "get category")
	}
	return c, nil
}

func (s *CategoryService) List(ctx context.Context) ([]domain.Category, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, persistence("list categories", err)
	}
	return list, nil
}

func (s *CategoryService) Update(ctx context.Context, id int64, in CategoryInput) (*domain.Category, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "category", id, "get category")
	}
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
		if err := validateCategoryName("name", c.Name); err != nil {
			return nil, err
		}
	}
	if in.Description != nil {
		c.Description = strings.TrimSpace(*in.Description)
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, notFoundOr(err, "category", id, "update category")
	}
	return c, nil
}

func (s *CategoryService) CanDelete(ctx context.Context, id int64) (bool, error) {
	return s.guard.CanDelete(ctx, id)
}

func (s *CategoryService) Delete(ctx context.Context, id int64) error {
	return s.guard.DeleteCategory(ctx, id)
}
