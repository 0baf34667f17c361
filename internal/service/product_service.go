package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"flowershop/internal/domain"
	"flowershop/internal/repository"
)

// ProductService инкапсулирует бизнес-логику вокруг товаров
type ProductService struct {
	repo       repository.ProductRepository
	categories repository.CategoryRepository
	ledger     *InventoryLedger
	tx         repository.TxManager
}

func NewProductService(repo repository.ProductRepository, categories repository.CategoryRepository, ledger *InventoryLedger, tx repository.TxManager) *ProductService {
	return &ProductService{repo: repo, categories: categories, ledger: ledger, tx: tx}
}

// ProductInput поля товара; nil означает "не менять" при обновлении
type ProductInput struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int64
	Image       *string
	CategoryID  *int64
	Active      *bool
}

// ProductQuery параметры постраничного списка
type ProductQuery struct {
	Page       int
	PageSize   int
	Keyword    string
	CategoryID int64
}

// maxPrice верхняя граница колонки decimal(10,2)
var maxPrice = decimal.RequireFromString("99999999.99")

// validatePrice rejects values the decimal(10,2) column would round or overflow.
func validatePrice(field string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return domain.NewValidationError(field, "must be positive")
	}
	if !price.Equal(price.Round(2)) {
		return domain.NewValidationError(field, "must have at most 2 decimal places, got %s", price.String())
	}
	if price.GreaterThan(maxPrice) {
		return domain.NewValidationError(field, "must not exceed %s", maxPrice.StringFixed(2))
	}
	return nil
}

func validateProduct(p *domain.Product) error {
	if p.Name == "" {
		return domain.NewValidationError("name", "is required")
	}
	if utf8.RuneCountInString(p.Name) > 100 {
		return domain.NewValidationError("name", "must be at most 100 characters")
	}
	if err := validatePrice("price", p.Price); err != nil {
		return err
	}
	if p.Stock < 0 {
		return domain.NewValidationError("stock", "must not be negative")
	}
	if p.CategoryID <= 0 {
		return domain.NewValidationError("category", "is required")
	}
	return nil
}

func applyProductInput(p *domain.Product, in ProductInput) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Image != nil {
		p.Image = strings.TrimSpace(*in.Image)
	}
	if in.CategoryID != nil {
		p.CategoryID = *in.CategoryID
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
}

// createInTx inserts p while holding a share lock on its category. Caller runs it inside a transaction.
func (s *ProductService) createInTx(ctx context.Context, p *domain.Product) error {
	c, err := s.categories.GetForShare(ctx, p.CategoryID)
	if err != nil {
		return notFoundOr(err, "category", p.CategoryID, "lock category")
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrForeignKey) {
			return &domain.NotFoundError{Entity: "category", ID: p.CategoryID}
		}
		return persistence("create product", err)
	}
	p.Category = c
	return nil
}

func (s *ProductService) Create(ctx context.Context, in ProductInput) (*domain.Product, error) {
	p := domain.Product{Active: true}
	applyProductInput(&p, in)
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if err := validateProduct(&p); err != nil {
		return nil, err
	}
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return s.createInTx(ctx, &p)
	})
	if err != nil {
		return nil, persistence("create product", err)
	}
	return &p, nil
}

func (s *ProductService) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	if id <= 0 {
		return nil, domain.NewValidationError("id", "must be positive")
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "product", id, "get product")
	}
	return p, nil
}

// Update меняет поля товара; остаток, если передан, выставляется через InventoryLedger
func (s *ProductService) Update(ctx context.Context, id int64, in ProductInput) (*domain.Product, error) {
	if in.Stock != nil && *in.Stock < 0 {
		return nil, domain.NewValidationError("stock", "must not be negative")
	}
	var updated *domain.Product
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err, "product", id, "lock product")
		}
		prevCategory := p.CategoryID
		applyProductInput(p, in)
		if err := validateProduct(p); err != nil {
			return err
		}
		if p.CategoryID != prevCategory {
			if _, err := s.categories.GetForShare(ctx, p.CategoryID); err != nil {
				return notFoundOr(err, "category", p.CategoryID, "lock category")
			}
		}
		if err := s.repo.Update(ctx, p); err != nil {
			if errors.Is(err, repository.ErrForeignKey) {
				return &domain.NotFoundError{Entity: "category", ID: p.CategoryID}
			}
			return notFoundOr(err, "product", id, "update product")
		}
		if in.Stock != nil {
			if _, err := s.ledger.SetStock(ctx, id, *in.Stock); err != nil {
				return err
			}
		}
		updated, err = s.repo.GetByID(ctx, id)
		return notFoundOr(err, "product", id, "reload product")
	})
	if err != nil {
		return nil, persistence("update product", err)
	}
	return updated, nil
}

func (s *ProductService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.NewValidationError("id", "must be positive")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "product", id, "delete product")
	}
	return nil
}

func (s *ProductService) List(ctx context.Context, q ProductQuery) ([]domain.Product, int64, error) {
	offset, limit := page(q.Page, q.PageSize)
	list, total, err := s.repo.List(ctx, repository.ProductFilter{
		NameSubstring: strings.TrimSpace(q.Keyword),
		CategoryID:    q.CategoryID,
		Offset:        offset,
		Limit:         limit,
	})
	if err != nil {
		return nil, 0, persistence("list products", err)
	}
	return list, total, nil
}

func (s *ProductService) ListByCategory(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	if _, err := s.categories.GetByID(ctx, categoryID); err != nil {
		return nil, notFoundOr(err, "category", categoryID, "get category")
	}
	list, _, err := s.repo.List(ctx, repository.ProductFilter{CategoryID: categoryID})
	if err != nil {
		return nil, persistence("list products", err)
	}
	return list, nil
}

// ListForExport все товары для отчёта с фильтром по ключевому слову и уровню остатка
func (s *ProductService) ListForExport(ctx context.Context, keyword, level string) ([]domain.Product, error) {
	var want domain.StockLevel
	if level != "" {
		want = domain.StockLevel(level)
		switch want {
		case domain.StockOut, domain.StockLow, domain.StockNormal, domain.StockAmple:
		default:
			return nil, domain.NewValidationError("stockStatus", "unknown stock status %q", level)
		}
	}
	list, _, err := s.repo.List(ctx, repository.ProductFilter{NameSubstring: strings.TrimSpace(keyword)})
	if err != nil {
		return nil, persistence("list products", err)
	}
	if want == "" {
		return list, nil
	}
	out := make([]domain.Product, 0, len(list))
	for _, p := range list {
		if domain.StockLevelOf(p.Stock) == want {
			out = append(out, p)
		}
	}
	return out, nil
}
