package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"flowershop/internal/domain"
	"flowershop/internal/repository"
)

// ImportService загружает товары батчем. Каждая строка выполняется в собственной
// транзакции: ошибка одной строки не откатывает другие.
type ImportService struct {
	resolver *CategoryResolver
	products *ProductService
	tx       repository.TxManager
	logger   *zap.Logger
}

func NewImportService(resolver *CategoryResolver, products *ProductService, tx repository.TxManager, logger *zap.Logger) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{resolver: resolver, products: products, tx: tx, logger: logger}
}

func validateImportRow(r domain.ImportRow) error {
	if r.Name == "" {
		return domain.NewValidationError("name", "is required")
	}
	if r.CategoryName == "" {
		return domain.NewValidationError("category", "is required")
	}
	if err := validatePrice("price", r.Price); err != nil {
		return err
	}
	if r.Stock < 0 {
		return domain.NewValidationError("stock", "must not be negative")
	}
	return nil
}

// ImportBatch обрабатывает строки по порядку. Ошибка возвращается только при отмене контекста;
// ошибки строк попадают в отчёт как "row <n> failed: <message>".
func (s *ImportService) ImportBatch(ctx context.Context, rows []domain.ImportRow) (domain.ImportReport, error) {
	ctx, span := tracer.Start(ctx, "ImportService.ImportBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("import.rows", len(rows)))

	report := domain.ImportReport{Errors: []string{}}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.importRow(ctx, row); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("row %d failed: %s", i+1, err.Error()))
			s.logger.Warn("import row failed", zap.Int("row", i+1), zap.String("name", row.Name), zap.Error(err))
			continue
		}
		report.Imported++
	}

	span.SetAttributes(attribute.Int("import.imported", report.Imported), attribute.Int("import.failed", report.Failed))
	s.logger.Info("import finished",
		zap.Int("total", len(rows)),
		zap.Int("imported", report.Imported),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *ImportService) importRow(ctx context.Context, row domain.ImportRow) error {
	row.Name = strings.TrimSpace(row.Name)
	row.CategoryName = strings.TrimSpace(row.CategoryName)
	if err := validateImportRow(row); err != nil {
		return err
	}
	var (
		c       *domain.Category
		created bool
	)
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		c, created, err = s.resolver.ResolveOrCreate(ctx, row.CategoryName)
		if err != nil {
			return err
		}
		p := &domain.Product{
			Name:        row.Name,
			Description: strings.TrimSpace(row.Description),
			Price:       row.Price,
			Stock:       row.Stock,
			Image:       strings.TrimSpace(row.Image),
			CategoryID:  c.ID,
			Active:      true,
		}
		if err := validateProduct(p); err != nil {
			return err
		}
		return s.products.createInTx(ctx, p)
	})
	if err != nil {
		return err
	}
	if created {
		s.logger.Info("category created by import", zap.Int64("category_id", c.ID), zap.String("name", c.Name))
	}
	return nil
}
