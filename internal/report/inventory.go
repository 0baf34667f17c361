// Package report строит выгрузки складских остатков.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"flowershop/internal/domain"
)

// SheetName лист с отчётом об остатках
const SheetName = "Inventory"

var header = []any{"ID", "Name", "Stock", "Stock status", "Price", "Category", "Status", "Created at"}

var columnWidths = []float64{10, 24, 10, 14, 12, 18, 10, 20}

func stockStatusText(level domain.StockLevel) string {
	switch level {
	case domain.StockOut:
		return "out of stock"
	case domain.StockLow:
		return "low"
	case domain.StockNormal:
		return "normal"
	default:
		return "ample"
	}
}

// WriteInventoryXLSX пишет книгу с одним листом Inventory в w
func WriteInventoryXLSX(w io.Writer, products []domain.Product) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return err
	}
	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return err
	}

	for i, p := range products {
		category := "uncategorized"
		if p.Category != nil {
			category = p.Category.Name
		}
		status := "inactive"
		if p.Active {
			status = "active"
		}
		price, _ := p.Price.Float64()
		row := []any{
			p.ID,
			p.Name,
			p.Stock,
			stockStatusText(domain.StockLevelOf(p.Stock)),
			price,
			category,
			status,
			formatTime(p.CreatedAt),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return f.Write(w)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateTime)
}

// FileName имя файла выгрузки на дату
func FileName(now time.Time) string {
	return fmt.Sprintf("inventory_report_%s.xlsx", now.Format(time.DateOnly))
}
