package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"flowershop/internal/domain"
)

func TestWriteInventoryXLSX(t *testing.T) {
	created := time.Date(2025, 3, 8, 9, 30, 0, 0, time.UTC)
	products := []domain.Product{
		{ID: 1, Name: "Red Rose", Stock: 0, Price: decimal.RequireFromString("12.50"), Active: true,
			Category: &domain.Category{Name: "Roses"}, CreatedAt: created},
		{ID: 2, Name: "Tulip", Stock: 70, Price: decimal.RequireFromString("3")},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteInventoryXLSX(&buf, products))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ID", "Name", "Stock", "Stock status", "Price", "Category", "Status", "Created at"}, rows[0])
	assert.Equal(t, []string{"1", "Red Rose", "0", "out of stock", "12.5", "Roses", "active", "2025-03-08 09:30:00"}, rows[1])
	assert.Equal(t, "ample", rows[2][3])
	assert.Equal(t, "uncategorized", rows[2][5])
	assert.Equal(t, "inactive", rows[2][6])
}

func TestWriteInventoryXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInventoryXLSX(&buf, nil))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "inventory_report_2025-03-08.xlsx", FileName(time.Date(2025, 3, 8, 23, 0, 0, 0, time.UTC)))
}
