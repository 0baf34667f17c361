// Package importer разбирает загруженные файлы (CSV, XLSX) в строки импорта товаров.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"flowershop/internal/domain"
)

// Format тип входного файла
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// допустимые заголовки колонок, в порядке приоритета
var aliases = map[string][]string{
	"name":        {"name", "商品名称", "NAME", "product_name"},
	"description": {"description", "商品描述", "DESCRIPTION", "product_description"},
	"price":       {"price", "商品价格", "PRICE", "product_price"},
	"stock":       {"stock", "商品库存", "STOCK", "product_stock"},
	"image":       {"image", "商品图片", "IMAGE", "product_image", "image_url", "图片链接", "IMAGE_URL"},
	"category":    {"category", "分类名称", "CATEGORY", "category_name", "分类"},
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FormatOf определяет формат по расширению имени файла
func FormatOf(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", domain.NewValidationError("file", "unsupported file type %q, expected .csv or .xlsx", filepath.Ext(filename))
	}
}

// Parse читает файл в формате, определённом по имени
func Parse(filename string, r io.Reader) ([]domain.ImportRow, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}
	if format == FormatXLSX {
		return ParseXLSX(r)
	}
	return ParseCSV(r)
}

// ParseCSV первая строка заголовок, пустые строки пропускаются
func ParseCSV(r io.Reader) ([]domain.ImportRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, domain.NewValidationError("file", "malformed csv: %v", parseErr)
		}
		return nil, err
	}
	return fromRecords(records), nil
}

// ParseXLSX читает первый лист книги
func ParseXLSX(r io.Reader) ([]domain.ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, domain.NewValidationError("file", "malformed xlsx: %v", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, domain.NewValidationError("file", "workbook has no sheets")
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, domain.NewValidationError("file", "read sheet %q: %v", sheet, err)
	}
	return fromRecords(records), nil
}

func fromRecords(records [][]string) []domain.ImportRow {
	rows := make([]domain.ImportRow, 0, len(records))
	if len(records) == 0 {
		return rows
	}
	columns := resolveColumns(records[0])
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		get := func(field string) string {
			i, ok := columns[field]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		rows = append(rows, domain.ImportRow{
			Name:         get("name"),
			Description:  get("description"),
			Price:        parsePrice(get("price")),
			Stock:        parseStock(get("stock")),
			Image:        get("image"),
			CategoryName: get("category"),
		})
	}
	return rows
}

// resolveColumns maps each logical field to the index of its highest-priority header alias.
func resolveColumns(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, string(utf8BOM)))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	columns := make(map[string]int, len(aliases))
	for field, names := range aliases {
		for _, n := range names {
			if i, ok := index[n]; ok {
				columns[field] = i
				break
			}
		}
	}
	return columns
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// unparsable price becomes zero and is rejected later by row validation
func parsePrice(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseStock(s string) int64 {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}
