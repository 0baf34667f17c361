package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"flowershop/internal/domain"
	"flowershop/internal/importer"
	"flowershop/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type importResp struct {
	Total int `json:"total"`
	domain.ImportReport
}

// @Summary Import products from a file
// @Description CSV or XLSX with a header row. Each row is imported on its own; failures are reported per row.
// @Tags products
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "products.csv or products.xlsx"
// @Success 200 {object} importResp
// @Failure 400 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Router /products/import [post]
func (s *Server) importProducts(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.importMaxBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", s.importMaxBytes)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if _, err := importer.FormatOf(fh.Filename); err != nil {
		s.fail(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer f.Close()

	rows, err := importer.Parse(fh.Filename, f)
	if err != nil {
		s.fail(c, err)
		return
	}
	rep, err := s.imports.ImportBatch(c.Request.Context(), rows)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, importResp{Total: len(rows), ImportReport: rep})
}

// @Summary Export inventory report
// @Tags inventory
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param keyword query string false "Name or description contains"
// @Param stockStatus query string false "out_of_stock, low, normal or ample"
// @Success 200 {file} file
// @Failure 400 {object} map[string]string
// @Router /inventory/export [get]
func (s *Server) exportInventory(c *gin.Context) {
	list, err := s.products.ListForExport(c.Request.Context(), c.Query("keyword"), c.Query("stockStatus"))
	if err != nil {
		s.fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteInventoryXLSX(&buf, list); err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName(time.Now())))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
