package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/civicpulse/civicpulse-api/internal/service"
	"github.com/civicpulse/civicpulse-api/pkg/response"
)

// ExportHandler serves report exports for agents.
type ExportHandler struct {
	exports *service.ExportService
	logger  *zap.Logger
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(exports *service.ExportService, logger *zap.Logger) *ExportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportHandler{exports: exports, logger: logger}
}

// Export renders all reports as a CSV or PDF download.
// @Summary Export reports
// @Tags reports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Security BearerAuth
// @Router /reports/export [get]
func (h *ExportHandler) Export(c *gin.Context) {
	payload, contentType, filename, err := h.exports.Export(c.Request.Context(), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
