package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/civicpulse/civicpulse-api/internal/dto"
	"github.com/civicpulse/civicpulse-api/internal/service"
	appErrors "github.com/civicpulse/civicpulse-api/pkg/errors"
	"github.com/civicpulse/civicpulse-api/pkg/response"
)

// ReportHandler exposes the report endpoints.
type ReportHandler struct {
	reports *service.ReportService
	logger  *zap.Logger
}

// NewReportHandler constructs a ReportHandler.
func NewReportHandler(reports *service.ReportService, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{reports: reports, logger: logger}
}

// List returns every report, newest first.
// @Summary List reports
// @Tags reports
// @Produce json
// @Success 200 {object} response.Envelope{data=[]dto.ReportResponse}
// @Router /reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	reports, err := h.reports.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, map[string]interface{}{"count": len(reports)})
}

// Submit accepts a citizen report.
// @Summary Submit report
// @Tags reports
// @Accept json
// @Produce json
// @Param payload body dto.SubmitReportRequest true "Report"
// @Success 201 {object} response.Envelope{data=dto.SubmitReportResponse}
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /reports [post]
func (h *ReportHandler) Submit(c *gin.Context) {
	var req dto.SubmitReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid report payload"))
		return
	}

	resp, err := h.reports.Submit(c.Request.Context(), currentUID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// UpdateStatus changes a report's workflow status.
// @Summary Update report status
// @Tags reports
// @Accept json
// @Param id path string true "Report ID"
// @Param payload body dto.StatusUpdateRequest true "Status"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/{id}/status [patch]
func (h *ReportHandler) UpdateStatus(c *gin.Context) {
	var req dto.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status payload"))
		return
	}

	if err := h.reports.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Validate records a furniture confirmation by the caller.
// @Summary Validate furniture report
// @Tags reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope{data=dto.ValidationResponse}
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/{id}/validations [post]
func (h *ReportHandler) Validate(c *gin.Context) {
	resp, err := h.reports.Validate(c.Request.Context(), currentUID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp)
}
