package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/civicpulse/civicpulse-api/internal/service"
	appErrors "github.com/civicpulse/civicpulse-api/pkg/errors"
	"github.com/civicpulse/civicpulse-api/pkg/response"
)

// PhotoHandler serves stored report photos through signed links.
type PhotoHandler struct {
	photos *service.PhotoService
	logger *zap.Logger
}

// NewPhotoHandler constructs a PhotoHandler.
func NewPhotoHandler(photos *service.PhotoService, logger *zap.Logger) *PhotoHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PhotoHandler{photos: photos, logger: logger}
}

// Download streams the photo addressed by a signed token.
// @Summary Download report photo
// @Tags reports
// @Param token query string true "Signed photo token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /photos [get]
func (h *PhotoHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing photo token"))
		return
	}

	file, mime, err := h.photos.Open(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "photo not found"))
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), mime, file, nil)
}
