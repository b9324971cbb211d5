package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/civicpulse/civicpulse-api/internal/models"
	"github.com/civicpulse/civicpulse-api/internal/service"
	appErrors "github.com/civicpulse/civicpulse-api/pkg/errors"
	"github.com/civicpulse/civicpulse-api/pkg/response"
)

// AuthHandler exposes session endpoints.
type AuthHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{auth: auth, logger: logger}
}

// CreateSession mints an anonymous citizen session.
// @Summary Create anonymous session
// @Tags auth
// @Produce json
// @Success 201 {object} response.Envelope{data=models.SessionResponse}
// @Router /auth/session [post]
func (h *AuthHandler) CreateSession(c *gin.Context) {
	session, err := h.auth.CreateAnonymousSession(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Login authenticates a municipal agent.
// @Summary Agent login
// @Tags auth
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Credentials"
// @Success 200 {object} response.Envelope{data=models.SessionResponse}
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid login payload"))
		return
	}

	session, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session)
}
