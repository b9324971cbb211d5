package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/civicpulse/civicpulse-api/internal/service"
	"github.com/civicpulse/civicpulse-api/pkg/response"
)

// ProfileHandler exposes the profile and leaderboard endpoints.
type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *zap.Logger
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(profiles *service.ProfileService, logger *zap.Logger) *ProfileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// Me returns the caller's profile with derived level and rank.
// @Summary Current profile
// @Tags profile
// @Produce json
// @Success 200 {object} response.Envelope{data=dto.ProfileResponse}
// @Security BearerAuth
// @Router /profile [get]
func (h *ProfileHandler) Me(c *gin.Context) {
	profile, err := h.profiles.Me(c.Request.Context(), currentUID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile)
}

// Leaderboard returns the ranked top profiles.
// @Summary Leaderboard
// @Tags profile
// @Produce json
// @Success 200 {object} response.Envelope{data=dto.LeaderboardResponse}
// @Router /leaderboard [get]
func (h *ProfileHandler) Leaderboard(c *gin.Context) {
	board, err := h.profiles.Leaderboard(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, board)
}
