package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/civicpulse/civicpulse-api/internal/middleware"
	"github.com/civicpulse/civicpulse-api/internal/models"
)

func currentClaims(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// currentUID returns the authenticated uid or the empty string for anonymous
// requests.
func currentUID(c *gin.Context) string {
	claims := currentClaims(c)
	if claims == nil {
		return ""
	}
	return claims.UserID
}
