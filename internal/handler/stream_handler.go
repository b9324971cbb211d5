package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/civicpulse/civicpulse-api/internal/broker"
	"github.com/civicpulse/civicpulse-api/internal/service"
	appErrors "github.com/civicpulse/civicpulse-api/pkg/errors"
	"github.com/civicpulse/civicpulse-api/pkg/response"
)

// StreamHandler serves full-snapshot event streams over SSE. Every event named
// "snapshot" carries the complete current state; clients replace their view on
// each one rather than applying diffs.
type StreamHandler struct {
	stream    *service.StreamService
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewStreamHandler constructs a StreamHandler.
func NewStreamHandler(stream *service.StreamService, heartbeat time.Duration, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &StreamHandler{stream: stream, heartbeat: heartbeat, logger: logger}
}

// Reports streams the report list.
// @Summary Stream report snapshots
// @Tags reports
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Router /reports/stream [get]
func (h *StreamHandler) Reports(c *gin.Context) {
	sub, initial, err := h.stream.SubscribeReports(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	defer sub.Close()

	h.serve(c, sub, initial)
}

// Profile streams the caller's profile snapshot.
// @Summary Stream profile snapshots
// @Tags profile
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Security BearerAuth
// @Router /profile/stream [get]
func (h *StreamHandler) Profile(c *gin.Context) {
	uid := currentUID(c)
	if uid == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sub, initial, err := h.stream.SubscribeProfile(c.Request.Context(), uid)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer sub.Close()

	h.serve(c, sub, initial)
}

func (h *StreamHandler) serve(c *gin.Context, sub *broker.Subscription, initial interface{}) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("snapshot", initial)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case payload, ok := <-sub.C():
			if !ok {
				return
			}
			c.SSEvent("snapshot", payload)
			c.Writer.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
