package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/civicpulse-api/internal/broker"
	"github.com/civicpulse/civicpulse-api/internal/dto"
	"github.com/civicpulse/civicpulse-api/internal/service"
)

type staticSnapshotSources struct{}

func (staticSnapshotSources) List(ctx context.Context) ([]dto.ReportResponse, error) {
	return []dto.ReportResponse{{ID: "r1"}}, nil
}

func (staticSnapshotSources) Me(ctx context.Context, uid string) (*dto.ProfileResponse, error) {
	return &dto.ProfileResponse{UID: uid, Points: 20, Level: 0, Rank: 1}, nil
}

func TestReportsStreamDeliversSnapshots(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := broker.NewHub(4)
	defer hub.Close()

	stream := service.NewStreamService(hub, nil, nil, nil, time.Second)
	stream.SetSources(staticSnapshotSources{}, staticSnapshotSources{})

	handler := NewStreamHandler(stream, time.Minute, nil)
	router := gin.New()
	router.GET("/api/v1/reports/stream", handler.Reports)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return hub.SubscriberCount(service.TopicReports) == 1
	}, time.Second, 10*time.Millisecond)

	stream.NotifyReportsChanged(context.Background())

	// Give the handler a moment to drain the update before disconnecting.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	// Initial snapshot plus the notified one.
	assert.GreaterOrEqual(t, strings.Count(body, "event:snapshot"), 2)
	assert.Contains(t, body, `"id":"r1"`)
}
