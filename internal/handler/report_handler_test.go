package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/civicpulse-api/internal/middleware"
	"github.com/civicpulse/civicpulse-api/internal/models"
	"github.com/civicpulse/civicpulse-api/internal/service"
	"github.com/civicpulse/civicpulse-api/pkg/response"
)

type memReportRepo struct {
	reports map[string]*models.Report
	order   []string
}

func newMemReportRepo() *memReportRepo {
	return &memReportRepo{reports: map[string]*models.Report{}}
}

func (m *memReportRepo) Create(ctx context.Context, report *models.Report) error {
	m.reports[report.ID] = report
	m.order = append([]string{report.ID}, m.order...)
	return nil
}

func (m *memReportRepo) ListByDateDesc(ctx context.Context) ([]models.Report, error) {
	out := make([]models.Report, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.reports[id])
	}
	return out, nil
}

func (m *memReportRepo) FindByID(ctx context.Context, id string) (*models.Report, error) {
	report, ok := m.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return report, nil
}

func (m *memReportRepo) UpdateStatus(ctx context.Context, id string, status models.ReportStatus) error {
	report, ok := m.reports[id]
	if !ok {
		return sql.ErrNoRows
	}
	report.Status = status
	return nil
}

func (m *memReportRepo) AddValidation(ctx context.Context, id, uid string) (bool, error) {
	report, ok := m.reports[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	for _, v := range report.ValidatedBy {
		if v == uid {
			return false, nil
		}
	}
	report.ValidatedBy = append(report.ValidatedBy, uid)
	report.Validations++
	return true, nil
}

type memPoints struct {
	totals map[string]int
}

func (m *memPoints) IncrementPoints(ctx context.Context, uid string, delta int) error {
	if m.totals == nil {
		m.totals = map[string]int{}
	}
	m.totals[uid] += delta
	return nil
}

type passthroughPhotos struct{}

func (passthroughPhotos) Store(reportID, payload string) (string, error) {
	if payload == "" {
		return "", nil
	}
	return reportID + "/photo.jpg", nil
}

func (passthroughPhotos) SignedURL(reportID, name string) string {
	if name == "" {
		return ""
	}
	return "/photos?token=test"
}

func (passthroughPhotos) Delete(name string) error { return nil }

type memEnsurer struct{}

func (memEnsurer) Ensure(ctx context.Context, profile *models.UserProfile) error { return nil }

type noAgents struct{}

func (noAgents) FindByEmail(ctx context.Context, email string) (*models.Agent, error) {
	return nil, sql.ErrNoRows
}

type testAPI struct {
	router *gin.Engine
	repo   *memReportRepo
	points *memPoints
	auth   *service.AuthService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newMemReportRepo()
	points := &memPoints{}
	auth := service.NewAuthService(noAgents{}, memEnsurer{}, nil, nil, service.AuthConfig{
		Secret:     "test-secret",
		Expiration: time.Hour,
		Issuer:     "civicpulse-test",
	})
	reports := service.NewReportService(repo, points, passthroughPhotos{}, nil, nil, nil, nil, nil)

	reportHandler := NewReportHandler(reports, nil)

	router := gin.New()
	api := router.Group("/api/v1")
	api.GET("/reports", reportHandler.List)
	api.POST("/reports", middleware.OptionalJWT(auth), reportHandler.Submit)
	api.POST("/reports/:id/validations", middleware.JWT(auth), reportHandler.Validate)
	api.PATCH("/reports/:id/status",
		middleware.JWT(auth),
		middleware.RequireRoles(models.RoleAgent, models.RoleAdmin),
		reportHandler.UpdateStatus,
	)

	return &testAPI{router: router, repo: repo, points: points, auth: auth}
}

func (a *testAPI) citizenToken(t *testing.T) (string, string) {
	t.Helper()
	session, err := a.auth.CreateAnonymousSession(context.Background())
	require.NoError(t, err)
	return session.AccessToken, session.UID
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func submitBody(mode models.ReportMode) map[string]interface{} {
	return map[string]interface{}{
		"mode":        string(mode),
		"category":    "furniture",
		"description": "bench with a broken slat",
		"photo":       "aGVsbG8=",
		"location":    map[string]interface{}{"lat": 45.0703, "lng": 7.6869},
	}
}

func TestSubmitReportEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token, uid := api.citizenToken(t)

	rec := api.do(t, http.MethodPost, "/api/v1/reports", token, submitBody(models.ModeProblem))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, float64(models.PointsProblemSubmission), data["points_awarded"])
	assert.Equal(t, models.PointsProblemSubmission, api.points.totals[uid])
}

func TestSubmitReportWithoutLocation(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.citizenToken(t)

	body := submitBody(models.ModeProblem)
	delete(body, "location")

	rec := api.do(t, http.MethodPost, "/api/v1/reports", token, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "LOCATION_REQUIRED", envelope.Error.Code)
	assert.Empty(t, api.repo.reports)
}

func TestSubmitReportAnonymously(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/reports", "", submitBody(models.ModeSuggestion))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, api.repo.reports, 1)
	for _, report := range api.repo.reports {
		assert.Equal(t, models.AnonymousUser, report.ReportedBy)
	}
	assert.Empty(t, api.points.totals)
}

func TestListReportsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.citizenToken(t)

	api.do(t, http.MethodPost, "/api/v1/reports", token, submitBody(models.ModeProblem))

	rec := api.do(t, http.MethodGet, "/api/v1/reports", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, float64(1), envelope.Meta["count"])
}

func TestValidateReportEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.repo.reports["rep-1"] = &models.Report{
		ID:          "rep-1",
		Mode:        models.ModeFurnitureOK,
		ValidatedBy: pq.StringArray{},
	}
	api.repo.order = []string{"rep-1"}

	token, uid := api.citizenToken(t)

	rec := api.do(t, http.MethodPost, "/api/v1/reports/rep-1/validations", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.PointsValidation, api.points.totals[uid])

	// Same user again conflicts.
	rec = api.do(t, http.MethodPost, "/api/v1/reports/rep-1/validations", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestValidateRequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/reports/rep-1/validations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateStatusRequiresAgentRole(t *testing.T) {
	api := newTestAPI(t)
	api.repo.reports["rep-1"] = &models.Report{ID: "rep-1", Mode: models.ModeProblem, Status: models.StatusNew}
	api.repo.order = []string{"rep-1"}

	citizenToken, _ := api.citizenToken(t)
	rec := api.do(t, http.MethodPatch, "/api/v1/reports/rep-1/status", citizenToken, map[string]string{"status": "resolved"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, models.StatusNew, api.repo.reports["rep-1"].Status)
}

func TestUpdateStatusUnknownReportEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := agentToken(t, api)

	rec := api.do(t, http.MethodPatch, "/api/v1/reports/missing/status", token, map[string]string{"status": "resolved"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	api := newTestAPI(t)
	api.repo.reports["rep-1"] = &models.Report{ID: "rep-1", Mode: models.ModeProblem, Status: models.StatusNew}
	api.repo.order = []string{"rep-1"}

	token := agentToken(t, api)

	rec := api.do(t, http.MethodPatch, "/api/v1/reports/rep-1/status", token, map[string]string{"status": "bogus"})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
	assert.Equal(t, models.StatusNew, api.repo.reports["rep-1"].Status)
}

func TestUpdateStatusAsAgent(t *testing.T) {
	api := newTestAPI(t)
	api.repo.reports["rep-1"] = &models.Report{ID: "rep-1", Mode: models.ModeProblem, Status: models.StatusNew}
	api.repo.order = []string{"rep-1"}

	token := agentToken(t, api)

	rec := api.do(t, http.MethodPatch, "/api/v1/reports/rep-1/status", token, map[string]string{"status": "in_progress"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusInProgress, api.repo.reports["rep-1"].Status)
}
