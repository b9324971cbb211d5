package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/civicpulse/civicpulse-api/internal/dto"
	"github.com/civicpulse/civicpulse-api/internal/models"
	appErrors "github.com/civicpulse/civicpulse-api/pkg/errors"
)

type reportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	ListByDateDesc(ctx context.Context) ([]models.Report, error)
	FindByID(ctx context.Context, id string) (*models.Report, error)
	UpdateStatus(ctx context.Context, id string, status models.ReportStatus) error
	AddValidation(ctx context.Context, id, uid string) (bool, error)
}

type pointsStore interface {
	IncrementPoints(ctx context.Context, uid string, delta int) error
}

type photoStorer interface {
	Store(reportID, payload string) (string, error)
	SignedURL(reportID, name string) string
	Delete(name string) error
}

type changeNotifier interface {
	NotifyReportsChanged(ctx context.Context)
	NotifyProfileChanged(ctx context.Context, uid string)
}

type addressResolver interface {
	EnqueueReverseGeocode(reportID string, lat, lng float64)
}

// ReportService implements the submission and validation workflows. The
// ordering contract matters: a point increment is only ever issued after its
// report create has acknowledged, and a validation award only after the
// set-like append applied.
type ReportService struct {
	repo      reportRepository
	points    pointsStore
	photos    photoStorer
	notifier  changeNotifier
	geocoder  addressResolver
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReportService creates an instance of ReportService. notifier, geocoder
// and metrics are optional.
func NewReportService(repo reportRepository, points pointsStore, photos photoStorer, notifier changeNotifier, geocoder addressResolver, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ReportService{
		repo:      repo,
		points:    points,
		photos:    photos,
		notifier:  notifier,
		geocoder:  geocoder,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// List returns all reports, newest first.
func (s *ReportService) List(ctx context.Context) ([]dto.ReportResponse, error) {
	reports, err := s.repo.ListByDateDesc(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}
	responses := make([]dto.ReportResponse, 0, len(reports))
	for i := range reports {
		responses = append(responses, s.toResponse(&reports[i]))
	}
	return responses, nil
}

// Submit validates a citizen submission locally, persists it, then awards the
// mode's point value. Local validation fails fast: no store call is made for a
// rejected payload, and a submission without a resolved location is rejected
// rather than defaulted to an arbitrary coordinate.
func (s *ReportService) Submit(ctx context.Context, uid string, req dto.SubmitReportRequest) (*dto.SubmitReportResponse, error) {
	if req.Location == nil || req.Location.Lat == nil || req.Location.Lng == nil {
		return nil, appErrors.Clone(appErrors.ErrLocationRequired, "")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "description must not be empty")
	}
	if req.Mode.RequiresPhoto() && req.Photo == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a photo is required for this report mode")
	}

	// The writer, not the store, is responsible for omitting the
	// sub-classification outside problem reports.
	reportType := req.Type
	if !req.Mode.AllowsType() {
		reportType = nil
	}

	if uid == "" {
		uid = models.AnonymousUser
	}

	id := uuid.NewString()
	photoName, err := s.photos.Store(id, req.Photo)
	if err != nil {
		return nil, err
	}

	report := &models.Report{
		ID:          id,
		Mode:        req.Mode,
		Type:        reportType,
		Category:    req.Category,
		Description: strings.TrimSpace(req.Description),
		Photo:       photoName,
		Lat:         *req.Location.Lat,
		Lng:         *req.Location.Lng,
		Address:     req.Location.Address,
		Date:        time.Now().UTC(),
		Status:      models.StatusNew,
		ReportedBy:  uid,
		Validations: 0,
		ValidatedBy: pq.StringArray{},
	}

	if err := s.repo.Create(ctx, report); err != nil {
		if photoName != "" {
			if derr := s.photos.Delete(photoName); derr != nil {
				s.logger.Warn("failed to remove photo of unsaved report",
					zap.String("photo", photoName), zap.Error(derr))
			}
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreWrite.Code, appErrors.ErrStoreWrite.Status, "failed to save report")
	}

	awarded := 0
	if uid != models.AnonymousUser {
		points := models.PointsForMode(req.Mode)
		if err := s.points.IncrementPoints(ctx, uid, points); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStoreWrite.Code, appErrors.ErrStoreWrite.Status, "report saved but points were not awarded")
		}
		awarded = points
	}

	s.metrics.RecordReportSubmitted(string(req.Mode), awarded)

	if s.geocoder != nil && report.Address == nil {
		s.geocoder.EnqueueReverseGeocode(report.ID, report.Lat, report.Lng)
	}

	if s.notifier != nil {
		s.notifier.NotifyReportsChanged(ctx)
		if uid != models.AnonymousUser {
			s.notifier.NotifyProfileChanged(ctx, uid)
		}
	}

	s.logger.Info("report submitted",
		zap.String("report_id", report.ID),
		zap.String("mode", string(report.Mode)),
		zap.Int("points_awarded", awarded),
	)

	resp := s.toResponse(report)
	return &dto.SubmitReportResponse{Report: resp, PointsAwarded: awarded}, nil
}

// UpdateStatus moves a report to the given status. Transitions are
// agent-initiated and unordered; no status is terminal.
func (s *ReportService) UpdateStatus(ctx context.Context, id string, status models.ReportStatus) error {
	if !status.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown report status")
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreWrite.Code, appErrors.ErrStoreWrite.Status, "failed to update status")
	}
	if s.notifier != nil {
		s.notifier.NotifyReportsChanged(ctx)
	}
	return nil
}

// Validate records a citizen's confirmation of a furniture report. Duplicate
// confirmations by the same user are rejected, locally when the snapshot
// already shows the uid and race-safely by the store's guarded append.
func (s *ReportService) Validate(ctx context.Context, uid, reportID string) (*dto.ValidationResponse, error) {
	if uid == "" || uid == models.AnonymousUser {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "sign in to validate reports")
	}

	report, err := s.repo.FindByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}

	if report.Mode != models.ModeFurnitureOK {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only furniture reports can be validated")
	}
	if report.AlreadyValidatedBy(uid) {
		return nil, appErrors.Clone(appErrors.ErrAlreadyValidated, "")
	}

	applied, err := s.repo.AddValidation(ctx, reportID, uid)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreWrite.Code, appErrors.ErrStoreWrite.Status, "failed to record validation")
	}
	if !applied {
		// Lost the race against a concurrent confirmation by the same uid.
		return nil, appErrors.Clone(appErrors.ErrAlreadyValidated, "")
	}

	if err := s.points.IncrementPoints(ctx, uid, models.PointsValidation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreWrite.Code, appErrors.ErrStoreWrite.Status, "validation saved but points were not awarded")
	}

	s.metrics.RecordValidation()

	if s.notifier != nil {
		s.notifier.NotifyReportsChanged(ctx)
		s.notifier.NotifyProfileChanged(ctx, uid)
	}

	return &dto.ValidationResponse{
		ReportID:      reportID,
		Validations:   report.Validations + 1,
		PointsAwarded: models.PointsValidation,
	}, nil
}

func (s *ReportService) toResponse(report *models.Report) dto.ReportResponse {
	lat := report.Lat
	lng := report.Lng
	return dto.ReportResponse{
		ID:          report.ID,
		Mode:        report.Mode,
		Type:        report.Type,
		Category:    report.Category,
		Description: report.Description,
		PhotoURL:    s.photos.SignedURL(report.ID, report.Photo),
		Location: dto.LocationPayload{
			Lat:     &lat,
			Lng:     &lng,
			Address: report.Address,
		},
		Date:        report.Date,
		Status:      report.Status,
		ReportedBy:  report.ReportedBy,
		Validations: report.Validations,
		ValidatedBy: append([]string{}, report.ValidatedBy...),
	}
}
