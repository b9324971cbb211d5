package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/civicpulse-api/internal/dto"
	"github.com/civicpulse/civicpulse-api/internal/models"
	appErrors "github.com/civicpulse/civicpulse-api/pkg/errors"
)

type fakeReportRepo struct {
	createFn        func(ctx context.Context, report *models.Report) error
	listFn          func(ctx context.Context) ([]models.Report, error)
	findFn          func(ctx context.Context, id string) (*models.Report, error)
	updateStatusFn  func(ctx context.Context, id string, status models.ReportStatus) error
	addValidationFn func(ctx context.Context, id, uid string) (bool, error)
}

func (f *fakeReportRepo) Create(ctx context.Context, report *models.Report) error {
	return f.createFn(ctx, report)
}

func (f *fakeReportRepo) ListByDateDesc(ctx context.Context) ([]models.Report, error) {
	return f.listFn(ctx)
}

func (f *fakeReportRepo) FindByID(ctx context.Context, id string) (*models.Report, error) {
	return f.findFn(ctx, id)
}

func (f *fakeReportRepo) UpdateStatus(ctx context.Context, id string, status models.ReportStatus) error {
	return f.updateStatusFn(ctx, id, status)
}

func (f *fakeReportRepo) AddValidation(ctx context.Context, id, uid string) (bool, error) {
	return f.addValidationFn(ctx, id, uid)
}

type fakePointsStore struct {
	calls []int
	uids  []string
	err   error
}

func (f *fakePointsStore) IncrementPoints(ctx context.Context, uid string, delta int) error {
	if f.err != nil {
		return f.err
	}
	f.uids = append(f.uids, uid)
	f.calls = append(f.calls, delta)
	return nil
}

type fakePhotoStore struct{}

func (fakePhotoStore) Store(reportID, payload string) (string, error) {
	if payload == "" {
		return "", nil
	}
	return reportID + "/photo.jpg", nil
}

func (fakePhotoStore) SignedURL(reportID, name string) string {
	if name == "" {
		return ""
	}
	return "/photos?token=signed-" + reportID
}

func (fakePhotoStore) Delete(name string) error { return nil }

type recordingPhotoStore struct {
	fakePhotoStore
	deleted []string
}

func (r *recordingPhotoStore) Delete(name string) error {
	r.deleted = append(r.deleted, name)
	return nil
}

type fakeNotifier struct {
	reportsChanged  int
	profilesChanged []string
}

func (f *fakeNotifier) NotifyReportsChanged(ctx context.Context) {
	f.reportsChanged++
}

func (f *fakeNotifier) NotifyProfileChanged(ctx context.Context, uid string) {
	f.profilesChanged = append(f.profilesChanged, uid)
}

func floatPtr(v float64) *float64 { return &v }

func validSubmitRequest(mode models.ReportMode) dto.SubmitReportRequest {
	return dto.SubmitReportRequest{
		Mode:        mode,
		Category:    models.CategoryFurniture,
		Description: "bench with a broken slat",
		Photo:       "aGVsbG8=",
		Location: &dto.LocationPayload{
			Lat: floatPtr(45.0703),
			Lng: floatPtr(7.6869),
		},
	}
}

func TestSubmitAwardsPointsAfterCreate(t *testing.T) {
	var order []string
	repo := &fakeReportRepo{
		createFn: func(ctx context.Context, report *models.Report) error {
			order = append(order, "create")
			return nil
		},
	}
	points := &fakePointsStore{}
	notifier := &fakeNotifier{}
	svc := NewReportService(repo, &orderedPoints{inner: points, order: &order}, fakePhotoStore{}, notifier, nil, nil, nil, nil)

	resp, err := svc.Submit(context.Background(), "user-1", validSubmitRequest(models.ModeProblem))
	require.NoError(t, err)

	assert.Equal(t, []string{"create", "points"}, order)
	assert.Equal(t, models.PointsProblemSubmission, resp.PointsAwarded)
	assert.Equal(t, []int{models.PointsProblemSubmission}, points.calls)
	assert.Equal(t, 1, notifier.reportsChanged)
	assert.Equal(t, []string{"user-1"}, notifier.profilesChanged)
}

type orderedPoints struct {
	inner *fakePointsStore
	order *[]string
}

func (o *orderedPoints) IncrementPoints(ctx context.Context, uid string, delta int) error {
	*o.order = append(*o.order, "points")
	return o.inner.IncrementPoints(ctx, uid, delta)
}

func TestSubmitRejectsMissingLocation(t *testing.T) {
	created := false
	repo := &fakeReportRepo{
		createFn: func(ctx context.Context, report *models.Report) error {
			created = true
			return nil
		},
	}
	svc := NewReportService(repo, &fakePointsStore{}, fakePhotoStore{}, nil, nil, nil, nil, nil)

	req := validSubmitRequest(models.ModeProblem)
	req.Location = nil

	_, err := svc.Submit(context.Background(), "user-1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLocationRequired.Code, appErrors.FromError(err).Code)
	assert.False(t, created, "a rejected submission must not reach the store")
}

func TestSubmitRejectsMissingCoordinate(t *testing.T) {
	svc := NewReportService(&fakeReportRepo{}, &fakePointsStore{}, fakePhotoStore{}, nil, nil, nil, nil, nil)

	req := validSubmitRequest(models.ModeProblem)
	req.Location.Lng = nil

	_, err := svc.Submit(context.Background(), "user-1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLocationRequired.Code, appErrors.FromError(err).Code)
}

func TestSubmitRequiresPhotoOutsideSuggestion(t *testing.T) {
	svc := NewReportService(&fakeReportRepo{}, &fakePointsStore{}, fakePhotoStore{}, nil, nil, nil, nil, nil)

	req := validSubmitRequest(models.ModeFurnitureOK)
	req.Photo = ""

	_, err := svc.Submit(context.Background(), "user-1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubmitSuggestionWithoutPhoto(t *testing.T) {
	var stored *models.Report
	repo := &fakeReportRepo{
		createFn: func(ctx context.Context, report *models.Report) error {
			stored = report
			return nil
		},
	}
	points := &fakePointsStore{}
	svc := NewReportService(repo, points, fakePhotoStore{}, nil, nil, nil, nil, nil)

	req := validSubmitRequest(models.ModeSuggestion)
	req.Photo = ""

	resp, err := svc.Submit(context.Background(), "user-1", req)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Empty(t, stored.Photo)
	assert.Equal(t, models.PointsSuggestionSubmission, resp.PointsAwarded)
}

func TestSubmitStripsTypeOutsideProblemMode(t *testing.T) {
	var stored *models.Report
	repo := &fakeReportRepo{
		createFn: func(ctx context.Context, report *models.Report) error {
			stored = report
			return nil
		},
	}
	svc := NewReportService(repo, &fakePointsStore{}, fakePhotoStore{}, nil, nil, nil, nil, nil)

	vandalism := models.TypeVandalism
	req := validSubmitRequest(models.ModeFurnitureOK)
	req.Type = &vandalism

	_, err := svc.Submit(context.Background(), "user-1", req)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Nil(t, stored.Type)
}

func TestSubmitKeepsTypeForProblemMode(t *testing.T) {
	var stored *models.Report
	repo := &fakeReportRepo{
		createFn: func(ctx context.Context, report *models.Report) error {
			stored = report
			return nil
		},
	}
	svc := NewReportService(repo, &fakePointsStore{}, fakePhotoStore{}, nil, nil, nil, nil, nil)

	wear := models.TypeWear
	req := validSubmitRequest(models.ModeProblem)
	req.Type = &wear

	_, err := svc.Submit(context.Background(), "user-1", req)
	require.NoError(t, err)
	require.NotNil(t, stored.Type)
	assert.Equal(t, models.TypeWear, *stored.Type)
}

func TestSubmitAnonymousSkipsPoints(t *testing.T) {
	var stored *models.Report
	repo := &fakeReportRepo{
		createFn: func(ctx context.Context, report *models.Report) error {
			stored = report
			return nil
		},
	}
	points := &fakePointsStore{}
	notifier := &fakeNotifier{}
	svc := NewReportService(repo, points, fakePhotoStore{}, notifier, nil, nil, nil, nil)

	resp, err := svc.Submit(context.Background(), "", validSubmitRequest(models.ModeProblem))
	require.NoError(t, err)

	assert.Equal(t, models.AnonymousUser, stored.ReportedBy)
	assert.Equal(t, 0, resp.PointsAwarded)
	assert.Empty(t, points.calls)
	assert.Empty(t, notifier.profilesChanged)
	assert.Equal(t, 1, notifier.reportsChanged)
}

func TestSubmitCreateFailureSkipsPoints(t *testing.T) {
	repo := &fakeReportRepo{
		createFn: func(ctx context.Context, report *models.Report) error {
			return errors.New("connection refused")
		},
	}
	points := &fakePointsStore{}
	svc := NewReportService(repo, points, fakePhotoStore{}, nil, nil, nil, nil, nil)

	_, err := svc.Submit(context.Background(), "user-1", validSubmitRequest(models.ModeProblem))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStoreWrite.Code, appErrors.FromError(err).Code)
	assert.Empty(t, points.calls, "no points may be granted for a failed write")
}

func TestSubmitCreateFailureRemovesStoredPhoto(t *testing.T) {
	repo := &fakeReportRepo{
		createFn: func(ctx context.Context, report *models.Report) error {
			return errors.New("connection refused")
		},
	}
	photos := &recordingPhotoStore{}
	svc := NewReportService(repo, &fakePointsStore{}, photos, nil, nil, nil, nil, nil)

	_, err := svc.Submit(context.Background(), "user-1", validSubmitRequest(models.ModeProblem))
	require.Error(t, err)
	require.Len(t, photos.deleted, 1)
	assert.True(t, strings.HasSuffix(photos.deleted[0], "/photo.jpg"))
}

func TestValidateAwardsValidationPoints(t *testing.T) {
	report := &models.Report{
		ID:          "report-1",
		Mode:        models.ModeFurnitureOK,
		Validations: 2,
		ValidatedBy: pq.StringArray{"u1", "u2"},
	}
	repo := &fakeReportRepo{
		findFn: func(ctx context.Context, id string) (*models.Report, error) {
			return report, nil
		},
		addValidationFn: func(ctx context.Context, id, uid string) (bool, error) {
			return true, nil
		},
	}
	points := &fakePointsStore{}
	notifier := &fakeNotifier{}
	svc := NewReportService(repo, points, fakePhotoStore{}, notifier, nil, nil, nil, nil)

	resp, err := svc.Validate(context.Background(), "u3", "report-1")
	require.NoError(t, err)

	assert.Equal(t, 3, resp.Validations)
	assert.Equal(t, models.PointsValidation, resp.PointsAwarded)
	assert.Equal(t, []int{models.PointsValidation}, points.calls)
	assert.Equal(t, []string{"u3"}, notifier.profilesChanged)
}

func TestValidateRejectsDuplicate(t *testing.T) {
	appendCalled := false
	repo := &fakeReportRepo{
		findFn: func(ctx context.Context, id string) (*models.Report, error) {
			return &models.Report{ID: id, Mode: models.ModeFurnitureOK, ValidatedBy: pq.StringArray{"u1"}}, nil
		},
		addValidationFn: func(ctx context.Context, id, uid string) (bool, error) {
			appendCalled = true
			return true, nil
		},
	}
	svc := NewReportService(repo, &fakePointsStore{}, fakePhotoStore{}, nil, nil, nil, nil, nil)

	_, err := svc.Validate(context.Background(), "u1", "report-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyValidated.Code, appErrors.FromError(err).Code)
	assert.False(t, appendCalled)
}

func TestValidateLostRaceRejectsWithoutPoints(t *testing.T) {
	repo := &fakeReportRepo{
		findFn: func(ctx context.Context, id string) (*models.Report, error) {
			return &models.Report{ID: id, Mode: models.ModeFurnitureOK}, nil
		},
		addValidationFn: func(ctx context.Context, id, uid string) (bool, error) {
			// A concurrent confirmation by the same uid won the append.
			return false, nil
		},
	}
	points := &fakePointsStore{}
	svc := NewReportService(repo, points, fakePhotoStore{}, nil, nil, nil, nil, nil)

	_, err := svc.Validate(context.Background(), "u1", "report-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyValidated.Code, appErrors.FromError(err).Code)
	assert.Empty(t, points.calls)
}

func TestValidateRejectsNonFurnitureReport(t *testing.T) {
	repo := &fakeReportRepo{
		findFn: func(ctx context.Context, id string) (*models.Report, error) {
			return &models.Report{ID: id, Mode: models.ModeProblem}, nil
		},
	}
	svc := NewReportService(repo, &fakePointsStore{}, fakePhotoStore{}, nil, nil, nil, nil, nil)

	_, err := svc.Validate(context.Background(), "u1", "report-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestValidateRejectsAnonymous(t *testing.T) {
	svc := NewReportService(&fakeReportRepo{}, &fakePointsStore{}, fakePhotoStore{}, nil, nil, nil, nil, nil)

	_, err := svc.Validate(context.Background(), models.AnonymousUser, "report-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestValidateUnknownReport(t *testing.T) {
	repo := &fakeReportRepo{
		findFn: func(ctx context.Context, id string) (*models.Report, error) {
			return nil, sql.ErrNoRows
		},
	}
	svc := NewReportService(repo, &fakePointsStore{}, fakePhotoStore{}, nil, nil, nil, nil, nil)

	_, err := svc.Validate(context.Background(), "u1", "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUpdateStatusUnknownReport(t *testing.T) {
	repo := &fakeReportRepo{
		updateStatusFn: func(ctx context.Context, id string, status models.ReportStatus) error {
			return sql.ErrNoRows
		},
	}
	svc := NewReportService(repo, &fakePointsStore{}, fakePhotoStore{}, nil, nil, nil, nil, nil)

	err := svc.UpdateStatus(context.Background(), "missing", models.StatusResolved)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	updated := false
	repo := &fakeReportRepo{
		updateStatusFn: func(ctx context.Context, id string, status models.ReportStatus) error {
			updated = true
			return nil
		},
	}
	svc := NewReportService(repo, &fakePointsStore{}, fakePhotoStore{}, nil, nil, nil, nil, nil)

	err := svc.UpdateStatus(context.Background(), "report-1", models.ReportStatus("bogus"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.False(t, updated, "an unknown status must not reach the store")
}

func TestListOrdersAreRepositoryDriven(t *testing.T) {
	repo := &fakeReportRepo{
		listFn: func(ctx context.Context) ([]models.Report, error) {
			return []models.Report{
				{ID: "newest", Photo: "newest/photo.jpg"},
				{ID: "oldest"},
			}, nil
		},
	}
	svc := NewReportService(repo, &fakePointsStore{}, fakePhotoStore{}, nil, nil, nil, nil, nil)

	reports, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "newest", reports[0].ID)
	assert.NotEmpty(t, reports[0].PhotoURL)
	assert.Empty(t, reports[1].PhotoURL)
}
