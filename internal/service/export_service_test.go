package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/civicpulse-api/internal/models"
	appErrors "github.com/civicpulse/civicpulse-api/pkg/errors"
)

type staticReportLister struct {
	reports []models.Report
}

func (s staticReportLister) ListByDateDesc(ctx context.Context) ([]models.Report, error) {
	return s.reports, nil
}

func exportFixtures() []models.Report {
	wear := models.TypeWear
	address := "Piazza Castello, Torino"
	return []models.Report{
		{
			ID:          "r1",
			Mode:        models.ModeProblem,
			Type:        &wear,
			Category:    models.CategoryFurniture,
			Description: "broken bench",
			Lat:         45.0703,
			Lng:         7.6869,
			Address:     &address,
			Date:        time.Date(2026, 5, 12, 9, 30, 0, 0, time.UTC),
			Status:      models.StatusNew,
			ReportedBy:  "u1",
			Validations: 0,
		},
		{
			ID:          "r2",
			Mode:        models.ModeFurnitureOK,
			Category:    models.CategoryFurniture,
			Description: "bench in good shape",
			Date:        time.Date(2026, 5, 11, 9, 30, 0, 0, time.UTC),
			Status:      models.StatusResolved,
			ReportedBy:  "u2",
			Validations: 3,
		},
	}
}

func TestExportCSV(t *testing.T) {
	svc := NewExportService(staticReportLister{reports: exportFixtures()}, nil)

	payload, contentType, filename, err := svc.Export(context.Background(), "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Contains(t, filename, ".csv")

	records, err := csv.NewReader(bytes.NewReader(payload)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "ID", records[0][0])
	assert.Equal(t, "r1", records[1][0])
	assert.Equal(t, "wear", records[1][2])
	assert.Equal(t, "", records[2][2])
}

func TestExportDefaultsToCSV(t *testing.T) {
	svc := NewExportService(staticReportLister{reports: exportFixtures()}, nil)

	_, contentType, _, err := svc.Export(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
}

func TestExportPDF(t *testing.T) {
	svc := NewExportService(staticReportLister{reports: exportFixtures()}, nil)

	payload, contentType, filename, err := svc.Export(context.Background(), "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.Contains(t, filename, ".pdf")
	assert.True(t, bytes.HasPrefix(payload, []byte("%PDF")))
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc := NewExportService(staticReportLister{}, nil)

	_, _, _, err := svc.Export(context.Background(), "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
