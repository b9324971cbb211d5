package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/civicpulse/civicpulse-api/internal/models"
	appErrors "github.com/civicpulse/civicpulse-api/pkg/errors"
	"github.com/civicpulse/civicpulse-api/pkg/export"
)

type reportLister interface {
	ListByDateDesc(ctx context.Context) ([]models.Report, error)
}

// ExportService renders the report list as downloadable CSV or PDF documents
// for municipal agents.
type ExportService struct {
	repo   reportLister
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(repo reportLister, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		repo:   repo,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

// Export renders all reports in the requested format and returns the document
// bytes, content type and suggested filename.
func (s *ExportService) Export(ctx context.Context, format string) ([]byte, string, string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "pdf" {
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	reports, err := s.repo.ListByDateDesc(ctx)
	if err != nil {
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}

	dataset := buildReportDataset(reports)
	stamp := time.Now().UTC().Format("20060102-150405")

	switch format {
	case "pdf":
		payload, err := s.pdf.Render(dataset, "Civic Reports")
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", fmt.Sprintf("reports-%s.pdf", stamp), nil
	default:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", fmt.Sprintf("reports-%s.csv", stamp), nil
	}
}

func buildReportDataset(reports []models.Report) export.Dataset {
	headers := []string{"ID", "Mode", "Type", "Category", "Description", "Status", "Latitude", "Longitude", "Address", "Date", "Reported By", "Validations"}
	rows := make([]map[string]string, 0, len(reports))
	for _, report := range reports {
		reportType := ""
		if report.Type != nil {
			reportType = string(*report.Type)
		}
		address := ""
		if report.Address != nil {
			address = *report.Address
		}
		rows = append(rows, map[string]string{
			"ID":          report.ID,
			"Mode":        string(report.Mode),
			"Type":        reportType,
			"Category":    string(report.Category),
			"Description": report.Description,
			"Status":      string(report.Status),
			"Latitude":    fmt.Sprintf("%.6f", report.Lat),
			"Longitude":   fmt.Sprintf("%.6f", report.Lng),
			"Address":     address,
			"Date":        report.Date.Format(time.RFC3339),
			"Reported By": report.ReportedBy,
			"Validations": fmt.Sprintf("%d", report.Validations),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
