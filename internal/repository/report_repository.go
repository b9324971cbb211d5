package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/civicpulse/civicpulse-api/internal/models"
)

// ReportRepository provides database access for citizen reports.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a new instance of ReportRepository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = `id, mode, type, category, description, photo, lat, lng, address, date, status, reported_by, validations, validated_by`

// Create persists a new report keyed by its client-generated id.
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	const query = `INSERT INTO reports (id, mode, type, category, description, photo, lat, lng, address, date, status, reported_by, validations, validated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	if _, err := r.db.ExecContext(ctx, query,
		report.ID,
		report.Mode,
		report.Type,
		report.Category,
		report.Description,
		report.Photo,
		report.Lat,
		report.Lng,
		report.Address,
		report.Date,
		report.Status,
		report.ReportedBy,
		report.Validations,
		report.ValidatedBy,
	); err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// ListByDateDesc returns the full report list ordered by creation time, newest first.
func (r *ReportRepository) ListByDateDesc(ctx context.Context) ([]models.Report, error) {
	query := fmt.Sprintf(`SELECT %s FROM reports ORDER BY date DESC`, reportColumns)
	reports := []models.Report{}
	if err := r.db.SelectContext(ctx, &reports, query); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

// FindByID returns a report by identifier.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.Report, error) {
	query := fmt.Sprintf(`SELECT %s FROM reports WHERE id = $1 LIMIT 1`, reportColumns)
	var report models.Report
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find report by id: %w", err)
	}
	return &report, nil
}

// UpdateStatus moves a report to the given status. Any status is reachable from any other.
func (r *ReportRepository) UpdateStatus(ctx context.Context, id string, status models.ReportStatus) error {
	const query = `UPDATE reports SET status = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddValidation appends uid to the validator set and bumps the counter in one
// guarded statement. The guard makes the append set-like under concurrent calls:
// a duplicate uid affects zero rows and the counter is untouched.
// Returns true when the validation was applied.
func (r *ReportRepository) AddValidation(ctx context.Context, id, uid string) (bool, error) {
	const query = `UPDATE reports
		SET validated_by = array_append(validated_by, $2), validations = validations + 1
		WHERE id = $1 AND NOT ($2 = ANY(validated_by))`
	res, err := r.db.ExecContext(ctx, query, id, uid)
	if err != nil {
		return false, fmt.Errorf("add validation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add validation result: %w", err)
	}
	return affected > 0, nil
}

// UpdateAddress fills the human-readable address resolved by the geocoder.
// Best effort: a missing report is not an error here.
func (r *ReportRepository) UpdateAddress(ctx context.Context, id, address string) error {
	const query = `UPDATE reports SET address = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, address); err != nil {
		return fmt.Errorf("update report address: %w", err)
	}
	return nil
}
