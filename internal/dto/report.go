package dto

import (
	"time"

	"github.com/civicpulse/civicpulse-api/internal/models"
)

// LocationPayload is the nested coordinate shape used on the wire.
// Lat/Lng are pointers so a missing coordinate is distinguishable from zero:
// submissions without a resolved location are rejected, never defaulted.
type LocationPayload struct {
	Lat     *float64 `json:"lat" validate:"required,latitude"`
	Lng     *float64 `json:"lng" validate:"required,longitude"`
	Address *string  `json:"address,omitempty"`
}

// SubmitReportRequest captures POST /reports payload.
type SubmitReportRequest struct {
	Mode        models.ReportMode     `json:"mode" validate:"required,oneof=problem furniture_ok suggestion"`
	Type        *models.ReportType    `json:"type,omitempty" validate:"omitempty,oneof=wear vandalism"`
	Category    models.ReportCategory `json:"category" validate:"required,oneof=furniture signage mobility other"`
	Description string                `json:"description" validate:"required"`
	Photo       string                `json:"photo,omitempty"`
	Location    *LocationPayload      `json:"location" validate:"required"`
}

// ReportResponse is the wire representation of a stored report.
type ReportResponse struct {
	ID          string                `json:"id"`
	Mode        models.ReportMode     `json:"mode"`
	Type        *models.ReportType    `json:"type,omitempty"`
	Category    models.ReportCategory `json:"category"`
	Description string                `json:"description"`
	PhotoURL    string                `json:"photo_url,omitempty"`
	Location    LocationPayload       `json:"location"`
	Date        time.Time             `json:"date"`
	Status      models.ReportStatus   `json:"status"`
	ReportedBy  string                `json:"reported_by"`
	Validations int                   `json:"validations"`
	ValidatedBy []string              `json:"validated_by"`
}

// SubmitReportResponse returns the created report and the points awarded for it.
type SubmitReportResponse struct {
	Report        ReportResponse `json:"report"`
	PointsAwarded int            `json:"points_awarded"`
}

// StatusUpdateRequest captures PATCH /reports/{id}/status payload.
type StatusUpdateRequest struct {
	Status models.ReportStatus `json:"status" validate:"required,oneof=new in_progress resolved"`
}

// ValidationResponse returns the updated validation state after a confirmation.
type ValidationResponse struct {
	ReportID      string `json:"report_id"`
	Validations   int    `json:"validations"`
	PointsAwarded int    `json:"points_awarded"`
}
