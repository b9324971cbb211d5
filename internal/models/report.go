package models

import (
	"time"

	"github.com/lib/pq"
)

// ReportMode determines which fields are required on submission.
type ReportMode string

const (
	ModeProblem     ReportMode = "problem"
	ModeFurnitureOK ReportMode = "furniture_ok"
	ModeSuggestion  ReportMode = "suggestion"
)

// ReportType sub-classifies a problem report.
type ReportType string

const (
	TypeWear      ReportType = "wear"
	TypeVandalism ReportType = "vandalism"
)

// ReportCategory is the fixed classification of the reported asset.
type ReportCategory string

const (
	CategoryFurniture ReportCategory = "furniture"
	CategorySignage   ReportCategory = "signage"
	CategoryMobility  ReportCategory = "mobility"
	CategoryOther     ReportCategory = "other"
)

// ReportStatus is agent-mutable; any status is reachable from any other.
type ReportStatus string

const (
	StatusNew        ReportStatus = "new"
	StatusInProgress ReportStatus = "in_progress"
	StatusResolved   ReportStatus = "resolved"
)

// AnonymousUser is the sentinel recorded when no authenticated uid is available.
const AnonymousUser = "anonymous"

// Report is a single citizen submission stored in the reports table.
// Coordinates are flattened for storage; the HTTP layer nests them under location.
type Report struct {
	ID          string         `db:"id" json:"id"`
	Mode        ReportMode     `db:"mode" json:"mode"`
	Type        *ReportType    `db:"type" json:"type,omitempty"`
	Category    ReportCategory `db:"category" json:"category"`
	Description string         `db:"description" json:"description"`
	Photo       string         `db:"photo" json:"photo"`
	Lat         float64        `db:"lat" json:"lat"`
	Lng         float64        `db:"lng" json:"lng"`
	Address     *string        `db:"address" json:"address,omitempty"`
	Date        time.Time      `db:"date" json:"date"`
	Status      ReportStatus   `db:"status" json:"status"`
	ReportedBy  string         `db:"reported_by" json:"reported_by"`
	Validations int            `db:"validations" json:"validations"`
	ValidatedBy pq.StringArray `db:"validated_by" json:"validated_by"`
}

// ValidModes lists the accepted report modes.
func ValidModes() []ReportMode {
	return []ReportMode{ModeProblem, ModeFurnitureOK, ModeSuggestion}
}

// RequiresPhoto reports whether the mode mandates a photo payload.
func (m ReportMode) RequiresPhoto() bool {
	return m != ModeSuggestion
}

// AllowsType reports whether the mode carries a sub-classification.
func (m ReportMode) AllowsType() bool {
	return m == ModeProblem
}

// Valid reports whether the status is one of the known workflow states.
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// AlreadyValidatedBy checks membership in the validator set.
func (r *Report) AlreadyValidatedBy(uid string) bool {
	for _, v := range r.ValidatedBy {
		if v == uid {
			return true
		}
	}
	return false
}
