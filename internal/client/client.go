// Package client implements the session-side synchronization layer: it tracks
// identity and geolocation, keeps the in-memory view as a projection of store
// snapshots, and issues writes in response to user actions. The authoritative
// report list only ever comes from subscription deliveries; local actions never
// mutate it directly.
package client

import (
	"context"
	"time"

	"github.com/civicpulse/civicpulse-api/internal/models"
)

// SessionState is the per-session lifecycle.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateLoadingLocation
	StateReady
)

func (s SessionState) String() string {
	switch s {
	case StateLoadingLocation:
		return "loading_location"
	case StateReady:
		return "ready"
	default:
		return "unauthenticated"
	}
}

// ViewState is the single-source UI state enum. Exactly one view is active at
// a time; transitions go through Transition and nothing else.
type ViewState int

const (
	ViewIdle ViewState = iota
	ViewPickingLocation
	ViewFormOpen
	ViewReportOpen
	ViewProfileOpen
)

func (v ViewState) String() string {
	switch v {
	case ViewPickingLocation:
		return "picking_location"
	case ViewFormOpen:
		return "form_open"
	case ViewReportOpen:
		return "report_open"
	case ViewProfileOpen:
		return "profile_open"
	default:
		return "idle"
	}
}

// User is the identity-provider view of the signed-in user.
type User struct {
	UID         string
	DisplayName string
	PhotoURL    string
}

// Location is a resolved coordinate pair.
type Location struct {
	Lat float64
	Lng float64
}

// GeolocateOptions tunes a one-shot location request.
type GeolocateOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
}

// Identity is the opaque authentication source. Only the current user and a
// change stream are consumed; sign-in mechanics live elsewhere.
type Identity interface {
	CurrentUser() *User
	OnAuthChange(fn func(*User)) (unsubscribe func())
}

// Geolocator resolves the device position once per request. Late results after
// the caller's deadline are discarded by the session, not by the geolocator.
type Geolocator interface {
	RequestOnce(ctx context.Context, opts GeolocateOptions) (*Location, error)
}

// ReportStore is the durable report collection as seen from a session.
type ReportStore interface {
	Create(ctx context.Context, report *models.Report) error
	// Subscribe delivers the full date-descending report list on initial
	// subscribe and after every change. Each delivery replaces the previous
	// snapshot wholesale.
	Subscribe(onChange func(reports []models.Report)) (unsubscribe func(), err error)
	AddValidation(ctx context.Context, reportID, uid string) (applied bool, err error)
}

// ProfileStore is the per-user point record as seen from a session.
type ProfileStore interface {
	EnsureProfile(ctx context.Context, uid string, defaults models.UserProfile) error
	// IncrementPoints must be a true atomic add on the store side; the session
	// never reads points to compute a new total.
	IncrementPoints(ctx context.Context, uid string, delta int) error
	Subscribe(uid string, onChange func(profile *models.UserProfile)) (unsubscribe func(), err error)
}

// RankSource derives a leaderboard position from a point total.
type RankSource interface {
	RankFor(ctx context.Context, points int) (int, error)
}

// Draft is a report being composed. Location is the map-picked coordinate and
// falls back to the session's GPS fix when unset.
type Draft struct {
	Mode        models.ReportMode
	Type        *models.ReportType
	Category    models.ReportCategory
	Description string
	Photo       string
	Location    *Location
	Address     *string
}

// Snapshot is the derived view state handed to renderers.
type Snapshot struct {
	State       SessionState
	View        ViewState
	User        *User
	Location    *Location
	LocationErr error
	Reports     []models.Report
	Points      int
	Level       int
	Rank        int
}
