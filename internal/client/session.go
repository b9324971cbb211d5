package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/civicpulse/civicpulse-api/internal/models"
	appErrors "github.com/civicpulse/civicpulse-api/pkg/errors"
)

// SessionConfig tunes session behaviour.
type SessionConfig struct {
	GeoTimeout          time.Duration
	GeoHighAccuracy     bool
	ResubscribeDelay    time.Duration
	MaxResubscribeDelay time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.GeoTimeout <= 0 {
		c.GeoTimeout = 12 * time.Second
	}
	if c.ResubscribeDelay <= 0 {
		c.ResubscribeDelay = time.Second
	}
	if c.MaxResubscribeDelay <= 0 {
		c.MaxResubscribeDelay = 30 * time.Second
	}
	return c
}

// Session drives one user's synchronization lifecycle:
// Unauthenticated -> LoadingLocation -> Ready. Entering Ready opens the report
// and profile subscriptions; losing the identity tears both down.
type Session struct {
	identity Identity
	geo      Geolocator
	reports  ReportStore
	profiles ProfileStore
	ranks    RankSource
	logger   *zap.Logger
	cfg      SessionConfig

	mu          sync.Mutex
	state       SessionState
	view        ViewState
	user        *User
	picked      *Location
	location    *Location
	locationErr error
	reportList  []models.Report
	profile     *models.UserProfile
	rank        int
	// generation invalidates in-flight geolocation results and store
	// subscriptions from a previous identity.
	generation   int
	unsubAuth    func()
	unsubReports func()
	unsubProfile func()
	onChange     func(Snapshot)
}

// NewSession constructs a Session.
func NewSession(identity Identity, geo Geolocator, reports ReportStore, profiles ProfileStore, ranks RankSource, cfg SessionConfig, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		identity: identity,
		geo:      geo,
		reports:  reports,
		profiles: profiles,
		ranks:    ranks,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		view:     ViewIdle,
	}
}

// SetOnChange registers the renderer callback invoked after every state change.
func (s *Session) SetOnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Start attaches to the identity stream and processes the current user.
func (s *Session) Start() {
	unsub := s.identity.OnAuthChange(s.handleAuthChange)
	s.mu.Lock()
	s.unsubAuth = unsub
	s.mu.Unlock()
	s.handleAuthChange(s.identity.CurrentUser())
}

// Stop tears down all subscriptions. Safe to call more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	unsub := s.unsubAuth
	s.unsubAuth = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	s.handleAuthChange(nil)
}

func (s *Session) handleAuthChange(user *User) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	unsubReports, unsubProfile := s.unsubReports, s.unsubProfile
	s.unsubReports, s.unsubProfile = nil, nil

	if user == nil {
		s.state = StateUnauthenticated
		s.user = nil
		s.profile = nil
		s.rank = 0
		s.reportList = nil
		s.location = nil
		s.locationErr = nil
		s.picked = nil
		s.view = ViewIdle
		s.mu.Unlock()
	} else {
		s.user = user
		s.state = StateLoadingLocation
		s.mu.Unlock()
		go s.resolveAndEnterReady(gen, user)
	}

	if unsubReports != nil {
		unsubReports()
	}
	if unsubProfile != nil {
		unsubProfile()
	}
	s.notify()
}

func (s *Session) resolveAndEnterReady(gen int, user *User) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GeoTimeout)
	loc, err := s.geo.RequestOnce(ctx, GeolocateOptions{
		HighAccuracy: s.cfg.GeoHighAccuracy,
		Timeout:      s.cfg.GeoTimeout,
	})
	cancel()

	s.mu.Lock()
	if gen != s.generation {
		// Identity changed while the fix was in flight; discard it.
		s.mu.Unlock()
		return
	}
	s.location = loc
	s.locationErr = err
	s.state = StateReady
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("geolocation unavailable", zap.Error(err))
	}

	if err := s.profiles.EnsureProfile(context.Background(), user.UID, models.UserProfile{
		UID:         user.UID,
		DisplayName: user.DisplayName,
		PhotoURL:    user.PhotoURL,
	}); err != nil {
		s.logger.Warn("failed to ensure profile", zap.Error(err))
	}

	go s.subscribeReports(gen)
	go s.subscribeProfile(gen, user.UID)
	s.notify()
}

func (s *Session) subscribeReports(gen int) {
	delay := s.cfg.ResubscribeDelay
	for s.currentGeneration() == gen {
		unsub, err := s.reports.Subscribe(func(reports []models.Report) {
			s.mu.Lock()
			if gen != s.generation {
				s.mu.Unlock()
				return
			}
			s.reportList = reports
			s.mu.Unlock()
			s.notify()
		})
		if err == nil {
			s.storeUnsub(gen, &s.unsubReports, unsub)
			return
		}
		s.logger.Warn("report subscription failed, retrying", zap.Error(err))
		time.Sleep(delay)
		if delay *= 2; delay > s.cfg.MaxResubscribeDelay {
			delay = s.cfg.MaxResubscribeDelay
		}
	}
}

func (s *Session) subscribeProfile(gen int, uid string) {
	delay := s.cfg.ResubscribeDelay
	for s.currentGeneration() == gen {
		unsub, err := s.profiles.Subscribe(uid, func(profile *models.UserProfile) {
			s.applyProfile(gen, profile)
		})
		if err == nil {
			s.storeUnsub(gen, &s.unsubProfile, unsub)
			return
		}
		s.logger.Warn("profile subscription failed, retrying", zap.Error(err))
		time.Sleep(delay)
		if delay *= 2; delay > s.cfg.MaxResubscribeDelay {
			delay = s.cfg.MaxResubscribeDelay
		}
	}
}

func (s *Session) applyProfile(gen int, profile *models.UserProfile) {
	rank := 0
	if profile != nil {
		r, err := s.ranks.RankFor(context.Background(), profile.Points)
		if err != nil {
			s.logger.Warn("failed to compute rank", zap.Error(err))
		} else {
			rank = r
		}
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.profile = profile
	if rank > 0 {
		s.rank = rank
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) storeUnsub(gen int, slot *func(), unsub func()) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		unsub()
		return
	}
	*slot = unsub
	s.mu.Unlock()
}

func (s *Session) currentGeneration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// RetryLocation re-issues the one-shot geolocation request after a failure.
func (s *Session) RetryLocation(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrValidation, "session not ready")
	}
	gen := s.generation
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.GeoTimeout)
	defer cancel()
	loc, err := s.geo.RequestOnce(ctx, GeolocateOptions{
		HighAccuracy: s.cfg.GeoHighAccuracy,
		Timeout:      s.cfg.GeoTimeout,
	})

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return nil
	}
	s.location = loc
	s.locationErr = err
	s.mu.Unlock()
	s.notify()
	return err
}

// Submit validates the draft locally and writes it, then issues the point
// increment. The increment is only attempted after the create acknowledges,
// and a failure of either surfaces without touching the local report list.
func (s *Session) Submit(ctx context.Context, draft Draft) (*models.Report, error) {
	s.mu.Lock()
	user := s.user
	loc := draft.Location
	if loc == nil {
		loc = s.picked
	}
	if loc == nil {
		loc = s.location
	}
	s.mu.Unlock()

	switch draft.Mode {
	case models.ModeProblem, models.ModeFurnitureOK, models.ModeSuggestion:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown report mode")
	}
	if strings.TrimSpace(draft.Description) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "description must not be empty")
	}
	if draft.Mode.RequiresPhoto() && draft.Photo == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a photo is required for this report mode")
	}
	if loc == nil {
		// Fail closed: never default to an arbitrary coordinate.
		return nil, appErrors.Clone(appErrors.ErrLocationRequired, "")
	}

	reportType := draft.Type
	if !draft.Mode.AllowsType() {
		reportType = nil
	}

	uid := models.AnonymousUser
	if user != nil {
		uid = user.UID
	}

	report := &models.Report{
		ID:          uuid.NewString(),
		Mode:        draft.Mode,
		Type:        reportType,
		Category:    draft.Category,
		Description: strings.TrimSpace(draft.Description),
		Photo:       draft.Photo,
		Lat:         loc.Lat,
		Lng:         loc.Lng,
		Address:     draft.Address,
		Date:        time.Now().UTC(),
		Status:      models.StatusNew,
		ReportedBy:  uid,
		ValidatedBy: pq.StringArray{},
	}

	if err := s.reports.Create(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreWrite.Code, appErrors.ErrStoreWrite.Status, "failed to save report")
	}

	if user != nil {
		if err := s.profiles.IncrementPoints(ctx, uid, models.PointsForMode(draft.Mode)); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStoreWrite.Code, appErrors.ErrStoreWrite.Status, "report saved but points were not awarded")
		}
	}

	s.mu.Lock()
	if s.view == ViewFormOpen || s.view == ViewPickingLocation {
		s.view = ViewIdle
		s.picked = nil
	}
	s.mu.Unlock()
	s.notify()
	return report, nil
}

// Validate confirms a furniture report on behalf of the current user.
func (s *Session) Validate(ctx context.Context, reportID string) error {
	s.mu.Lock()
	user := s.user
	var target *models.Report
	for i := range s.reportList {
		if s.reportList[i].ID == reportID {
			copied := s.reportList[i]
			target = &copied
			break
		}
	}
	s.mu.Unlock()

	if user == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "sign in to validate reports")
	}
	if target == nil {
		return appErrors.Clone(appErrors.ErrNotFound, "report not found")
	}
	if target.Mode != models.ModeFurnitureOK {
		return appErrors.Clone(appErrors.ErrValidation, "only furniture reports can be validated")
	}
	if target.AlreadyValidatedBy(user.UID) {
		return appErrors.Clone(appErrors.ErrAlreadyValidated, "")
	}

	applied, err := s.reports.AddValidation(ctx, reportID, user.UID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreWrite.Code, appErrors.ErrStoreWrite.Status, "failed to record validation")
	}
	if !applied {
		return appErrors.Clone(appErrors.ErrAlreadyValidated, "")
	}

	if err := s.profiles.IncrementPoints(ctx, user.UID, models.PointsValidation); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreWrite.Code, appErrors.ErrStoreWrite.Status, "validation saved but points were not awarded")
	}
	return nil
}

// Transition moves the view state along one of the allowed edges.
func (s *Session) Transition(next ViewState) error {
	s.mu.Lock()
	allowed := false
	switch s.view {
	case ViewIdle:
		allowed = next == ViewPickingLocation || next == ViewReportOpen || next == ViewProfileOpen || next == ViewFormOpen
	case ViewPickingLocation:
		allowed = next == ViewFormOpen || next == ViewIdle
	case ViewFormOpen, ViewReportOpen, ViewProfileOpen:
		allowed = next == ViewIdle
	}
	if !allowed {
		current := s.view
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrConflict, "cannot move from "+current.String()+" to "+next.String())
	}
	s.view = next
	if next == ViewIdle {
		s.picked = nil
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// PickLocation records a map-picked coordinate and opens the form.
func (s *Session) PickLocation(loc Location) error {
	s.mu.Lock()
	if s.view != ViewPickingLocation {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrConflict, "not picking a location")
	}
	picked := loc
	s.picked = &picked
	s.view = ViewFormOpen
	s.mu.Unlock()
	s.notify()
	return nil
}

// Snapshot returns a copy of the derived view state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := Snapshot{
		State:       s.state,
		View:        s.view,
		User:        s.user,
		Location:    s.location,
		LocationErr: s.locationErr,
		Reports:     append([]models.Report(nil), s.reportList...),
		Rank:        s.rank,
	}
	if s.profile != nil {
		snapshot.Points = s.profile.Points
		snapshot.Level = models.LevelFor(s.profile.Points)
	}
	return snapshot
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(s.Snapshot())
	}
}
