package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/civicpulse/civicpulse-api/pkg/config"
	"github.com/civicpulse/civicpulse-api/pkg/jobs"
)

type addressWriter interface {
	UpdateAddress(ctx context.Context, id string, address string) error
}

type geocodePayload struct {
	ReportID string
	Lat      float64
	Lng      float64
}

// GeocodeService resolves report coordinates to human-readable addresses in
// the background. Resolution is best-effort: a submission never waits on it,
// and a failed lookup leaves the report without an address.
type GeocodeService struct {
	repo     addressWriter
	notifier changeNotifier
	client   *http.Client
	queue    *jobs.Queue
	baseURL  string
	userTag  string
	logger   *zap.Logger
	enabled  bool
}

// NewGeocodeService constructs a GeocodeService backed by a worker queue.
func NewGeocodeService(repo addressWriter, notifier changeNotifier, cfg config.GeocoderConfig, logger *zap.Logger) *GeocodeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &GeocodeService{
		repo:     repo,
		notifier: notifier,
		client:   &http.Client{Timeout: cfg.Timeout},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		userTag:  cfg.UserTag,
		logger:   logger,
		enabled:  cfg.Enabled,
	}
	s.queue = jobs.NewQueue("reverse-geocode", s.process, jobs.QueueConfig{
		Workers: cfg.Workers,
		Logger:  logger,
	})
	return s
}

// Start launches the geocode workers.
func (s *GeocodeService) Start(ctx context.Context) {
	if !s.enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the geocode workers.
func (s *GeocodeService) Stop() {
	if !s.enabled {
		return
	}
	s.queue.Stop()
}

// EnqueueReverseGeocode schedules an address lookup for a stored report.
func (s *GeocodeService) EnqueueReverseGeocode(reportID string, lat, lng float64) {
	if !s.enabled {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      reportID,
		Type:    "reverse-geocode",
		Payload: geocodePayload{ReportID: reportID, Lat: lat, Lng: lng},
	})
	if err != nil {
		s.logger.Warn("failed to enqueue geocode job", zap.String("report_id", reportID), zap.Error(err))
	}
}

func (s *GeocodeService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(geocodePayload)
	if !ok {
		s.logger.Warn("dropping geocode job with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	address, err := s.reverse(ctx, payload.Lat, payload.Lng)
	if err != nil {
		return fmt.Errorf("reverse geocode report %s: %w", payload.ReportID, err)
	}
	if address == "" {
		return nil
	}

	if err := s.repo.UpdateAddress(ctx, payload.ReportID, address); err != nil {
		return fmt.Errorf("store address for report %s: %w", payload.ReportID, err)
	}

	if s.notifier != nil {
		s.notifier.NotifyReportsChanged(ctx)
	}
	return nil
}

func (s *GeocodeService) reverse(ctx context.Context, lat, lng float64) (string, error) {
	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", fmt.Sprintf("%f", lat))
	query.Set("lon", fmt.Sprintf("%f", lng))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/reverse?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", s.userTag)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var body struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.DisplayName, nil
}
