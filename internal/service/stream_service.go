package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/civicpulse/civicpulse-api/internal/broker"
	"github.com/civicpulse/civicpulse-api/internal/dto"
)

const (
	// TopicReports is the hub topic carrying full report-list snapshots.
	TopicReports = "reports"

	channelReportsChanged  = "civicpulse.reports.changed"
	channelProfilesChanged = "civicpulse.profiles.changed"
)

type changeBus interface {
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type reportSnapshotSource interface {
	List(ctx context.Context) ([]dto.ReportResponse, error)
}

type profileSnapshotSource interface {
	Me(ctx context.Context, uid string) (*dto.ProfileResponse, error)
}

type changeMessage struct {
	Origin string `json:"origin"`
	UID    string `json:"uid,omitempty"`
}

// StreamService bridges store changes to connected stream subscribers. Every
// delivery is a full snapshot, never a diff: subscribers replace their view
// wholesale on each message. Changes are announced on Redis pub/sub so every
// instance re-reads the store and fans out to its own subscribers.
type StreamService struct {
	hub        *broker.Hub
	bus        changeBus
	reports    reportSnapshotSource
	profiles   profileSnapshotSource
	metrics    *MetricsService
	logger     *zap.Logger
	instanceID string
	retryDelay time.Duration
}

// NewStreamService constructs a StreamService. The snapshot sources are
// attached later via SetSources because the report and profile services notify
// through this service in turn.
func NewStreamService(hub *broker.Hub, bus changeBus, metrics *MetricsService, logger *zap.Logger, retryDelay time.Duration) *StreamService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &StreamService{
		hub:        hub,
		bus:        bus,
		metrics:    metrics,
		logger:     logger,
		instanceID: uuid.NewString(),
		retryDelay: retryDelay,
	}
}

// SetSources attaches the snapshot readers used for fan-out.
func (s *StreamService) SetSources(reports reportSnapshotSource, profiles profileSnapshotSource) {
	s.reports = reports
	s.profiles = profiles
}

// Subscribers reports the current number of attached stream subscriptions.
func (s *StreamService) Subscribers() float64 {
	return float64(s.hub.TotalSubscribers())
}

// SubscribeReports attaches a listener to the report stream and returns the
// current snapshot so the subscriber starts from a complete view.
func (s *StreamService) SubscribeReports(ctx context.Context) (*broker.Subscription, []dto.ReportResponse, error) {
	snapshot, err := s.reports.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s.hub.Subscribe(TopicReports), snapshot, nil
}

// SubscribeProfile attaches a listener to one user's profile stream and
// returns the current snapshot.
func (s *StreamService) SubscribeProfile(ctx context.Context, uid string) (*broker.Subscription, *dto.ProfileResponse, error) {
	snapshot, err := s.profiles.Me(ctx, uid)
	if err != nil {
		return nil, nil, err
	}
	return s.hub.Subscribe(profileTopic(uid)), snapshot, nil
}

// NotifyReportsChanged fans the fresh report snapshot out locally and
// announces the change to sibling instances.
func (s *StreamService) NotifyReportsChanged(ctx context.Context) {
	s.fanOutReports(ctx)
	s.announce(ctx, channelReportsChanged, "")
}

// NotifyProfileChanged fans the user's fresh profile snapshot out locally and
// announces the change to sibling instances.
func (s *StreamService) NotifyProfileChanged(ctx context.Context, uid string) {
	s.fanOutProfile(ctx, uid)
	s.announce(ctx, channelProfilesChanged, uid)
}

// Run consumes cross-instance change announcements until the context ends.
// A dropped Redis connection is retried with a fixed delay; subscribers keep
// their local snapshots in the meantime.
func (s *StreamService) Run(ctx context.Context) {
	if s.bus == nil {
		<-ctx.Done()
		return
	}

	for {
		sub := s.bus.Subscribe(ctx, channelReportsChanged, channelProfilesChanged)
		if sub == nil {
			<-ctx.Done()
			return
		}

		s.consume(ctx, sub)
		_ = sub.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryDelay):
			s.logger.Warn("stream bus disconnected, resubscribing")
		}
	}
}

func (s *StreamService) consume(ctx context.Context, sub *redis.PubSub) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handle(ctx, msg)
		}
	}
}

func (s *StreamService) handle(ctx context.Context, msg *redis.Message) {
	var change changeMessage
	if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
		s.logger.Warn("malformed change announcement", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	if change.Origin == s.instanceID {
		// Already fanned out locally when the notify was issued.
		return
	}

	switch msg.Channel {
	case channelReportsChanged:
		s.fanOutReports(ctx)
	case channelProfilesChanged:
		s.fanOutProfile(ctx, change.UID)
	}
}

func (s *StreamService) announce(ctx context.Context, channel, uid string) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(changeMessage{Origin: s.instanceID, UID: uid})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, channel, string(payload)); err != nil {
		s.logger.Warn("failed to announce change", zap.String("channel", channel), zap.Error(err))
	}
}

func (s *StreamService) fanOutReports(ctx context.Context) {
	if s.reports == nil || s.hub.SubscriberCount(TopicReports) == 0 {
		return
	}
	snapshot, err := s.reports.List(ctx)
	if err != nil {
		s.logger.Warn("failed to build report snapshot", zap.Error(err))
		return
	}
	s.hub.Publish(TopicReports, snapshot)
	s.metrics.RecordSnapshotSent(TopicReports)
}

func (s *StreamService) fanOutProfile(ctx context.Context, uid string) {
	if s.profiles == nil || uid == "" {
		return
	}
	topic := profileTopic(uid)
	if s.hub.SubscriberCount(topic) == 0 {
		return
	}
	snapshot, err := s.profiles.Me(ctx, uid)
	if err != nil {
		s.logger.Warn("failed to build profile snapshot", zap.String("uid", uid), zap.Error(err))
		return
	}
	s.hub.Publish(topic, snapshot)
	s.metrics.RecordSnapshotSent("profile")
}

func profileTopic(uid string) string {
	return "profile:" + uid
}
