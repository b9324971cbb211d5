package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/civicpulse/civicpulse-api/internal/dto"
	"github.com/civicpulse/civicpulse-api/internal/models"
	appErrors "github.com/civicpulse/civicpulse-api/pkg/errors"
)

type profileRepository interface {
	Ensure(ctx context.Context, profile *models.UserProfile) error
	FindByUID(ctx context.Context, uid string) (*models.UserProfile, error)
	CountWithMorePoints(ctx context.Context, points int) (int, error)
	TopByPoints(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

type leaderboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

const leaderboardCacheKey = "leaderboard:top"

// ProfileService derives the profile view state (points, level, global rank)
// and serves the cached leaderboard.
type ProfileService struct {
	repo     profileRepository
	cache    leaderboardCache
	metrics  *MetricsService
	logger   *zap.Logger
	size     int
	cacheTTL time.Duration
}

// NewProfileService creates an instance of ProfileService.
func NewProfileService(repo profileRepository, cache leaderboardCache, metrics *MetricsService, logger *zap.Logger, size int, cacheTTL time.Duration) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = 20
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &ProfileService{repo: repo, cache: cache, metrics: metrics, logger: logger, size: size, cacheTTL: cacheTTL}
}

// Me returns the profile snapshot for the given identity, creating the profile
// lazily when the first session never wrote one.
func (s *ProfileService) Me(ctx context.Context, uid string) (*dto.ProfileResponse, error) {
	profile, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
		}
		profile = &models.UserProfile{UID: uid, DisplayName: "Citizen"}
		if err := s.repo.Ensure(ctx, profile); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStoreWrite.Code, appErrors.ErrStoreWrite.Status, "failed to create profile")
		}
	}

	rank, err := s.RankFor(ctx, profile.Points)
	if err != nil {
		return nil, err
	}

	return &dto.ProfileResponse{
		UID:         profile.UID,
		DisplayName: profile.DisplayName,
		PhotoURL:    profile.PhotoURL,
		Points:      profile.Points,
		Level:       models.LevelFor(profile.Points),
		Rank:        rank,
	}, nil
}

// RankFor computes the global leaderboard position for a point total. The
// result is a point-in-time snapshot; strong consistency with concurrent
// increments is explicitly not a goal.
func (s *ProfileService) RankFor(ctx context.Context, points int) (int, error) {
	if points <= 0 {
		return 1, nil
	}
	count, err := s.repo.CountWithMorePoints(ctx, points)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute rank")
	}
	return 1 + count, nil
}

// Leaderboard returns the ranked top-N profiles, served from cache when fresh.
func (s *ProfileService) Leaderboard(ctx context.Context) (*dto.LeaderboardResponse, error) {
	if s.cache != nil {
		cached := &dto.LeaderboardResponse{}
		if err := s.cache.Get(ctx, leaderboardCacheKey, cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return cached, nil
		}
		s.metrics.RecordCacheOperation(false)
	}

	entries, err := s.repo.TopByPoints(ctx, s.size)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leaderboard")
	}

	for i := range entries {
		if i > 0 && entries[i].Points == entries[i-1].Points {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}

	result := &dto.LeaderboardResponse{
		Entries:     entries,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, leaderboardCacheKey, result, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache leaderboard", zap.Error(err))
		}
	}

	return result, nil
}
