package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/civicpulse/civicpulse-api/internal/models"
)

// ProfileRepository provides database access for gamification profiles.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository creates a new instance of ProfileRepository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Ensure lazily creates the profile on first authenticated session.
// Idempotent: an existing row, including its points, is never overwritten.
func (r *ProfileRepository) Ensure(ctx context.Context, profile *models.UserProfile) error {
	const query = `INSERT INTO profiles (uid, display_name, photo_url, points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (uid) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, profile.UID, profile.DisplayName, profile.PhotoURL, profile.Points); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	return nil
}

// FindByUID returns the profile for the given identity.
func (r *ProfileRepository) FindByUID(ctx context.Context, uid string) (*models.UserProfile, error) {
	const query = `SELECT uid, display_name, photo_url, points, created_at, updated_at FROM profiles WHERE uid = $1 LIMIT 1`
	var profile models.UserProfile
	if err := r.db.GetContext(ctx, &profile, query, uid); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find profile by uid: %w", err)
	}
	return &profile, nil
}

// IncrementPoints atomically adds delta to the stored points. This is the one
// correctness-critical write in the system: concurrent increments from any
// number of sessions must all apply, so the add happens inside the statement,
// never as a client-side read-modify-write.
func (r *ProfileRepository) IncrementPoints(ctx context.Context, uid string, delta int) error {
	const query = `UPDATE profiles SET points = points + $2, updated_at = NOW() WHERE uid = $1`
	res, err := r.db.ExecContext(ctx, query, uid, delta)
	if err != nil {
		return fmt.Errorf("increment points: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountWithMorePoints counts profiles strictly above the given score.
func (r *ProfileRepository) CountWithMorePoints(ctx context.Context, points int) (int, error) {
	const query = `SELECT COUNT(*) FROM profiles WHERE points > $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, points); err != nil {
		return 0, fmt.Errorf("count profiles with more points: %w", err)
	}
	return count, nil
}

// TopByPoints returns the highest-scoring profiles, ties broken by uid for a
// stable ordering.
func (r *ProfileRepository) TopByPoints(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	const query = `SELECT uid, display_name, points FROM profiles ORDER BY points DESC, uid ASC LIMIT $1`
	entries := []models.LeaderboardEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("top profiles: %w", err)
	}
	return entries, nil
}
