package models

import "time"

// UserProfile holds accrued gamification points for one identity.
// Points only ever increase through the store's atomic add.
type UserProfile struct {
	UID         string    `db:"uid" json:"uid"`
	DisplayName string    `db:"display_name" json:"display_name"`
	PhotoURL    string    `db:"photo_url" json:"photo_url,omitempty"`
	Points      int       `db:"points" json:"points"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// LeaderboardEntry is one row of the top-N ranking.
type LeaderboardEntry struct {
	Rank        int    `db:"-" json:"rank"`
	UID         string `db:"uid" json:"uid"`
	DisplayName string `db:"display_name" json:"display_name"`
	Points      int    `db:"points" json:"points"`
}
