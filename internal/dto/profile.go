package dto

import "github.com/civicpulse/civicpulse-api/internal/models"

// ProfileResponse is the profile snapshot with derived view state.
// Rank is a point-in-time count, not transactionally consistent with writes.
type ProfileResponse struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Points      int    `json:"points"`
	Level       int    `json:"level"`
	Rank        int    `json:"rank"`
}

// LeaderboardResponse wraps the ranked top-N entries.
type LeaderboardResponse struct {
	Entries     []models.LeaderboardEntry `json:"entries"`
	GeneratedAt string                    `json:"generated_at"`
}
