package repository

import (
	"fmt"

	"github.com/frekv/gatekeeper/internal/models"
)

// SettingsUpdate is the closed set of updatable policy fields. Nil fields
// are left untouched; there is deliberately no map-based update path.
type SettingsUpdate struct {
	VotingDurationHours       *int     `json:"voting_duration_hours,omitempty"`
	MinVotes                  *int     `json:"min_votes,omitempty"`
	ParticipationPercent      *float64 `json:"participation_percent,omitempty"`
	ApprovalThresholdPercent  *float64 `json:"approval_threshold_percent,omitempty"`
	RejectionThresholdPercent *float64 `json:"rejection_threshold_percent,omitempty"`
	SmallCommunityThreshold   *int     `json:"small_community_threshold,omitempty"`
	NegativeRatingsThreshold  *float64 `json:"negative_ratings_threshold,omitempty"`
	RatingCooldownMinutes     *int     `json:"rating_cooldown_minutes,omitempty"`
	MaxDailyRatings           *int     `json:"max_daily_ratings,omitempty"`
	AmnestyReductionPercent   *float64 `json:"amnesty_reduction_percent,omitempty"`
	RequireNegativeReason     *bool    `json:"require_negative_reason,omitempty"`
}

// SettingsRepository handles the singleton system settings row.
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the settings row, seeding it with defaults on first run.
func (r *SettingsRepository) Get(defaults models.SystemSettings) (*models.SystemSettings, error) {
	var settings models.SystemSettings
	defaults.ID = 1
	err := r.db.Where(models.SystemSettings{ID: 1}).
		Attrs(defaults).
		FirstOrCreate(&settings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get system settings: %w", err)
	}
	return &settings, nil
}

// Update applies a partial update to the settings row and returns the
// resulting settings.
func (r *SettingsRepository) Update(defaults models.SystemSettings, update SettingsUpdate) (*models.SystemSettings, error) {
	settings, err := r.Get(defaults)
	if err != nil {
		return nil, err
	}

	if update.VotingDurationHours != nil {
		settings.VotingDurationHours = *update.VotingDurationHours
	}
	if update.MinVotes != nil {
		settings.MinVotes = *update.MinVotes
	}
	if update.ParticipationPercent != nil {
		settings.ParticipationPercent = *update.ParticipationPercent
	}
	if update.ApprovalThresholdPercent != nil {
		settings.ApprovalThresholdPercent = *update.ApprovalThresholdPercent
	}
	if update.RejectionThresholdPercent != nil {
		settings.RejectionThresholdPercent = *update.RejectionThresholdPercent
	}
	if update.SmallCommunityThreshold != nil {
		settings.SmallCommunityThreshold = *update.SmallCommunityThreshold
	}
	if update.NegativeRatingsThreshold != nil {
		settings.NegativeRatingsThreshold = *update.NegativeRatingsThreshold
	}
	if update.RatingCooldownMinutes != nil {
		settings.RatingCooldownMinutes = *update.RatingCooldownMinutes
	}
	if update.MaxDailyRatings != nil {
		settings.MaxDailyRatings = *update.MaxDailyRatings
	}
	if update.AmnestyReductionPercent != nil {
		settings.AmnestyReductionPercent = *update.AmnestyReductionPercent
	}
	if update.RequireNegativeReason != nil {
		settings.RequireNegativeReason = *update.RequireNegativeReason
	}

	if err := r.db.Save(settings).Error; err != nil {
		return nil, fmt.Errorf("failed to update system settings: %w", err)
	}
	return settings, nil
}
