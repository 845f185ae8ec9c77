package models

import (
	"time"
)

// SystemSettings is the singleton policy configuration row, read by every
// decision and rating evaluation and written only by administrators.
type SystemSettings struct {
	ID                        uint      `gorm:"primaryKey" json:"id"`
	VotingDurationHours       int       `gorm:"not null;default:48" json:"voting_duration_hours"`
	MinVotes                  int       `gorm:"not null;default:3" json:"min_votes"`
	ParticipationPercent      float64   `gorm:"not null;default:40" json:"participation_percent"`
	ApprovalThresholdPercent  float64   `gorm:"not null;default:60" json:"approval_threshold_percent"`
	RejectionThresholdPercent float64   `gorm:"not null;default:50" json:"rejection_threshold_percent"`
	SmallCommunityThreshold   int       `gorm:"not null;default:5" json:"small_community_threshold"`
	NegativeRatingsThreshold  float64   `gorm:"not null;default:30" json:"negative_ratings_threshold"`
	RatingCooldownMinutes     int       `gorm:"not null;default:60" json:"rating_cooldown_minutes"`
	MaxDailyRatings           int       `gorm:"not null;default:5" json:"max_daily_ratings"`
	AmnestyReductionPercent   float64   `gorm:"not null;default:25" json:"amnesty_reduction_percent"`
	RequireNegativeReason     bool      `gorm:"not null;default:true" json:"require_negative_reason"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// TableName specifies the table name for SystemSettings model.
func (SystemSettings) TableName() string {
	return "system_settings"
}
