package models

import (
	"time"
)

// ReputationRecord is a rater's single standing opinion about a target.
// Weight is computed from the rater's role and standing at cast time and
// frozen into the row; later changes to the rater never reweight it.
// Casting the same polarity again withdraws the opinion; the opposite
// polarity replaces polarity, reason and weight in place.
type ReputationRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RaterID   uint      `gorm:"not null;uniqueIndex:idx_reputation_rater_target" json:"rater_id"`
	Rater     User      `gorm:"foreignKey:RaterID" json:"rater,omitempty"`
	TargetID  uint      `gorm:"not null;uniqueIndex:idx_reputation_rater_target" json:"target_id"`
	Target    User      `gorm:"foreignKey:TargetID" json:"target,omitempty"`
	Positive  bool      `gorm:"not null" json:"positive"`
	Reason    string    `gorm:"type:text" json:"reason"`
	Weight    float64   `gorm:"not null;default:1" json:"weight"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for ReputationRecord model.
func (ReputationRecord) TableName() string {
	return "reputation_records"
}
