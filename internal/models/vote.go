package models

import (
	"time"
)

// Ballot values for a vote.
const (
	BallotPositive = "positive"
	BallotNegative = "negative"
)

// Vote is an immutable fact: voter V cast ballot B on application A.
// The composite unique index is the authority for exactly-once voting;
// the application-level existence check only classifies the outcome.
type Vote struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	ApplicationID uint        `gorm:"not null;uniqueIndex:idx_votes_app_voter" json:"application_id"`
	Application   Application `gorm:"foreignKey:ApplicationID" json:"application,omitempty"`
	VoterID       uint        `gorm:"not null;uniqueIndex:idx_votes_app_voter" json:"voter_id"`
	Voter         User        `gorm:"foreignKey:VoterID" json:"voter,omitempty"`
	Ballot        string      `gorm:"size:16;not null" json:"ballot"`
	CreatedAt     time.Time   `json:"created_at"`
}

// TableName specifies the table name for Vote model.
func (Vote) TableName() string {
	return "votes"
}

// IsPositive reports whether the ballot is positive.
func (v *Vote) IsPositive() bool {
	return v.Ballot == BallotPositive
}
