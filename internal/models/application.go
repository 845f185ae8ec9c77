package models

import (
	"time"
)

// Application statuses. Voting and Pending both accept votes; the rest
// are terminal. Banned is reachable only through an administrative
// override.
const (
	AppStatusPending  = "pending"
	AppStatusVoting   = "voting"
	AppStatusApproved = "approved"
	AppStatusRejected = "rejected"
	AppStatusExpired  = "expired"
	AppStatusBanned   = "banned"
)

// OpenApplicationStatuses lists the statuses that still accept votes.
var OpenApplicationStatuses = []string{AppStatusPending, AppStatusVoting}

// Application is a membership request submitted by exactly one user.
// VotesPositive/VotesNegative cache the vote ledger for that application
// and are updated in the same transaction as every vote mutation.
type Application struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"not null;index" json:"user_id"`
	User           User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	GameName       string     `gorm:"size:64;not null" json:"game_name"`
	Reason         string     `gorm:"type:text" json:"reason"`
	Status         string     `gorm:"size:32;not null;index" json:"status"`
	VotingEndsAt   time.Time  `gorm:"not null" json:"voting_ends_at"`
	VotesPositive  int        `gorm:"not null;default:0" json:"votes_positive"`
	VotesNegative  int        `gorm:"not null;default:0" json:"votes_negative"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	DecisionReason string     `gorm:"size:128" json:"decision_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Application model.
func (Application) TableName() string {
	return "applications"
}

// IsOpen reports whether the application still accepts votes.
func (a *Application) IsOpen() bool {
	return a.Status == AppStatusPending || a.Status == AppStatusVoting
}

// IsTerminal reports whether the application reached a final status.
func (a *Application) IsTerminal() bool {
	return !a.IsOpen()
}

// VotingClosed reports whether the voting window has elapsed.
func (a *Application) VotingClosed(now time.Time) bool {
	return !now.Before(a.VotingEndsAt)
}
