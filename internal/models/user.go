package models

import (
	"time"
)

// User roles. A user starts as New on first contact, becomes Applicant
// when an application is opened, and Member once admitted.
const (
	RoleNew       = "new"
	RoleApplicant = "applicant"
	RoleMember    = "member"
	RoleAdmin     = "admin"
)

// User represents a community member or candidate.
// Reputation sums are weighted aggregates of ReputationRecord rows,
// written back by the reputation service in the same transaction as the
// record mutation. They are never raw counts.
type User struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	PlatformID          string     `gorm:"column:platform_id;uniqueIndex;not null;size:64" json:"platform_id"`
	GameName            string     `gorm:"size:64" json:"game_name"`
	GameUUID            string     `gorm:"column:game_uuid;size:36" json:"game_uuid"`
	Role                string     `gorm:"size:32;not null;default:new" json:"role"`
	CanVote             bool       `gorm:"not null;default:false" json:"can_vote"`
	ReputationPositive  float64    `gorm:"not null;default:0" json:"reputation_positive"`
	ReputationNegative  float64    `gorm:"not null;default:0" json:"reputation_negative"`
	ReputationLastDecay *time.Time `json:"reputation_last_decay,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsFullMember reports whether the user is a member or admin.
func (u *User) IsFullMember() bool {
	return u.Role == RoleMember || u.Role == RoleAdmin
}
