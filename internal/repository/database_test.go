package repository

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/frekv/gatekeeper/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	// Enable foreign key constraints (SQLite default is off)
	db.Exec("PRAGMA foreign_keys = ON")

	err = db.AutoMigrate(
		&models.User{},
		&models.Application{},
		&models.Vote{},
		&models.ReputationRecord{},
		&models.SystemSettings{},
	)
	if err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}

	return &DB{db}
}

// createTestUser creates a user with the given role and voting right.
func createTestUser(t *testing.T, db *DB, platformID, role string, canVote bool) *models.User {
	t.Helper()

	user := &models.User{
		PlatformID: platformID,
		GameName:   platformID,
		Role:       role,
		CanVote:    canVote,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// createTestApplication creates an open application for the user with a
// voting window ending an hour from now.
func createTestApplication(t *testing.T, db *DB, userID uint) *models.Application {
	t.Helper()

	app := &models.Application{
		UserID:       userID,
		GameName:     "steve",
		Status:       models.AppStatusVoting,
		VotingEndsAt: time.Now().Add(time.Hour),
	}
	if err := db.Create(app).Error; err != nil {
		t.Fatalf("Failed to create test application: %v", err)
	}
	return app
}
