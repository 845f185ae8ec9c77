package repository

import (
	"testing"

	"github.com/frekv/gatekeeper/internal/models"
)

func testDefaults() models.SystemSettings {
	return models.SystemSettings{
		VotingDurationHours:       48,
		MinVotes:                  3,
		ParticipationPercent:      40,
		ApprovalThresholdPercent:  60,
		RejectionThresholdPercent: 50,
		SmallCommunityThreshold:   5,
		NegativeRatingsThreshold:  30,
		RatingCooldownMinutes:     60,
		MaxDailyRatings:           5,
		AmnestyReductionPercent:   25,
		RequireNegativeReason:     true,
	}
}

func TestSettingsRepository_Get_SeedsDefaults(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettingsRepository(db)

	settings, err := repo.Get(testDefaults())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if settings.ID != 1 {
		t.Errorf("Expected singleton row ID 1, got %d", settings.ID)
	}
	if settings.VotingDurationHours != 48 || settings.ApprovalThresholdPercent != 60 {
		t.Errorf("Expected seeded defaults, got %+v", settings)
	}

	// A second read returns the same row, not a fresh seed.
	again, err := repo.Get(models.SystemSettings{VotingDurationHours: 1})
	if err != nil {
		t.Fatalf("Second get failed: %v", err)
	}
	if again.VotingDurationHours != 48 {
		t.Errorf("Expected stored value 48, got %d", again.VotingDurationHours)
	}
}

func TestSettingsRepository_Update_Partial(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettingsRepository(db)

	minVotes := 5
	approval := 75.0
	updated, err := repo.Update(testDefaults(), SettingsUpdate{
		MinVotes:                 &minVotes,
		ApprovalThresholdPercent: &approval,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.MinVotes != 5 || updated.ApprovalThresholdPercent != 75 {
		t.Errorf("Expected updated fields 5/75, got %d/%.0f", updated.MinVotes, updated.ApprovalThresholdPercent)
	}

	// Untouched fields keep their stored values.
	if updated.ParticipationPercent != 40 || !updated.RequireNegativeReason {
		t.Errorf("Expected untouched fields preserved, got %+v", updated)
	}

	stored, err := repo.Get(testDefaults())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.MinVotes != 5 || stored.ApprovalThresholdPercent != 75 {
		t.Errorf("Expected update persisted, got %d/%.0f", stored.MinVotes, stored.ApprovalThresholdPercent)
	}
}
