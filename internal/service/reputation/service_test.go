package reputation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/frekv/gatekeeper/internal/models"
	"github.com/frekv/gatekeeper/internal/repository"
	"github.com/frekv/gatekeeper/pkg/logger"
	"github.com/frekv/gatekeeper/test/mocks"
)

func setupTestService(t *testing.T) (*Service, *repository.DB, *mocks.MockWhitelist, *mocks.MockNotifier) {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	db := &repository.DB{DB: gormDB}
	require.NoError(t, db.AutoMigrate())

	wl := mocks.NewMockWhitelist()
	notify := mocks.NewMockNotifier()

	service := NewService(
		repository.NewReputationRepository(db),
		repository.NewUserRepository(db),
		repository.NewSettingsRepository(db),
		defaultSettings(),
		wl,
		notify,
		logger.Nop(),
	)
	return service, db, wl, notify
}

func defaultSettings() models.SystemSettings {
	return models.SystemSettings{
		VotingDurationHours:       48,
		MinVotes:                  3,
		ParticipationPercent:      40,
		ApprovalThresholdPercent:  60,
		RejectionThresholdPercent: 50,
		SmallCommunityThreshold:   5,
		NegativeRatingsThreshold:  30,
		RatingCooldownMinutes:     0,
		MaxDailyRatings:           0,
		AmnestyReductionPercent:   25,
		RequireNegativeReason:     true,
	}
}

func createUser(t *testing.T, db *repository.DB, platformID, role string, canVote bool) *models.User {
	t.Helper()
	user := &models.User{
		PlatformID: platformID,
		GameName:   platformID,
		Role:       role,
		CanVote:    canVote,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestCastWeight(t *testing.T) {
	tests := []struct {
		name     string
		user     *models.User
		expected float64
	}{
		{
			name:     "admin",
			user:     &models.User{Role: models.RoleAdmin},
			expected: 1.5,
		},
		{
			name:     "applicant with voting right",
			user:     &models.User{Role: models.RoleApplicant, CanVote: true},
			expected: 0.7,
		},
		{
			name:     "member without history",
			user:     &models.User{Role: models.RoleMember},
			expected: 1.0,
		},
		{
			name: "member with strong standing",
			user: &models.User{
				Role:               models.RoleMember,
				ReputationPositive: 8,
				ReputationNegative: 2,
			},
			expected: 1.4,
		},
		{
			name: "member at an even split",
			user: &models.User{
				Role:               models.RoleMember,
				ReputationPositive: 3,
				ReputationNegative: 3,
			},
			expected: 1.0,
		},
		{
			name: "member with mostly negative standing",
			user: &models.User{
				Role:               models.RoleMember,
				ReputationPositive: 1,
				ReputationNegative: 4,
			},
			expected: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CastWeight(tt.user), 1e-9)
		})
	}
}

func TestService_Rate_Validations(t *testing.T) {
	service, db, _, _ := setupTestService(t)
	ctx := context.Background()

	rater := createUser(t, db, "rater", models.RoleMember, true)
	target := createUser(t, db, "target", models.RoleMember, true)
	applicant := createUser(t, db, "applicant", models.RoleApplicant, false)

	_, err := service.Rate(ctx, rater.ID, rater.ID, true, "")
	assert.ErrorIs(t, err, ErrSelfRating)

	_, err = service.Rate(ctx, applicant.ID, target.ID, true, "")
	assert.ErrorIs(t, err, ErrRaterIneligible)

	_, err = service.Rate(ctx, rater.ID, applicant.ID, true, "")
	assert.ErrorIs(t, err, ErrTargetIneligible)

	_, err = service.Rate(ctx, rater.ID, target.ID, false, "")
	assert.ErrorIs(t, err, ErrReasonRequired)
}

func TestService_Rate_FreezesWeight(t *testing.T) {
	service, db, _, _ := setupTestService(t)
	ctx := context.Background()

	admin := createUser(t, db, "admin", models.RoleAdmin, true)
	target := createUser(t, db, "target", models.RoleMember, true)

	action, err := service.Rate(ctx, admin.ID, target.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, repository.RatingCreated, action)

	// The weight is the rater's cast-time snapshot; demoting the rater
	// afterwards never reweights the stored record.
	require.NoError(t, db.Model(&models.User{}).
		Where("id = ?", admin.ID).
		Update("role", models.RoleMember).Error)

	positive, negative, err := service.Aggregate(target.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, positive, 1e-9)
	assert.Zero(t, negative)
}

func TestService_Rate_ExclusionThreshold(t *testing.T) {
	service, db, wl, notify := setupTestService(t)
	ctx := context.Background()

	createUser(t, db, "admin", models.RoleAdmin, true)
	raterA := createUser(t, db, "rater-a", models.RoleMember, true)
	raterB := createUser(t, db, "rater-b", models.RoleMember, true)
	target := createUser(t, db, "target", models.RoleMember, true)

	// Four eligible voters, threshold 30%: one negative at weight 1.0 is
	// 25% and keeps the target in; a second pushes it to 50% and excludes.
	_, err := service.Rate(ctx, raterA.ID, target.ID, false, "griefing")
	require.NoError(t, err)

	var stored models.User
	require.NoError(t, db.First(&stored, target.ID).Error)
	assert.Equal(t, models.RoleMember, stored.Role)

	_, err = service.Rate(ctx, raterB.ID, target.ID, false, "griefing")
	require.NoError(t, err)

	require.NoError(t, db.First(&stored, target.ID).Error)
	assert.Equal(t, models.RoleApplicant, stored.Role)
	assert.False(t, stored.CanVote)
	assert.Contains(t, wl.Removed, "target")

	// The excluded member and every admin are told.
	require.Len(t, notify.SentTo("target"), 1)
	assert.Equal(t, "member_excluded", notify.SentTo("target")[0].Type)
	require.Len(t, notify.SentTo("admin"), 1)
}

func TestService_Rate_NoExclusionInTinyCommunity(t *testing.T) {
	service, db, wl, _ := setupTestService(t)
	ctx := context.Background()

	rater := createUser(t, db, "rater", models.RoleMember, true)
	target := createUser(t, db, "target", models.RoleMember, true)

	// Two eligible voters: one grudge must not read as a consensus, so the
	// exclusion policy never fires below three.
	_, err := service.Rate(ctx, rater.ID, target.ID, false, "griefing")
	require.NoError(t, err)

	var stored models.User
	require.NoError(t, db.First(&stored, target.ID).Error)
	assert.Equal(t, models.RoleMember, stored.Role)
	assert.Empty(t, wl.Removed)
}

func TestService_Rate_AdminsNeverExcluded(t *testing.T) {
	service, db, wl, _ := setupTestService(t)
	ctx := context.Background()

	raterA := createUser(t, db, "rater-a", models.RoleMember, true)
	raterB := createUser(t, db, "rater-b", models.RoleMember, true)
	raterC := createUser(t, db, "rater-c", models.RoleMember, true)
	target := createUser(t, db, "target", models.RoleAdmin, true)

	for _, rater := range []*models.User{raterA, raterB, raterC} {
		_, err := service.Rate(ctx, rater.ID, target.ID, false, "bad calls")
		require.NoError(t, err)
	}

	var stored models.User
	require.NoError(t, db.First(&stored, target.ID).Error)
	assert.Equal(t, models.RoleAdmin, stored.Role)
	assert.Empty(t, wl.Removed)
}

func TestService_Rate_WithdrawalSkipsExclusion(t *testing.T) {
	service, db, wl, _ := setupTestService(t)
	ctx := context.Background()

	createUser(t, db, "bystander-a", models.RoleMember, true)
	createUser(t, db, "bystander-b", models.RoleMember, true)
	rater := createUser(t, db, "rater", models.RoleMember, true)
	target := createUser(t, db, "target", models.RoleMember, true)

	_, err := service.Rate(ctx, rater.ID, target.ID, false, "griefing")
	require.NoError(t, err)

	// Withdrawing the negative opinion lowers the sum; no exclusion check
	// runs on the way down.
	action, err := service.Rate(ctx, rater.ID, target.ID, false, "griefing")
	require.NoError(t, err)
	assert.Equal(t, repository.RatingRemoved, action)

	_, negative, err := service.Aggregate(target.ID)
	require.NoError(t, err)
	assert.Zero(t, negative)
	assert.Empty(t, wl.Removed)
}

func TestService_RunAmnesty(t *testing.T) {
	service, db, _, _ := setupTestService(t)
	ctx := context.Background()

	rater := createUser(t, db, "rater", models.RoleMember, true)
	target := createUser(t, db, "target", models.RoleMember, true)

	_, err := service.Rate(ctx, rater.ID, target.ID, false, "afk")
	require.NoError(t, err)

	decayed, err := service.RunAmnesty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, decayed)

	var stored models.User
	require.NoError(t, db.First(&stored, target.ID).Error)
	assert.InDelta(t, 0.75, stored.ReputationNegative, 1e-9)
}
