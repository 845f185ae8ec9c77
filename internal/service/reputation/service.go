// Package reputation provides the peer-reputation ledger: weighted
// ratings with a single standing opinion per (rater, target) pair, the
// automatic exclusion policy, and the periodic amnesty decay.
package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	prommetrics "github.com/frekv/gatekeeper/internal/metrics"
	"github.com/frekv/gatekeeper/internal/models"
	"github.com/frekv/gatekeeper/internal/notifier"
	"github.com/frekv/gatekeeper/internal/repository"
	"github.com/frekv/gatekeeper/internal/whitelist"
	"github.com/frekv/gatekeeper/pkg/logger"
)

// Typed validation outcomes for Rate. Cooldown and daily-limit outcomes
// come from the repository, which checks them against locked state.
var (
	ErrSelfRating       = errors.New("a user cannot rate themselves")
	ErrRaterIneligible  = errors.New("rater is not eligible to rate")
	ErrTargetIneligible = errors.New("target cannot be rated")
	ErrReasonRequired   = errors.New("a negative rating requires a reason")
)

// ReputationRepository interface for reputation ledger operations.
type ReputationRepository interface {
	Apply(ctx context.Context, raterID, targetID uint, positive bool, reason string, weight float64, cooldown time.Duration, maxDaily int) (repository.RatingAction, *models.User, error)
	Aggregate(targetID uint) (positive, negative float64, err error)
	ListByTarget(targetID uint) ([]models.ReputationRecord, error)
	RunAmnesty(ctx context.Context, reductionPercent float64) (int, error)
}

// UserRepository interface for user lookups and membership mutations.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	ListAdmins() ([]models.User, error)
	CountEligibleVoters() (int, error)
	SetMembership(ctx context.Context, userID uint, role string, canVote bool) (*models.User, error)
}

// SettingsRepository interface for policy settings.
type SettingsRepository interface {
	Get(defaults models.SystemSettings) (*models.SystemSettings, error)
}

// Service handles ratings, exclusion checks and amnesty.
type Service struct {
	repRepo      ReputationRepository
	userRepo     UserRepository
	settingsRepo SettingsRepository
	defaults     models.SystemSettings
	whitelist    whitelist.Synchronizer
	notifier     notifier.Notifier
	log          *logger.Logger
}

// NewService creates a new reputation service.
func NewService(
	repRepo *repository.ReputationRepository,
	userRepo *repository.UserRepository,
	settingsRepo *repository.SettingsRepository,
	defaults models.SystemSettings,
	wl whitelist.Synchronizer,
	n notifier.Notifier,
	log *logger.Logger,
) *Service {
	return &Service{
		repRepo:      repRepo,
		userRepo:     userRepo,
		settingsRepo: settingsRepo,
		defaults:     defaults,
		whitelist:    wl,
		notifier:     n,
		log:          log,
	}
}

// NewServiceWithInterfaces creates a new reputation service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	repRepo ReputationRepository,
	userRepo UserRepository,
	settingsRepo SettingsRepository,
	defaults models.SystemSettings,
	wl whitelist.Synchronizer,
	n notifier.Notifier,
	log *logger.Logger,
) *Service {
	return &Service{
		repRepo:      repRepo,
		userRepo:     userRepo,
		settingsRepo: settingsRepo,
		defaults:     defaults,
		whitelist:    wl,
		notifier:     n,
		log:          log,
	}
}

// Rate records the rater's opinion about the target. Casting the same
// polarity as the standing opinion withdraws it; the opposite polarity
// replaces it. The weight is derived from the rater's role and standing
// at cast time and frozen into the record. Negative-direction changes
// trigger the automatic exclusion check after the commit.
func (s *Service) Rate(ctx context.Context, raterID, targetID uint, positive bool, reason string) (repository.RatingAction, error) {
	if raterID == targetID {
		prommetrics.RecordRatingRejected("self_rating")
		return "", ErrSelfRating
	}

	settings, err := s.settingsRepo.Get(s.defaults)
	if err != nil {
		return "", err
	}

	rater, err := s.userRepo.GetByID(raterID)
	if err != nil {
		return "", err
	}
	if !rater.CanVote {
		prommetrics.RecordRatingRejected("rater_ineligible")
		return "", ErrRaterIneligible
	}

	target, err := s.userRepo.GetByID(targetID)
	if err != nil {
		return "", err
	}
	if !target.IsFullMember() {
		prommetrics.RecordRatingRejected("target_ineligible")
		return "", ErrTargetIneligible
	}

	if !positive && settings.RequireNegativeReason && reason == "" {
		prommetrics.RecordRatingRejected("reason_required")
		return "", ErrReasonRequired
	}

	weight := CastWeight(rater)
	cooldown := time.Duration(settings.RatingCooldownMinutes) * time.Minute

	action, updatedTarget, err := s.repRepo.Apply(ctx, raterID, targetID, positive, reason, weight, cooldown, settings.MaxDailyRatings)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRatingCooldown):
			prommetrics.RecordRatingRejected("cooldown")
		case errors.Is(err, repository.ErrDailyRatingLimitReached):
			prommetrics.RecordRatingRejected("daily_limit")
		}
		return "", err
	}

	direction := "positive"
	if !positive {
		direction = "negative"
	}
	prommetrics.RecordRating(direction, string(action))
	s.log.Info().
		Uint("rater_id", raterID).
		Uint("target_id", targetID).
		Str("direction", direction).
		Str("action", string(action)).
		Float64("weight", weight).
		Msg("Rating applied")

	// Only changes that push the negative sum up can trip the policy.
	if !positive && action != repository.RatingRemoved {
		if err := s.CheckExclusion(ctx, updatedTarget, settings); err != nil {
			s.log.Error().
				Err(err).
				Uint("target_id", targetID).
				Msg("Exclusion check failed")
		}
	}
	return action, nil
}

// CastWeight computes the rating weight for a rater at cast time. Admins
// carry 1.5; a rater who is not yet a full member carries 0.7; members
// with a positive share above one half get a standing bonus.
func CastWeight(rater *models.User) float64 {
	if rater.IsAdmin() {
		return 1.5
	}
	if !rater.IsFullMember() {
		return 0.7
	}
	total := rater.ReputationPositive + rater.ReputationNegative
	if total > 0 {
		ratio := rater.ReputationPositive / total
		if ratio > 0.5 {
			return 1.0 + ratio*0.5
		}
	}
	return 1.0
}

// Aggregate returns the weighted reputation sums for a target, sourced
// from the ledger rows.
func (s *Service) Aggregate(targetID uint) (positive, negative float64, err error) {
	return s.repRepo.Aggregate(targetID)
}

// ListRecords lists the standing opinions about a target.
func (s *Service) ListRecords(targetID uint) ([]models.ReputationRecord, error) {
	return s.repRepo.ListByTarget(targetID)
}

// CheckExclusion applies the automatic exclusion policy to a target using
// its cached (eagerly denormalized) negative sum. Admins are never
// excluded, and communities below three eligible voters never exclude:
// one grudge must not read as a consensus.
func (s *Service) CheckExclusion(ctx context.Context, target *models.User, settings *models.SystemSettings) error {
	if target.IsAdmin() {
		return nil
	}

	eligible, err := s.userRepo.CountEligibleVoters()
	if err != nil {
		return err
	}
	if eligible < 3 {
		return nil
	}

	negativePercent := target.ReputationNegative / float64(eligible) * 100
	if negativePercent < settings.NegativeRatingsThreshold {
		return nil
	}

	if _, err := s.userRepo.SetMembership(ctx, target.ID, models.RoleApplicant, false); err != nil {
		return fmt.Errorf("failed to demote user %d: %w", target.ID, err)
	}

	prommetrics.RecordExclusion()
	s.log.Warn().
		Uint("user_id", target.ID).
		Float64("negative_weight", target.ReputationNegative).
		Float64("negative_percent", negativePercent).
		Int("eligible_voters", eligible).
		Msg("Member excluded by reputation policy")

	ok, err := s.whitelist.RemoveMember(ctx, target.GameName)
	if err != nil || !ok {
		prommetrics.RecordWhitelistSync("remove", "failed")
		s.log.Error().
			Err(err).
			Str("game_name", target.GameName).
			Msg("Whitelist removal failed; exclusion stands, sync will be reconciled")
	} else {
		prommetrics.RecordWhitelistSync("remove", "ok")
	}

	event := notifier.Event{
		Type: notifier.EventMemberExcluded,
		Text: fmt.Sprintf("%s was excluded: negative reputation reached %.1f%% of the community (threshold %.1f%%).",
			target.GameName, negativePercent, settings.NegativeRatingsThreshold),
		Fields: []notifier.Field{
			{Title: "Negative weight", Value: fmt.Sprintf("%.2f", target.ReputationNegative)},
			{Title: "Eligible voters", Value: fmt.Sprintf("%d", eligible)},
		},
	}
	if err := s.notifier.Notify(ctx, target.PlatformID, event); err != nil {
		prommetrics.RecordNotification("failed")
		s.log.Warn().Err(err).Uint("user_id", target.ID).Msg("Failed to notify excluded member")
	} else {
		prommetrics.RecordNotification("ok")
	}

	admins, err := s.userRepo.ListAdmins()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to list admins for exclusion notification")
		return nil
	}
	for _, admin := range admins {
		if err := s.notifier.Notify(ctx, admin.PlatformID, event); err != nil {
			s.log.Warn().Err(err).Uint("admin_id", admin.ID).Msg("Failed to notify admin of exclusion")
		}
	}
	return nil
}

// RunAmnesty decays every user's accumulated negative reputation by the
// configured percentage. Triggered by the scheduler; positive reputation
// is never touched.
func (s *Service) RunAmnesty(ctx context.Context) (int, error) {
	settings, err := s.settingsRepo.Get(s.defaults)
	if err != nil {
		return 0, err
	}

	decayed, err := s.repRepo.RunAmnesty(ctx, settings.AmnestyReductionPercent)
	if err != nil {
		return 0, err
	}

	s.log.Info().
		Int("users_decayed", decayed).
		Float64("reduction_percent", settings.AmnestyReductionPercent).
		Msg("Amnesty decay applied")
	return decayed, nil
}
