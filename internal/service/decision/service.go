// Package decision owns the application state machine: submission,
// policy evaluation when voting closes, the periodic expiry sweep, and
// administrative overrides.
package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	prommetrics "github.com/frekv/gatekeeper/internal/metrics"
	"github.com/frekv/gatekeeper/internal/models"
	"github.com/frekv/gatekeeper/internal/notifier"
	"github.com/frekv/gatekeeper/internal/repository"
	"github.com/frekv/gatekeeper/internal/whitelist"
	"github.com/frekv/gatekeeper/pkg/logger"
)

// Typed outcomes of the decision engine entry points.
var (
	ErrNotAuthorized = errors.New("actor is not authorized for administrative overrides")
	ErrInvalidStatus = errors.New("invalid target status for an override")
)

// ApplicationRepository interface for application state operations.
type ApplicationRepository interface {
	Create(ctx context.Context, app *models.Application) error
	GetByID(id uint) (*models.Application, error)
	ListByStatus(status string) ([]models.Application, error)
	ListExpired(now time.Time) ([]models.Application, error)
	CountOpen() (int, error)
	Decide(ctx context.Context, id uint, fn repository.DecideFunc) (*models.Application, bool, error)
}

// UserRepository interface for membership mutations.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	GetOrCreateByPlatformID(ctx context.Context, platformID, gameName string) (*models.User, error)
	SetMembership(ctx context.Context, userID uint, role string, canVote bool) (*models.User, error)
	SetGameIdentity(userID uint, gameName, gameUUID string) error
	CountEligibleVoters() (int, error)
}

// SettingsRepository interface for policy settings.
type SettingsRepository interface {
	Get(defaults models.SystemSettings) (*models.SystemSettings, error)
}

// Service evaluates applications and performs decision side effects.
type Service struct {
	appRepo      ApplicationRepository
	userRepo     UserRepository
	settingsRepo SettingsRepository
	defaults     models.SystemSettings
	whitelist    whitelist.Synchronizer
	notifier     notifier.Notifier
	log          *logger.Logger
}

// NewService creates a new decision service.
func NewService(
	appRepo *repository.ApplicationRepository,
	userRepo *repository.UserRepository,
	settingsRepo *repository.SettingsRepository,
	defaults models.SystemSettings,
	wl whitelist.Synchronizer,
	n notifier.Notifier,
	log *logger.Logger,
) *Service {
	return &Service{
		appRepo:      appRepo,
		userRepo:     userRepo,
		settingsRepo: settingsRepo,
		defaults:     defaults,
		whitelist:    wl,
		notifier:     n,
		log:          log,
	}
}

// NewServiceWithInterfaces creates a new decision service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	appRepo ApplicationRepository,
	userRepo UserRepository,
	settingsRepo SettingsRepository,
	defaults models.SystemSettings,
	wl whitelist.Synchronizer,
	n notifier.Notifier,
	log *logger.Logger,
) *Service {
	return &Service{
		appRepo:      appRepo,
		userRepo:     userRepo,
		settingsRepo: settingsRepo,
		defaults:     defaults,
		whitelist:    wl,
		notifier:     n,
		log:          log,
	}
}

// Submit opens a membership application for a platform identity,
// creating the user on first contact. At most one open application per
// requester may exist.
func (s *Service) Submit(ctx context.Context, platformID, gameName, reason string) (*models.Application, error) {
	settings, err := s.settingsRepo.Get(s.defaults)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetOrCreateByPlatformID(ctx, platformID, gameName)
	if err != nil {
		return nil, err
	}

	app := &models.Application{
		UserID:       user.ID,
		GameName:     gameName,
		Reason:       reason,
		Status:       models.AppStatusVoting,
		VotingEndsAt: time.Now().Add(time.Duration(settings.VotingDurationHours) * time.Hour),
	}
	if err := s.appRepo.Create(ctx, app); err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("application_id", app.ID).
		Uint("user_id", user.ID).
		Str("game_name", gameName).
		Time("voting_ends_at", app.VotingEndsAt).
		Msg("Application submitted")
	return app, nil
}

// Evaluate runs the decision policy against an application. The
// transition happens only once voting has closed (the window elapsed or
// every eligible voter has voted); an open window leaves the application
// untouched. A terminal application is a no-op returning the recorded
// outcome, which makes concurrent sweeps and eager post-vote calls safe.
//
// Returns the application and whether this call performed a transition.
func (s *Service) Evaluate(ctx context.Context, applicationID uint) (*models.Application, bool, error) {
	return s.evaluate(ctx, applicationID, "eager")
}

func (s *Service) evaluate(ctx context.Context, applicationID uint, trigger string) (*models.Application, bool, error) {
	settings, err := s.settingsRepo.Get(s.defaults)
	if err != nil {
		return nil, false, err
	}

	app, transitioned, err := s.appRepo.Decide(ctx, applicationID,
		func(app *models.Application, positive, negative, eligibleVoters int) *repository.Decision {
			totalVotes := positive + negative
			closed := app.VotingClosed(time.Now()) ||
				(eligibleVoters > 0 && totalVotes >= eligibleVoters)
			if !closed {
				// An application must never expire early.
				return nil
			}
			outcome := Decide(positive, negative, eligibleVoters, settings)
			return &repository.Decision{Status: outcome.Status, Reason: outcome.Reason}
		})
	if err != nil {
		return nil, false, err
	}

	if transitioned {
		prommetrics.RecordDecision(app.Status, trigger)
		s.log.Info().
			Uint("application_id", app.ID).
			Str("status", app.Status).
			Str("reason", app.DecisionReason).
			Int("votes_positive", app.VotesPositive).
			Int("votes_negative", app.VotesNegative).
			Str("trigger", trigger).
			Msg("Application decided")
		s.applySideEffects(ctx, app)
	}
	return app, transitioned, nil
}

// SweepExpired evaluates every open application whose voting window has
// passed. Safe to run concurrently: the row lock inside Decide makes one
// invocation the effective decider and the others no-ops.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.appRepo.ListExpired(time.Now())
	if err != nil {
		return 0, err
	}

	decided := 0
	for _, app := range expired {
		if _, transitioned, err := s.evaluate(ctx, app.ID, "sweep"); err != nil {
			s.log.Error().
				Err(err).
				Uint("application_id", app.ID).
				Msg("Sweep evaluation failed")
			continue
		} else if transitioned {
			decided++
		}
	}

	if open, err := s.appRepo.CountOpen(); err == nil {
		prommetrics.SetOpenApplications(open)
	}
	if eligible, err := s.userRepo.CountEligibleVoters(); err == nil {
		prommetrics.SetEligibleVoters(eligible)
	}
	return decided, nil
}

// AdminOverride moves an open application straight to the requested
// terminal status, bypassing the policy but performing the same side
// effects the corresponding automatic outcome would.
func (s *Service) AdminOverride(ctx context.Context, applicationID uint, status string, actorID uint) (*models.Application, error) {
	actor, err := s.userRepo.GetByID(actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, ErrNotAuthorized
	}

	switch status {
	case models.AppStatusApproved, models.AppStatusRejected, models.AppStatusExpired, models.AppStatusBanned:
	default:
		return nil, ErrInvalidStatus
	}

	app, transitioned, err := s.appRepo.Decide(ctx, applicationID,
		func(_ *models.Application, _, _, _ int) *repository.Decision {
			return &repository.Decision{Status: status, Reason: ReasonAdminOverride}
		})
	if err != nil {
		return nil, err
	}
	if !transitioned {
		// Already terminal; overrides do not reopen settled applications.
		return app, nil
	}

	prommetrics.RecordDecision(app.Status, "override")
	s.log.Info().
		Uint("application_id", app.ID).
		Str("status", app.Status).
		Uint("actor_id", actorID).
		Msg("Application status overridden")
	s.applySideEffects(ctx, app)
	return app, nil
}

// applySideEffects performs the post-transition work for a terminal
// application: the membership grant and allow-list sync on approval, and
// the requester notification for every outcome. The transition is the
// source of truth; a failing collaborator is logged and never rolls it
// back.
func (s *Service) applySideEffects(ctx context.Context, app *models.Application) {
	requester, err := s.userRepo.GetByID(app.UserID)
	if err != nil {
		s.log.Error().
			Err(err).
			Uint("application_id", app.ID).
			Msg("Failed to load requester for side effects")
		return
	}

	if app.Status == models.AppStatusApproved {
		if _, err := s.userRepo.SetMembership(ctx, requester.ID, models.RoleMember, true); err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", requester.ID).
				Msg("Failed to grant membership")
		}
		if err := s.userRepo.SetGameIdentity(requester.ID, app.GameName, requester.GameUUID); err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", requester.ID).
				Msg("Failed to record game identity")
		}

		gameUUID, parseErr := uuid.Parse(requester.GameUUID)
		if parseErr != nil {
			gameUUID = uuid.Nil
		}
		ok, err := s.whitelist.AddMember(ctx, app.GameName, gameUUID)
		if err != nil || !ok {
			prommetrics.RecordWhitelistSync("add", "failed")
			s.log.Error().
				Err(err).
				Str("game_name", app.GameName).
				Msg("Whitelist sync failed; membership stands, sync will be reconciled")
		} else {
			prommetrics.RecordWhitelistSync("add", "ok")
		}
	}

	if err := s.notifier.Notify(ctx, requester.PlatformID, decisionEvent(app)); err != nil {
		prommetrics.RecordNotification("failed")
		s.log.Warn().
			Err(err).
			Uint("application_id", app.ID).
			Msg("Failed to notify requester of decision")
	} else {
		prommetrics.RecordNotification("ok")
	}
}

// decisionEvent builds the outcome notification for a decided application.
func decisionEvent(app *models.Application) notifier.Event {
	eventType := map[string]string{
		models.AppStatusApproved: notifier.EventApplicationApproved,
		models.AppStatusRejected: notifier.EventApplicationRejected,
		models.AppStatusExpired:  notifier.EventApplicationExpired,
		models.AppStatusBanned:   notifier.EventApplicationBanned,
	}[app.Status]

	return notifier.Event{
		Type: eventType,
		Text: fmt.Sprintf("Your membership application for %s is %s (%s).",
			app.GameName, app.Status, app.DecisionReason),
		Fields: []notifier.Field{
			{Title: "Votes for", Value: fmt.Sprintf("%d", app.VotesPositive)},
			{Title: "Votes against", Value: fmt.Sprintf("%d", app.VotesNegative)},
		},
	}
}
