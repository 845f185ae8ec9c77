package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/frekv/gatekeeper/internal/models"
)

// Decision is what a decision callback returns: the terminal status to
// move the application to, and a short reason recorded with it.
type Decision struct {
	Status string
	Reason string
}

// DecideFunc evaluates an open application against the authoritative
// tally and the eligible-voter count. Returning nil leaves the
// application open (voting has not closed yet).
type DecideFunc func(app *models.Application, positive, negative, eligibleVoters int) *Decision

// ApplicationRepository handles application-related database operations.
type ApplicationRepository struct {
	db *DB
}

// NewApplicationRepository creates a new application repository.
func NewApplicationRepository(db *DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create opens a new application for a requester. At most one open
// application per requester may exist; the check runs under a row lock on
// the requester so two concurrent submissions cannot both pass it.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var requester models.User
			if err := withRowLock(tx).First(&requester, app.UserID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrUserNotFound
				}
				return err
			}

			var openCount int64
			err := tx.Model(&models.Application{}).
				Where("user_id = ? AND status IN ?", app.UserID, models.OpenApplicationStatuses).
				Count(&openCount).Error
			if err != nil {
				return err
			}
			if openCount > 0 {
				return ErrOpenApplicationExists
			}

			if err := tx.Create(app).Error; err != nil {
				return err
			}

			if requester.Role == models.RoleNew {
				requester.Role = models.RoleApplicant
				if err := tx.Save(&requester).Error; err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrOpenApplicationExists) || errors.Is(err, ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// GetByID retrieves an application by ID.
func (r *ApplicationRepository) GetByID(id uint) (*models.Application, error) {
	var app models.Application
	err := r.db.Preload("User").First(&app, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to get application by id %d: %w", id, err)
	}
	return &app, nil
}

// GetOpenByUserID retrieves the requester's open application, if any.
func (r *ApplicationRepository) GetOpenByUserID(userID uint) (*models.Application, error) {
	var app models.Application
	err := r.db.Where("user_id = ? AND status IN ?", userID, models.OpenApplicationStatuses).
		First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to get open application for user %d: %w", userID, err)
	}
	return &app, nil
}

// ListByStatus lists applications by status; an empty status lists all.
func (r *ApplicationRepository) ListByStatus(status string) ([]models.Application, error) {
	query := r.db.Preload("User").Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var apps []models.Application
	if err := query.Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("failed to list applications by status %s: %w", status, err)
	}
	return apps, nil
}

// ListExpired lists open applications whose voting window has passed.
func (r *ApplicationRepository) ListExpired(now time.Time) ([]models.Application, error) {
	var apps []models.Application
	err := r.db.Where("status IN ? AND voting_ends_at <= ?", models.OpenApplicationStatuses, now).
		Find(&apps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired applications: %w", err)
	}
	return apps, nil
}

// CountOpen counts applications that still accept votes.
func (r *ApplicationRepository) CountOpen() (int, error) {
	var count int64
	err := r.db.Model(&models.Application{}).
		Where("status IN ?", models.OpenApplicationStatuses).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count open applications: %w", err)
	}
	return int(count), nil
}

// Decide runs the decision callback against a freshly locked application
// and persists the transition it returns, all in one transaction.
//
// The row lock on the application makes transitions out of the open state
// mutually exclusive: a concurrent caller blocks here, then observes the
// terminal status and returns it unchanged. The tally handed to the
// callback is recomputed from the vote rows, never from the cached
// counters, and the cached counters are refreshed alongside the
// transition so the two cannot drift.
//
// Returns the application and whether this call performed the transition.
func (r *ApplicationRepository) Decide(ctx context.Context, id uint, fn DecideFunc) (*models.Application, bool, error) {
	var app models.Application
	transitioned := false

	err := withRetry(ctx, func() error {
		transitioned = false
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := withRowLock(tx).First(&app, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrApplicationNotFound
				}
				return err
			}
			if app.IsTerminal() {
				// Re-evaluation of a settled application is a no-op.
				return nil
			}

			positive, negative, err := tallyVotes(tx, app.ID)
			if err != nil {
				return err
			}

			var eligible int64
			if err := tx.Model(&models.User{}).Where("can_vote = ?", true).Count(&eligible).Error; err != nil {
				return err
			}

			decision := fn(&app, positive, negative, int(eligible))
			if decision == nil {
				// Voting has not closed; refresh the cached tally only.
				app.VotesPositive = positive
				app.VotesNegative = negative
				return tx.Save(&app).Error
			}

			now := time.Now()
			app.Status = decision.Status
			app.DecisionReason = decision.Reason
			app.DecidedAt = &now
			app.VotesPositive = positive
			app.VotesNegative = negative
			if err := tx.Save(&app).Error; err != nil {
				return err
			}
			transitioned = true
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrApplicationNotFound) {
			return nil, false, ErrApplicationNotFound
		}
		return nil, false, fmt.Errorf("failed to decide application %d: %w", id, err)
	}
	return &app, transitioned, nil
}

// Delete removes an application and cascades to its votes. Administrative
// use only; decided applications are normally kept for the record.
func (r *ApplicationRepository) Delete(ctx context.Context, id uint) error {
	err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("application_id = ?", id).Delete(&models.Vote{}).Error; err != nil {
				return err
			}
			return tx.Delete(&models.Application{}, id).Error
		})
	})
	if err != nil {
		return fmt.Errorf("failed to delete application %d: %w", id, err)
	}
	return nil
}

// tallyVotes counts vote rows for an application partitioned by ballot.
func tallyVotes(tx *gorm.DB, applicationID uint) (positive, negative int, err error) {
	type row struct {
		Ballot string
		Count  int64
	}
	var rows []row
	err = tx.Model(&models.Vote{}).
		Select("ballot, count(*) as count").
		Where("application_id = ?", applicationID).
		Group("ballot").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}
	for _, r := range rows {
		switch r.Ballot {
		case models.BallotPositive:
			positive = int(r.Count)
		case models.BallotNegative:
			negative = int(r.Count)
		}
	}
	return positive, negative, nil
}
