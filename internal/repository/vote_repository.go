package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/frekv/gatekeeper/internal/models"
)

// VoteRepository handles vote-ledger database operations. Every mutation
// runs as one transaction that locks the application row, serializes the
// existence check through a locking read, and updates the denormalized
// tally alongside the ledger row.
type VoteRepository struct {
	db *DB
}

// NewVoteRepository creates a new vote repository.
func NewVoteRepository(db *DB) *VoteRepository {
	return &VoteRepository{db: db}
}

// Cast records one vote for (applicationID, voterID). Exactly-once: the
// locking read closes the race between two in-flight identical votes, and
// the composite unique index backstops it; a loser that slipped past the
// read still fails the insert and is reported as a duplicate.
func (r *VoteRepository) Cast(ctx context.Context, applicationID, voterID uint, ballot string) error {
	if ballot != models.BallotPositive && ballot != models.BallotNegative {
		return fmt.Errorf("invalid ballot %q", ballot)
	}

	err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var app models.Application
			if err := withRowLock(tx).First(&app, applicationID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrApplicationNotFound
				}
				return err
			}
			if !app.IsOpen() {
				return ErrApplicationNotOpen
			}

			var voter models.User
			if err := withRowLock(tx).First(&voter, voterID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrVoterIneligible
				}
				return err
			}
			if !voter.CanVote {
				return ErrVoterIneligible
			}

			var existing models.Vote
			err := withRowLock(tx).
				Where("application_id = ? AND voter_id = ?", applicationID, voterID).
				First(&existing).Error
			if err == nil {
				return ErrDuplicateVote
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			vote := models.Vote{
				ApplicationID: applicationID,
				VoterID:       voterID,
				Ballot:        ballot,
			}
			if err := tx.Create(&vote).Error; err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicateVote
				}
				return err
			}

			counter := "votes_positive"
			if ballot == models.BallotNegative {
				counter = "votes_negative"
			}
			return tx.Model(&app).
				UpdateColumn(counter, gorm.Expr(counter+" + 1")).Error
		})
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrApplicationNotFound),
		errors.Is(err, ErrApplicationNotOpen),
		errors.Is(err, ErrDuplicateVote),
		errors.Is(err, ErrVoterIneligible):
		return err
	default:
		return fmt.Errorf("failed to cast vote on application %d: %w", applicationID, err)
	}
}

// Retract removes the voter's vote from an open application. Returns
// whether a vote row was actually removed.
func (r *VoteRepository) Retract(ctx context.Context, applicationID, voterID uint) (bool, error) {
	removed := false
	err := withRetry(ctx, func() error {
		removed = false
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var app models.Application
			if err := withRowLock(tx).First(&app, applicationID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrApplicationNotFound
				}
				return err
			}
			if !app.IsOpen() {
				return ErrApplicationNotOpen
			}

			var existing models.Vote
			err := withRowLock(tx).
				Where("application_id = ? AND voter_id = ?", applicationID, voterID).
				First(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return err
			}

			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}

			counter := "votes_positive"
			if existing.Ballot == models.BallotNegative {
				counter = "votes_negative"
			}
			if err := tx.Model(&app).
				UpdateColumn(counter, gorm.Expr(counter+" - 1")).Error; err != nil {
				return err
			}
			removed = true
			return nil
		})
	})

	switch {
	case err == nil:
		return removed, nil
	case errors.Is(err, ErrApplicationNotFound), errors.Is(err, ErrApplicationNotOpen):
		return false, err
	default:
		return false, fmt.Errorf("failed to retract vote on application %d: %w", applicationID, err)
	}
}

// Tally returns the authoritative vote counts for an application, sourced
// from the vote rows rather than the cached counters.
func (r *VoteRepository) Tally(applicationID uint) (positive, negative int, err error) {
	positive, negative, err = tallyVotes(r.db.DB, applicationID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to tally application %d: %w", applicationID, err)
	}
	return positive, negative, nil
}

// GetByApplicationAndVoter retrieves a voter's vote on an application.
func (r *VoteRepository) GetByApplicationAndVoter(applicationID, voterID uint) (*models.Vote, error) {
	var vote models.Vote
	err := r.db.Where("application_id = ? AND voter_id = ?", applicationID, voterID).
		First(&vote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get vote for application %d voter %d: %w", applicationID, voterID, err)
	}
	return &vote, nil
}

// ListByApplication lists all votes on an application.
func (r *VoteRepository) ListByApplication(applicationID uint) ([]models.Vote, error) {
	var votes []models.Vote
	err := r.db.Where("application_id = ?", applicationID).
		Preload("Voter").
		Order("created_at ASC").
		Find(&votes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list votes for application %d: %w", applicationID, err)
	}
	return votes, nil
}
