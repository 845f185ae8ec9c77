package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/frekv/gatekeeper/internal/models"
)

// RatingAction describes what applying a rating did to the rater's
// standing opinion about the target.
type RatingAction string

// Rating actions.
const (
	RatingCreated  RatingAction = "created"
	RatingReplaced RatingAction = "replaced"
	RatingRemoved  RatingAction = "removed"
)

// ReputationRepository handles reputation-ledger database operations.
// A rater holds at most one standing opinion per target, guarded by the
// (rater_id, target_id) unique index and a locked read-modify-write.
type ReputationRepository struct {
	db *DB
}

// NewReputationRepository creates a new reputation repository.
func NewReputationRepository(db *DB) *ReputationRepository {
	return &ReputationRepository{db: db}
}

// Apply records a rating in one transaction: cooldown and daily-cap
// checks against the locked state, the toggle/replace/insert mutation,
// and the weighted re-aggregation written back onto the target's row.
//
// Same polarity as the standing opinion withdraws it; the opposite
// polarity replaces polarity, reason and weight in place. The weight is
// the caller's cast-time snapshot and is stored as-is.
//
// Returns the action taken and the target user with refreshed sums.
func (r *ReputationRepository) Apply(
	ctx context.Context,
	raterID, targetID uint,
	positive bool,
	reason string,
	weight float64,
	cooldown time.Duration,
	maxDaily int,
) (RatingAction, *models.User, error) {
	var action RatingAction
	var target models.User

	err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := withRowLock(tx).First(&target, targetID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrUserNotFound
				}
				return err
			}

			var existing models.ReputationRecord
			err := withRowLock(tx).
				Where("rater_id = ? AND target_id = ?", raterID, targetID).
				First(&existing).Error
			found := err == nil
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			now := time.Now()
			if found && cooldown > 0 && now.Sub(existing.CreatedAt) < cooldown {
				return ErrRatingCooldown
			}

			if !found && maxDaily > 0 {
				// The cap counts opinions authored today; a replacement keeps
				// its original created_at and neither consumes nor checks quota.
				midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
				var todays int64
				err := tx.Model(&models.ReputationRecord{}).
					Where("rater_id = ? AND created_at >= ?", raterID, midnight).
					Count(&todays).Error
				if err != nil {
					return err
				}
				if int(todays) >= maxDaily {
					return ErrDailyRatingLimitReached
				}
			}

			switch {
			case found && existing.Positive == positive:
				// Same polarity again: the opinion is withdrawn.
				if err := tx.Delete(&existing).Error; err != nil {
					return err
				}
				action = RatingRemoved
			case found:
				// Changed mind: replace polarity, reason and weight in place.
				existing.Positive = positive
				existing.Reason = reason
				existing.Weight = weight
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
				action = RatingReplaced
			default:
				record := models.ReputationRecord{
					RaterID:  raterID,
					TargetID: targetID,
					Positive: positive,
					Reason:   reason,
					Weight:   weight,
				}
				if err := tx.Create(&record).Error; err != nil {
					if isUniqueViolation(err) {
						// A concurrent first rating for the same pair won the
						// insert. Retry the transaction; the next pass sees the
						// standing opinion and takes the toggle/replace path.
						return errWriteConflict
					}
					return err
				}
				action = RatingCreated
			}

			// Eager denormalization: the exclusion check reads the user
			// row, never the records, so the sums must be refreshed here.
			posSum, negSum, err := aggregateWeights(tx, targetID)
			if err != nil {
				return err
			}
			target.ReputationPositive = posSum
			target.ReputationNegative = negSum
			return tx.Save(&target).Error
		})
	})

	switch {
	case err == nil:
		return action, &target, nil
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrRatingCooldown),
		errors.Is(err, ErrDailyRatingLimitReached):
		return "", nil, err
	default:
		return "", nil, fmt.Errorf("failed to apply rating for target %d: %w", targetID, err)
	}
}

// Aggregate sums the active record weights for a target by polarity,
// straight from the ledger rows.
func (r *ReputationRepository) Aggregate(targetID uint) (positive, negative float64, err error) {
	positive, negative, err = aggregateWeights(r.db.DB, targetID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to aggregate reputation for target %d: %w", targetID, err)
	}
	return positive, negative, nil
}

// GetBetween retrieves the standing opinion between a rater and target,
// or nil if none exists.
func (r *ReputationRepository) GetBetween(raterID, targetID uint) (*models.ReputationRecord, error) {
	var record models.ReputationRecord
	err := r.db.Where("rater_id = ? AND target_id = ?", raterID, targetID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reputation record %d->%d: %w", raterID, targetID, err)
	}
	return &record, nil
}

// ListByTarget lists all standing opinions about a target.
func (r *ReputationRepository) ListByTarget(targetID uint) ([]models.ReputationRecord, error) {
	var records []models.ReputationRecord
	err := r.db.Where("target_id = ?", targetID).
		Preload("Rater").
		Order("updated_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reputation records for target %d: %w", targetID, err)
	}
	return records, nil
}

// RunAmnesty decays accumulated negative reputation by the given percent.
// Both the negative record weights and the cached user sums shrink by the
// same factor in one transaction, so a later re-aggregation reproduces
// the decayed sums instead of undoing them. Positive reputation is never
// touched. Returns the number of users decayed.
func (r *ReputationRepository) RunAmnesty(ctx context.Context, reductionPercent float64) (int, error) {
	if reductionPercent <= 0 {
		return 0, nil
	}
	factor := 1 - reductionPercent/100
	if factor < 0 {
		factor = 0
	}

	var decayed int64
	err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			err := tx.Model(&models.ReputationRecord{}).
				Where("positive = ?", false).
				Update("weight", gorm.Expr("weight * ?", factor)).Error
			if err != nil {
				return err
			}

			res := tx.Model(&models.User{}).
				Where("reputation_negative > 0").
				Updates(map[string]interface{}{
					"reputation_negative":   gorm.Expr("reputation_negative * ?", factor),
					"reputation_last_decay": time.Now(),
				})
			if res.Error != nil {
				return res.Error
			}
			decayed = res.RowsAffected
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to run amnesty: %w", err)
	}
	return int(decayed), nil
}

// aggregateWeights sums record weights for a target partitioned by polarity.
func aggregateWeights(tx *gorm.DB, targetID uint) (positive, negative float64, err error) {
	type row struct {
		Positive bool
		Total    float64
	}
	var rows []row
	err = tx.Model(&models.ReputationRecord{}).
		Select("positive, COALESCE(SUM(weight), 0) as total").
		Where("target_id = ?", targetID).
		Group("positive").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}
	for _, r := range rows {
		if r.Positive {
			positive = r.Total
		} else {
			negative = r.Total
		}
	}
	return positive, negative, nil
}
