package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/frekv/gatekeeper/internal/models"
)

// UserRepository handles user-related database operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user.
func (r *UserRepository) Create(user *models.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by id %d: %w", id, err)
	}
	return &user, nil
}

// GetByPlatformID retrieves a user by their chat-platform identity.
func (r *UserRepository) GetByPlatformID(platformID string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("platform_id = ?", platformID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by platform_id %s: %w", platformID, err)
	}
	return &user, nil
}

// GetOrCreateByPlatformID returns the user for a platform identity,
// creating a fresh New-role row on first contact. The insert races with
// itself across handlers; the unique index on platform_id resolves the
// race and the loser re-reads.
func (r *UserRepository) GetOrCreateByPlatformID(ctx context.Context, platformID, gameName string) (*models.User, error) {
	user, err := r.GetByPlatformID(platformID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	fresh := &models.User{
		PlatformID: platformID,
		GameName:   gameName,
		Role:       models.RoleNew,
		CanVote:    false,
	}
	createErr := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).Create(fresh).Error
	})
	if createErr == nil {
		return fresh, nil
	}
	if isUniqueViolation(createErr) {
		return r.GetByPlatformID(platformID)
	}
	return nil, fmt.Errorf("failed to create user for platform_id %s: %w", platformID, createErr)
}

// Update updates a user.
func (r *UserRepository) Update(user *models.User) error {
	if err := r.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// List retrieves all users with an optional role filter.
func (r *UserRepository) List(role string) ([]models.User, error) {
	query := r.db.Model(&models.User{})
	if role != "" {
		query = query.Where("role = ?", role)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// ListAdmins retrieves all admin users.
func (r *UserRepository) ListAdmins() ([]models.User, error) {
	return r.List(models.RoleAdmin)
}

// CountEligibleVoters counts users currently allowed to vote.
func (r *UserRepository) CountEligibleVoters() (int, error) {
	var count int64
	err := r.db.Model(&models.User{}).Where("can_vote = ?", true).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count eligible voters: %w", err)
	}
	return int(count), nil
}

// SetMembership atomically updates a user's role and voting right.
func (r *UserRepository) SetMembership(ctx context.Context, userID uint, role string, canVote bool) (*models.User, error) {
	var user models.User
	err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := withRowLock(tx).First(&user, userID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrUserNotFound
				}
				return err
			}
			user.Role = role
			user.CanVote = canVote
			user.UpdatedAt = time.Now()
			return tx.Save(&user).Error
		})
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to set membership for user %d: %w", userID, err)
	}
	return &user, nil
}

// SetGameIdentity records the in-game name and account UUID for a user.
func (r *UserRepository) SetGameIdentity(userID uint, gameName, gameUUID string) error {
	err := r.db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"game_name": gameName,
			"game_uuid": gameUUID,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to set game identity for user %d: %w", userID, err)
	}
	return nil
}
