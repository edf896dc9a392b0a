package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/frahmantamala/dashboard-management/internal/auth"
	"github.com/frahmantamala/dashboard-management/internal/core/database"
	userDatamodel "github.com/frahmantamala/dashboard-management/internal/core/datamodel/user"
	"gorm.io/gorm"
)

type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) auth.CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) conn(ctx context.Context) *gorm.DB {
	return database.FromContext(ctx, s.db).WithContext(ctx)
}

// GetByIdentifier looks up a non-deleted user by username or email.
func (s *CredentialStore) GetByIdentifier(ctx context.Context, identifier string) (*userDatamodel.User, error) {
	var user userDatamodel.User
	err := s.conn(ctx).
		Where("(username = ? OR email = ?) AND is_deleted = ?", identifier, identifier, false).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// RecordFailedAttempt increments the failure counter and sets the lockout
// expiry in one statement. The database evaluates increment and threshold
// together, so concurrent wrong attempts cannot both read a stale count and
// skip the lockout.
func (s *CredentialStore) RecordFailedAttempt(ctx context.Context, userID int64, threshold int, lockUntil time.Time) (int, bool, error) {
	row := s.conn(ctx).Raw(`
		UPDATE users
		SET failed_login_count = failed_login_count + 1,
		    locked_until = CASE
		        WHEN failed_login_count + 1 >= ? THEN ?
		        ELSE locked_until
		    END,
		    updated_at = ?
		WHERE id = ?
		RETURNING failed_login_count, locked_until`,
		threshold, lockUntil, time.Now(), userID).Row()

	var newCount int
	var lockedUntil sql.NullTime
	if err := row.Scan(&newCount, &lockedUntil); err != nil {
		return 0, false, err
	}

	locked := lockedUntil.Valid && lockedUntil.Time.After(time.Now())
	return newCount, locked, nil
}

// ResetLockout clears the failure counter and lockout window after a
// successful login and stamps last_login_at.
func (s *CredentialStore) ResetLockout(ctx context.Context, userID int64, lastLogin time.Time) error {
	return s.conn(ctx).Model(&userDatamodel.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"failed_login_count": 0,
			"locked_until":       nil,
			"last_login_at":      lastLogin,
			"updated_at":         time.Now(),
		}).Error
}
