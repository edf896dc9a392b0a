package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/dashboard-management/internal/core/database"
	sessionDatamodel "github.com/frahmantamala/dashboard-management/internal/core/datamodel/session"
	"github.com/frahmantamala/dashboard-management/internal/token"
	"gorm.io/gorm"
)

type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) token.SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) conn(ctx context.Context) *gorm.DB {
	return database.FromContext(ctx, s.db).WithContext(ctx)
}

func (s *SessionStore) Create(ctx context.Context, row *sessionDatamodel.RefreshToken) error {
	return s.conn(ctx).Create(row).Error
}

func (s *SessionStore) GetByToken(ctx context.Context, tokenValue string) (*sessionDatamodel.RefreshToken, error) {
	var row sessionDatamodel.RefreshToken
	err := s.conn(ctx).Where("token = ?", tokenValue).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, token.ErrSessionNotFound
		}
		return nil, err
	}
	return &row, nil
}

// Revoke is compare-and-swap on revoked_at: the WHERE clause only matches a
// still-live row, so of two concurrent rotations exactly one sees
// RowsAffected == 1.
func (s *SessionStore) Revoke(ctx context.Context, id string, at time.Time, ip string, replacedBy *string) (int64, error) {
	updates := map[string]interface{}{
		"revoked_at": at,
		"revoked_ip": ip,
	}
	if replacedBy != nil {
		updates["replaced_by"] = *replacedBy
	}

	result := s.conn(ctx).Model(&sessionDatamodel.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// RevokeChain revokes every still-live token in the chain, including the
// newest one.
func (s *SessionStore) RevokeChain(ctx context.Context, sessionID string, at time.Time, ip string) (int64, error) {
	result := s.conn(ctx).Model(&sessionDatamodel.RefreshToken{}).
		Where("session_id = ? AND revoked_at IS NULL", sessionID).
		Updates(map[string]interface{}{
			"revoked_at": at,
			"revoked_ip": ip,
		})
	return result.RowsAffected, result.Error
}

func (s *SessionStore) RevokeAllForUser(ctx context.Context, userID int64, at time.Time, ip string) (int64, error) {
	result := s.conn(ctx).Model(&sessionDatamodel.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Updates(map[string]interface{}{
			"revoked_at": at,
			"revoked_ip": ip,
		})
	return result.RowsAffected, result.Error
}

func (s *SessionStore) ActiveChainsForUser(ctx context.Context, userID int64, now time.Time) ([]string, error) {
	var sessionIDs []string
	err := s.conn(ctx).Model(&sessionDatamodel.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, now).
		Distinct().
		Pluck("session_id", &sessionIDs).Error
	return sessionIDs, err
}
