package session

import "time"

// RefreshToken is one link in a session chain. Rotation marks the old row
// revoked and points replaced_by at its successor, so at most one live token
// exists per session_id.
type RefreshToken struct {
	ID         string     `gorm:"primaryKey;column:id"`
	SessionID  string     `gorm:"column:session_id;not null;index"`
	UserID     int64      `gorm:"column:user_id;not null;index"`
	Token      string     `gorm:"column:token;uniqueIndex;not null"`
	IssuedIP   string     `gorm:"column:issued_ip"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;not null"`
	CreatedAt  time.Time  `gorm:"column:created_at;default:now()"`
	RevokedAt  *time.Time `gorm:"column:revoked_at"`
	RevokedIP  string     `gorm:"column:revoked_ip"`
	ReplacedBy *string    `gorm:"column:replaced_by"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}
