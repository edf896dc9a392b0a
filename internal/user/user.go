package user

import (
	"context"
	"errors"
	"time"

	userDatamodel "github.com/frahmantamala/dashboard-management/internal/core/datamodel/user"
)

var ErrNotFound = errors.New("user not found")

// User is the domain view of an account. The stored bcrypt hash never
// crosses this boundary.
type User struct {
	ID                 int64      `json:"id"`
	Username           string     `json:"username"`
	Email              string     `json:"email"`
	FirstName          string     `json:"first_name,omitempty"`
	LastName           string     `json:"last_name,omitempty"`
	IsActive           bool       `json:"is_active"`
	IsAdmin            bool       `json:"is_admin"`
	MustChangePassword bool       `json:"must_change_password"`
	Roles              []string   `json:"roles,omitempty"`
	Permissions        []string   `json:"permissions,omitempty"`
	LockedUntil        *time.Time `json:"locked_until,omitempty"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Repository is the persistence surface for account management. Create must
// surface duplicate username and email as distinct errors and must not leave
// a partial row behind on conflict.
type Repository interface {
	Create(ctx context.Context, u *userDatamodel.User) error
	GetByID(ctx context.Context, id int64) (*userDatamodel.User, error)
	GetByUsername(ctx context.Context, username string) (*userDatamodel.User, error)
	List(ctx context.Context, includeInactive bool, limit, offset int) ([]*userDatamodel.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	SetActive(ctx context.Context, id int64, active bool) error
	ClearLockout(ctx context.Context, id int64) error
	SoftDelete(ctx context.Context, id int64) error
}

func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:                 u.ID,
		Username:           u.Username,
		Email:              u.Email,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		IsActive:           u.IsActive,
		MustChangePassword: u.MustChangePassword,
		LockedUntil:        u.LockedUntil,
		LastLoginAt:        u.LastLoginAt,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}
