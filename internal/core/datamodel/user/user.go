package user

import "time"

type User struct {
	ID                 int64      `gorm:"primaryKey"`
	Username           string     `gorm:"column:username;uniqueIndex;not null"`
	Email              string     `gorm:"column:email;uniqueIndex;not null"`
	FirstName          string     `gorm:"column:first_name"`
	LastName           string     `gorm:"column:last_name"`
	PasswordHash       string     `gorm:"column:password_hash;not null"`
	PasswordAlgo       string     `gorm:"column:password_algo;default:'bcrypt'"`
	IsActive           bool       `gorm:"column:is_active;default:true"`
	IsDeleted          bool       `gorm:"column:is_deleted;default:false"`
	MustChangePassword bool       `gorm:"column:must_change_password;default:false"`
	FailedLoginCount   int        `gorm:"column:failed_login_count;default:0"`
	LockedUntil        *time.Time `gorm:"column:locked_until"`
	LastLoginAt        *time.Time `gorm:"column:last_login_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;default:now()"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;default:now()"`
}

func (User) TableName() string {
	return "users"
}
