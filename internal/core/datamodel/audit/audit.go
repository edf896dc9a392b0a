package audit

import "time"

// Entry rows are created once and never updated or deleted by the
// application. Retention pruning is a maintenance job, not an application
// concern.
type Entry struct {
	ID          string    `gorm:"primaryKey;column:id"`
	Subject     string    `gorm:"column:table_name;not null;index"`
	RecordID    string    `gorm:"column:record_id;not null;index"`
	Operation   string    `gorm:"column:operation;not null;index"`
	Actor       string    `gorm:"column:actor;not null;index"`
	IPAddress   string    `gorm:"column:ip_address"`
	BeforeState []byte    `gorm:"column:before_state;type:jsonb"`
	AfterState  []byte    `gorm:"column:after_state;type:jsonb"`
	CreatedAt   time.Time `gorm:"column:created_at;default:now()"`
}

func (Entry) TableName() string {
	return "audit_entries"
}
