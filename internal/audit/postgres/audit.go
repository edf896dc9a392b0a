package postgres

import (
	"context"

	"github.com/frahmantamala/dashboard-management/internal/audit"
	"github.com/frahmantamala/dashboard-management/internal/core/database"
	auditDatamodel "github.com/frahmantamala/dashboard-management/internal/core/datamodel/audit"
	"gorm.io/gorm"
)

// AuditStore implements audit.Store with GORM. It is deliberately
// append-only: no update or delete method exists. Appends join any
// transaction carried by the context so a mutation and its trail entry
// commit together.
type AuditStore struct {
	db *gorm.DB
}

func NewAuditStore(db *gorm.DB) audit.Store {
	return &AuditStore{db: db}
}

func (s *AuditStore) conn(ctx context.Context) *gorm.DB {
	return database.FromContext(ctx, s.db).WithContext(ctx)
}

func (s *AuditStore) Append(ctx context.Context, entry *audit.Entry) error {
	row := &auditDatamodel.Entry{
		ID:          entry.ID,
		Subject:     entry.Subject,
		RecordID:    entry.RecordID,
		Operation:   entry.Operation,
		Actor:       entry.Actor,
		IPAddress:   entry.IPAddress,
		BeforeState: entry.BeforeState,
		AfterState:  entry.AfterState,
		CreatedAt:   entry.CreatedAt,
	}
	return s.conn(ctx).Create(row).Error
}

func (s *AuditStore) List(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	query := s.conn(ctx).Model(&auditDatamodel.Entry{})

	if filter.Subject != "" {
		query = query.Where("table_name = ?", filter.Subject)
	}
	if filter.RecordID != "" {
		query = query.Where("record_id = ?", filter.RecordID)
	}
	if filter.Operation != "" {
		query = query.Where("operation = ?", filter.Operation)
	}
	if filter.Actor != "" {
		query = query.Where("actor = ?", filter.Actor)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at < ?", filter.Until)
	}

	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = 100
	case limit > 500:
		limit = 500
	}

	var rows []*auditDatamodel.Entry
	err := query.Order("id DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]*audit.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, &audit.Entry{
			ID:          row.ID,
			Subject:     row.Subject,
			RecordID:    row.RecordID,
			Operation:   row.Operation,
			Actor:       row.Actor,
			IPAddress:   row.IPAddress,
			BeforeState: row.BeforeState,
			AfterState:  row.AfterState,
			CreatedAt:   row.CreatedAt,
		})
	}
	return entries, nil
}
