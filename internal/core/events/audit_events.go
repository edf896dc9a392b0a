package events

import (
	"time"

	"github.com/google/uuid"
)

const EventTypeAuditEntry = "audit.entry"

// AuditEntryEvent carries a routine (non-security-sensitive) audit record to
// the recorder's async subscriber.
type AuditEntryEvent struct {
	BaseEvent
	Subject     string `json:"subject"`
	RecordID    string `json:"record_id"`
	Operation   string `json:"operation"`
	Actor       string `json:"actor"`
	IPAddress   string `json:"ip_address"`
	BeforeState []byte `json:"before_state,omitempty"`
	AfterState  []byte `json:"after_state,omitempty"`
}

func NewAuditEntryEvent(subject, recordID, operation, actor, ipAddress string, before, after []byte) *AuditEntryEvent {
	return &AuditEntryEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeAuditEntry,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"subject":   subject,
				"record_id": recordID,
				"operation": operation,
				"actor":     actor,
			},
		},
		Subject:     subject,
		RecordID:    recordID,
		Operation:   operation,
		Actor:       actor,
		IPAddress:   ipAddress,
		BeforeState: before,
		AfterState:  after,
	}
}
