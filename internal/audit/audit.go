package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Operation kinds recorded in the trail. Security-sensitive operations must
// be written synchronously before the triggering request is acknowledged.
const (
	OpLoginAttempt      = "login_attempt"
	OpAccountLocked     = "account_locked"
	OpAccountUnlocked   = "account_unlocked"
	OpTokenIssued       = "token_issued"
	OpTokenRotated      = "token_rotated"
	OpTokenRevoked      = "token_revoked"
	OpChainRevoked      = "chain_revoked"
	OpReuseDetected     = "reuse_detected"
	OpAccessDenied      = "access_denied"
	OpUserCreated       = "user_created"
	OpUserUpdated       = "user_updated"
	OpUserDeactivated   = "user_deactivated"
	OpUserDeleted       = "user_deleted"
	OpPasswordChanged   = "password_changed"
	OpRoleCreated       = "role_created"
	OpRoleDeactivated   = "role_deactivated"
	OpPermissionCreated = "permission_created"
	OpRoleAssigned      = "role_assigned"
	OpRoleUnassigned    = "role_unassigned"
	OpPermissionGranted = "permission_granted"
	OpPermissionRevoked = "permission_revoked"
)

// Entry is one immutable audit record. Before/After are opaque snapshots;
// the recorder never interprets their contents.
type Entry struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	RecordID    string    `json:"record_id"`
	Operation   string    `json:"operation"`
	Actor       string    `json:"actor"`
	IPAddress   string    `json:"ip_address,omitempty"`
	BeforeState []byte    `json:"before_state,omitempty"`
	AfterState  []byte    `json:"after_state,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewEntry builds an entry with a fresh ULID, marshalling the optional
// before/after snapshots to JSON.
func NewEntry(subject, recordID, operation, actor, ip string, before, after interface{}) (*Entry, error) {
	e := &Entry{
		ID:        ulid.Make().String(),
		Subject:   subject,
		RecordID:  recordID,
		Operation: operation,
		Actor:     actor,
		IPAddress: ip,
		CreatedAt: time.Now().UTC(),
	}

	if before != nil {
		data, err := json.Marshal(before)
		if err != nil {
			return nil, err
		}
		e.BeforeState = data
	}
	if after != nil {
		data, err := json.Marshal(after)
		if err != nil {
			return nil, err
		}
		e.AfterState = data
	}

	return e, nil
}

// Filter narrows the operator query surface over the trail.
type Filter struct {
	Subject   string
	RecordID  string
	Operation string
	Actor     string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// Store is append-only: implementations must expose no update or delete
// path.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) ([]*Entry, error)
}
