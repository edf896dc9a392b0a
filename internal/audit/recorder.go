package audit

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/dashboard-management/internal"
	"github.com/frahmantamala/dashboard-management/internal/core/database"
	"github.com/frahmantamala/dashboard-management/internal/core/events"
)

// Recorder appends audit entries. Record is synchronous: the caller's
// operation must not be acknowledged until the entry is durable. RecordAsync
// dispatches through the event bus and is allowed to be eventually
// consistent, for routine mutations only.
type Recorder struct {
	store  Store
	bus    *events.EventBus
	logger *slog.Logger
}

func NewRecorder(store Store, bus *events.EventBus, logger *slog.Logger) *Recorder {
	r := &Recorder{
		store:  store,
		bus:    bus,
		logger: logger,
	}

	if bus != nil {
		bus.Subscribe(events.EventTypeAuditEntry, r.handleAsyncEntry)
	}

	return r
}

func (r *Recorder) Record(ctx context.Context, entry *Entry) error {
	if err := r.store.Append(ctx, entry); err != nil {
		r.logger.Error("audit append failed",
			"operation", entry.Operation,
			"subject", entry.Subject,
			"record_id", entry.RecordID,
			"error", err)
		return internal.ErrAuditWriteFailed.WithCause(err)
	}
	return nil
}

func (r *Recorder) RecordAsync(ctx context.Context, entry *Entry) {
	if r.bus == nil {
		// No bus wired; degrade to a best-effort direct write.
		if err := r.store.Append(ctx, entry); err != nil {
			r.logger.Error("audit append failed", "operation", entry.Operation, "error", err)
		}
		return
	}

	event := events.NewAuditEntryEvent(entry.Subject, entry.RecordID, entry.Operation,
		entry.Actor, entry.IPAddress, entry.BeforeState, entry.AfterState)
	// The handler runs after the caller's transaction has finished; it must
	// not write through a handle that is already committed or rolled back.
	ctx = database.Detach(ctx)
	if err := r.bus.Publish(ctx, event); err != nil {
		r.logger.Error("audit event publish failed", "operation", entry.Operation, "error", err)
	}
}

func (r *Recorder) handleAsyncEntry(ctx context.Context, event events.Event) error {
	ae, ok := event.(*events.AuditEntryEvent)
	if !ok {
		r.logger.Warn("unexpected event payload on audit topic", "event_type", event.EventType())
		return nil
	}

	entry, err := NewEntry(ae.Subject, ae.RecordID, ae.Operation, ae.Actor, ae.IPAddress, nil, nil)
	if err != nil {
		return err
	}
	entry.BeforeState = ae.BeforeState
	entry.AfterState = ae.AfterState
	entry.CreatedAt = ae.OccurredAt()

	return r.store.Append(ctx, entry)
}

// List exposes the read-only operator query surface.
func (r *Recorder) List(ctx context.Context, filter Filter) ([]*Entry, error) {
	return r.store.List(ctx, filter)
}
