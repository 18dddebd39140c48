// Package repository persists events, form schemas and registrations.
// PostgresStore uses pgx directly (no ORM); MemoryStore backs tests and
// single-process development runs. Both satisfy Store.
package repository

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/capacity"
	"github.com/Shivanand-hulikatti/event-registration/internal/model"
)

// Store is the read side plus the entry point to units of work.
// Missing rows are reported as model.ErrNotFound.
type Store interface {
	CreateEvent(ctx context.Context, event *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	// ListEventsStartingBetween returns active events with from <= starts_at < to.
	ListEventsStartingBetween(ctx context.Context, from, to time.Time) ([]model.Event, error)

	// GetFormSchema returns the latest schema version for an event.
	GetFormSchema(ctx context.Context, eventID string) (*model.FormSchema, error)
	GetFormSchemaVersion(ctx context.Context, eventID string, version int) (*model.FormSchema, error)

	GetRegistration(ctx context.Context, id string) (*model.Registration, error)
	// LatestRegistration returns the user's most recent registration for an event.
	LatestRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error)
	// ListRegistrations returns an event's registrations in submission order.
	// An empty status matches every status.
	ListRegistrations(ctx context.Context, eventID string, status model.Status) ([]model.Registration, error)

	// WithTx runs fn in one unit of work. Writes made through tx become
	// visible only if fn returns nil; any error discards them.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is a unit of work. Locks taken through it are held until it ends.
// Lock order is registration before event ledger.
type Tx interface {
	capacity.Ledger

	// LockEvent takes the same lock as LockLedger and returns the full event
	// row as it stands under that lock.
	LockEvent(ctx context.Context, id string) (*model.Event, error)
	// UpdateEvent stores administrative edits. It never touches the counter
	// and fails with model.ErrCapacityBelowReserved if max_capacity would
	// drop below it.
	UpdateEvent(ctx context.Context, event *model.Event) error

	// InsertFormSchema stores a new schema version, assigning Version as one
	// past the event's current latest.
	InsertFormSchema(ctx context.Context, schema *model.FormSchema) error

	// LockRegistration locks and returns a registration.
	LockRegistration(ctx context.Context, id string) (*model.Registration, error)
	HasActiveRegistration(ctx context.Context, eventID, userID string) (bool, error)
	// InsertRegistration returns model.ErrAlreadyRegistered when the user
	// already holds an active registration for the event.
	InsertRegistration(ctx context.Context, reg *model.Registration) error
	// UpdateRegistration stores status, decided_at and decision_reason.
	UpdateRegistration(ctx context.Context, reg *model.Registration) error
	CountByStatus(ctx context.Context, eventID string, status model.Status) (int, error)
}
