// Package model defines the core domain types for event registration.
package model

import "time"

// Event represents a registrable event created by an organizer.
type Event struct {
	ID               string    `json:"id"`
	OrganizerID      string    `json:"organizer_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	StartsAt         time.Time `json:"starts_at"`
	MaxCapacity      *int      `json:"max_capacity"`
	RequiresApproval bool      `json:"requires_approval"`
	// AttendeeCount mirrors the ledger's reserved count. Display only.
	AttendeeCount int       `json:"attendee_count"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// Unlimited reports whether the event has no capacity limit.
func (e *Event) Unlimited() bool {
	return e.MaxCapacity == nil
}

// SpotsRemaining returns the number of free seats, or nil when unlimited.
func (e *Event) SpotsRemaining() *int {
	if e.MaxCapacity == nil {
		return nil
	}
	n := *e.MaxCapacity - e.AttendeeCount
	if n < 0 {
		n = 0
	}
	return &n
}

// IsFull returns true when a capacity limit exists and no seats remain.
func (e *Event) IsFull() bool {
	return e.MaxCapacity != nil && e.AttendeeCount >= *e.MaxCapacity
}

// Ledger returns the capacity ledger view of the event.
func (e *Event) Ledger() CapacityLedger {
	return CapacityLedger{EventID: e.ID, MaxCapacity: e.MaxCapacity, Reserved: e.AttendeeCount}
}

// CapacityLedger is the authoritative per-event seat counter.
// Invariant: 0 <= Reserved <= *MaxCapacity whenever MaxCapacity is set.
type CapacityLedger struct {
	EventID     string
	MaxCapacity *int
	Reserved    int
}

// HasRoom reports whether one more seat can be reserved.
func (l CapacityLedger) HasRoom() bool {
	return l.MaxCapacity == nil || l.Reserved < *l.MaxCapacity
}

// Status is the lifecycle state of a registration.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Active reports whether the status blocks a second registration by the same user.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether no further transition leaves the status.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled
}

// Contact holds the submitter's contact details.
type Contact struct {
	Name  string `json:"contact_name"`
	Email string `json:"contact_email"`
	Phone string `json:"contact_phone,omitempty"`
}

// Registration represents one attendee's registration for an event.
// It holds a reserved seat only while Status is confirmed.
type Registration struct {
	ID             string     `json:"id"`
	EventID        string     `json:"event_id"`
	UserID         string     `json:"user_id"`
	Contact        Contact    `json:"contact"`
	FormData       FormData   `json:"form_data"`
	SchemaVersion  int        `json:"schema_version,omitempty"`
	Status         Status     `json:"status"`
	RegisteredAt   time.Time  `json:"registered_at"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	DecisionReason string     `json:"decision_reason,omitempty"`
}

// Role is the coarse permission level of an actor.
type Role string

const (
	RoleUser      Role = "user"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// Actor is the request-scoped identity passed into every operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the actor has platform-wide rights.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanOrganize reports whether the actor may create events.
func (a Actor) CanOrganize() bool {
	return a.Role == RoleOrganizer || a.Role == RoleAdmin
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	StartsAt         time.Time `json:"starts_at"`
	MaxCapacity      *int      `json:"max_capacity"`
	RequiresApproval bool      `json:"requires_approval"`
}

// UpdateEventRequest is a partial administrative edit. Nil fields are left untouched.
type UpdateEventRequest struct {
	Name             *string    `json:"name,omitempty"`
	Description      *string    `json:"description,omitempty"`
	StartsAt         *time.Time `json:"starts_at,omitempty"`
	MaxCapacity      *int       `json:"max_capacity,omitempty"`
	ClearCapacity    bool       `json:"clear_capacity,omitempty"`
	RequiresApproval *bool      `json:"requires_approval,omitempty"`
}

// SubmitRequest is the payload for registering for an event.
type SubmitRequest struct {
	Contact
	FormData map[string]any `json:"form_data"`
}

// SubmitResult is what a successful submission returns.
type SubmitResult struct {
	RegistrationID string `json:"registration_id"`
	Status         Status `json:"status"`
}

// RejectRequest is the payload for rejecting a pending registration.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// FormSchemaRequest is the payload for publishing a new form schema version.
type FormSchemaRequest struct {
	Fields []FieldDefinition `json:"fields"`
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error  string       `json:"error"`
	Code   string       `json:"code,omitempty"`
	Errors []FieldError `json:"errors,omitempty"`
}

// ReconcileResult reports the ledger before and after recomputation.
type ReconcileResult struct {
	EventID  string `json:"event_id"`
	Previous int    `json:"previous"`
	Current  int    `json:"current"`
}

// Drifted reports whether reconciliation changed the counter.
func (r ReconcileResult) Drifted() bool {
	return r.Previous != r.Current
}
