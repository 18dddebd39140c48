// Package approval decides whether a new registration auto-confirms or waits
// for an organizer, and gates the organizer-facing approve/reject operations.
package approval

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/registration"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
)

// Decision is the initial status for a submission and whether it takes a
// seat immediately.
type Decision struct {
	Status  model.Status
	Reserve bool
}

// DecideInitialStatus looks only at the event's requires_approval flag.
func DecideInitialStatus(event *model.Event) Decision {
	if event.RequiresApproval {
		return Decision{Status: model.StatusPending}
	}
	return Decision{Status: model.StatusConfirmed, Reserve: true}
}

// Authorizer decides whether an actor may manage an event's registrations.
type Authorizer interface {
	CanManage(ctx context.Context, actor model.Actor, event *model.Event) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, actor model.Actor, event *model.Event) bool

func (f AuthorizerFunc) CanManage(ctx context.Context, actor model.Actor, event *model.Event) bool {
	return f(ctx, actor, event)
}

// OrganizerOrAdmin allows admins everywhere and organizers on their own events.
var OrganizerOrAdmin = AuthorizerFunc(func(_ context.Context, actor model.Actor, event *model.Event) bool {
	if actor.ID == "" {
		return false
	}
	return actor.IsAdmin() || (actor.CanOrganize() && event.OrganizerID == actor.ID)
})

// Workflow routes organizer decisions into the state machine. Every
// operation authorizes before it reads anything it returns or mutates.
type Workflow struct {
	store   repository.Store
	machine *registration.Machine
	authz   Authorizer
}

// NewWorkflow constructs a Workflow. A nil authz means OrganizerOrAdmin.
func NewWorkflow(store repository.Store, machine *registration.Machine, authz Authorizer) *Workflow {
	if authz == nil {
		authz = OrganizerOrAdmin
	}
	return &Workflow{store: store, machine: machine, authz: authz}
}

// Authorize checks that actor may manage the event. An unknown event is
// reported as model.ErrForbidden to anyone but an admin.
func (w *Workflow) Authorize(ctx context.Context, actor model.Actor, eventID string) (*model.Event, error) {
	event, err := w.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, hide(actor, err)
	}
	if !w.authz.CanManage(ctx, actor, event) {
		return nil, model.ErrForbidden
	}
	return event, nil
}

// ListPending returns the event's pending registrations in submission order.
func (w *Workflow) ListPending(ctx context.Context, actor model.Actor, eventID string) ([]model.Registration, error) {
	if _, err := w.Authorize(ctx, actor, eventID); err != nil {
		return nil, err
	}
	regs, err := w.store.ListRegistrations(ctx, eventID, model.StatusPending)
	if err != nil {
		return nil, err
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	return regs, nil
}

// Approve confirms a pending registration.
func (w *Workflow) Approve(ctx context.Context, actor model.Actor, registrationID string) (*model.Registration, error) {
	if err := w.authorizeRegistration(ctx, actor, registrationID); err != nil {
		return nil, err
	}
	return w.machine.Approve(ctx, registrationID)
}

// Reject rejects a pending registration with a mandatory reason.
func (w *Workflow) Reject(ctx context.Context, actor model.Actor, registrationID, reason string) (*model.Registration, error) {
	if err := w.authorizeRegistration(ctx, actor, registrationID); err != nil {
		return nil, err
	}
	return w.machine.Reject(ctx, registrationID, reason)
}

func (w *Workflow) authorizeRegistration(ctx context.Context, actor model.Actor, registrationID string) error {
	reg, err := w.store.GetRegistration(ctx, registrationID)
	if err != nil {
		return hide(actor, err)
	}
	_, err = w.Authorize(ctx, actor, reg.EventID)
	return err
}

// hide turns not-found into forbidden so unauthorized callers cannot probe
// for existence.
func hide(actor model.Actor, err error) error {
	if errors.Is(err, model.ErrNotFound) && !actor.IsAdmin() {
		return model.ErrForbidden
	}
	return err
}
