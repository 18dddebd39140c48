// Package registration owns the lifecycle of a single registration:
//
//	pending   -> confirmed | rejected
//	confirmed -> cancelled
//
// rejected and cancelled are terminal. A registration holds a seat exactly
// while it is confirmed; every transition into or out of confirmed goes
// through the capacity Allocator inside the same unit of work as the status
// write.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/capacity"
	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/notify"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CanTransition reports whether from -> to is a permitted edge.
func CanTransition(from, to model.Status) bool {
	switch from {
	case model.StatusPending:
		return to == model.StatusConfirmed || to == model.StatusRejected
	case model.StatusConfirmed:
		return to == model.StatusCancelled
	}
	return false
}

// Submission is a validated registration ready to be created.
type Submission struct {
	Event         *model.Event
	UserID        string
	Contact       model.Contact
	FormData      model.FormData
	SchemaVersion int
	// Initial is the status chosen by the approval workflow: confirmed
	// (reserve a seat now) or pending (reserve at approval).
	Initial model.Status
	// Decide, when set, replaces Initial with a decision made on the event
	// as read under the ledger lock.
	Decide func(event *model.Event) model.Status
}

// Machine applies registration transitions.
type Machine struct {
	store     repository.Store
	allocator *capacity.Allocator
	notifier  notify.Dispatcher
	log       *zap.Logger
	now       func() time.Time
}

// NewMachine constructs a Machine.
func NewMachine(store repository.Store, allocator *capacity.Allocator, notifier notify.Dispatcher, log *zap.Logger) *Machine {
	return &Machine{
		store:     store,
		allocator: allocator,
		notifier:  notifier,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates a registration in its initial status. The event is re-read
// under the ledger lock: a deactivated event fails with
// model.ErrEventInactive. On the auto-confirm path a seat is reserved first;
// if none is left the call fails with model.ErrEventFull and nothing is
// persisted.
func (m *Machine) Submit(ctx context.Context, s Submission) (*model.Registration, error) {
	reg := &model.Registration{
		ID:            uuid.New().String(),
		EventID:       s.Event.ID,
		UserID:        s.UserID,
		Contact:       s.Contact,
		FormData:      s.FormData,
		SchemaVersion: s.SchemaVersion,
		RegisteredAt:  m.now(),
	}

	var event *model.Event
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		// The ledger lock also serialises the duplicate check below.
		locked, err := tx.LockEvent(ctx, reg.EventID)
		if err != nil {
			return err
		}
		if !locked.Active {
			return model.ErrEventInactive
		}
		reg.Status = s.Initial
		if s.Decide != nil {
			reg.Status = s.Decide(locked)
		}
		if reg.Status != model.StatusConfirmed && reg.Status != model.StatusPending {
			return fmt.Errorf("submit: invalid initial status %q", reg.Status)
		}

		dup, err := tx.HasActiveRegistration(ctx, reg.EventID, reg.UserID)
		if err != nil {
			return err
		}
		if dup {
			return model.ErrAlreadyRegistered
		}
		if reg.Status == model.StatusConfirmed {
			if _, err := m.allocator.TryReserve(ctx, tx, reg.EventID); err != nil {
				return seatError(err)
			}
			decided := reg.RegisteredAt
			reg.DecidedAt = &decided
		}
		if err := tx.InsertRegistration(ctx, reg); err != nil {
			return err
		}
		event = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("registration submitted",
		zap.String("registration_id", reg.ID),
		zap.String("event_id", reg.EventID),
		zap.String("status", string(reg.Status)),
	)
	kind := notify.KindConfirmation
	if reg.Status == model.StatusPending {
		kind = notify.KindPending
	}
	m.dispatch(ctx, kind, reg, event)
	return reg, nil
}

// Approve moves a pending registration to confirmed, reserving its seat.
// If the event is full it fails with model.ErrEventFull and the
// registration stays pending.
func (m *Machine) Approve(ctx context.Context, registrationID string) (*model.Registration, error) {
	reg, err := m.transition(ctx, registrationID, model.StatusConfirmed, func(tx repository.Tx, reg *model.Registration) error {
		if _, err := m.allocator.TryReserve(ctx, tx, reg.EventID); err != nil {
			return seatError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, notify.KindConfirmation, reg, nil)
	return reg, nil
}

// Reject moves a pending registration to rejected. It never touches
// capacity. A blank reason fails with model.ErrMissingReason.
func (m *Machine) Reject(ctx context.Context, registrationID, reason string) (*model.Registration, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, model.ErrMissingReason
	}
	reg, err := m.transition(ctx, registrationID, model.StatusRejected, func(_ repository.Tx, reg *model.Registration) error {
		reg.DecisionReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, notify.KindRejection, reg, nil)
	return reg, nil
}

// Cancel moves a confirmed registration to cancelled and releases its seat.
// Any other status fails with model.ErrNotCancellable, so a seat is never
// released twice.
func (m *Machine) Cancel(ctx context.Context, registrationID string) (*model.Registration, error) {
	reg, err := m.transition(ctx, registrationID, model.StatusCancelled, func(tx repository.Tx, reg *model.Registration) error {
		_, err := m.allocator.Release(ctx, tx, reg.EventID)
		if errors.Is(err, capacity.ErrNothingToRelease) {
			// Counter drifted below the confirmed count; reconciliation repairs it.
			m.log.Warn("cancel found no reserved seat",
				zap.String("registration_id", reg.ID),
				zap.String("event_id", reg.EventID),
			)
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, notify.KindCancellation, reg, nil)
	return reg, nil
}

// transition locks the registration, checks the edge, runs apply and stores
// the new status in one unit of work.
func (m *Machine) transition(
	ctx context.Context,
	registrationID string,
	to model.Status,
	apply func(tx repository.Tx, reg *model.Registration) error,
) (*model.Registration, error) {
	var out *model.Registration
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		reg, err := tx.LockRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		if !CanTransition(reg.Status, to) {
			return illegal(reg.Status, to)
		}
		if err := apply(tx, reg); err != nil {
			return err
		}
		from := reg.Status
		reg.Status = to
		if from == model.StatusPending {
			now := m.now()
			reg.DecidedAt = &now
		}
		if err := tx.UpdateRegistration(ctx, reg); err != nil {
			return err
		}
		out = reg
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("registration transitioned",
		zap.String("registration_id", out.ID),
		zap.String("event_id", out.EventID),
		zap.String("status", string(out.Status)),
	)
	return out, nil
}

// dispatch hands the intent off after commit. Failures are logged only;
// the committed transition stands.
func (m *Machine) dispatch(ctx context.Context, kind notify.Kind, reg *model.Registration, event *model.Event) {
	ctx = context.WithoutCancel(ctx)
	if event == nil {
		e, err := m.store.GetEvent(ctx, reg.EventID)
		if err != nil {
			m.log.Error("notification dispatch failed",
				zap.String("kind", string(kind)),
				zap.String("registration_id", reg.ID),
				zap.Error(err),
			)
			return
		}
		event = e
	}
	intent := notify.Intent{
		Kind:           kind,
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		EventName:      event.Name,
		StartsAt:       event.StartsAt,
		RecipientEmail: reg.Contact.Email,
		RecipientName:  reg.Contact.Name,
		Reason:         reg.DecisionReason,
	}
	if err := m.notifier.Dispatch(ctx, intent); err != nil {
		m.log.Error("notification dispatch failed",
			zap.String("kind", string(kind)),
			zap.String("registration_id", reg.ID),
			zap.Error(err),
		)
	}
}

func seatError(err error) error {
	if errors.Is(err, capacity.ErrCapacityExceeded) {
		return fmt.Errorf("%w: %w", model.ErrEventFull, err)
	}
	return err
}

func illegal(from, to model.Status) error {
	switch to {
	case model.StatusConfirmed, model.StatusRejected:
		return fmt.Errorf("%w: status is %s", model.ErrNotPending, from)
	case model.StatusCancelled:
		return fmt.Errorf("%w: status is %s", model.ErrNotCancellable, from)
	}
	return fmt.Errorf("illegal transition %s -> %s", from, to)
}
