// Package capacity reserves and releases seats against an event's ledger.
//
// The Allocator is the only writer of an event's reserved count. Atomicity
// comes from the Ledger: LockLedger must hold an exclusive lock on the
// event's counter (a SELECT ... FOR UPDATE row lock, or an in-process mutex)
// until the surrounding unit of work commits or rolls back, so the
// read-compare-increment below can never act on a stale count.
package capacity

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
)

var (
	// ErrCapacityExceeded is returned when every seat is already reserved.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrNothingToRelease is returned when releasing with no seats reserved.
	ErrNothingToRelease = errors.New("nothing to release")
)

// Ledger is the locked view of event counters inside one unit of work.
type Ledger interface {
	// LockLedger locks the event's counter for the rest of the unit of work
	// and returns its current value. It returns model.ErrNotFound for an
	// unknown event.
	LockLedger(ctx context.Context, eventID string) (model.CapacityLedger, error)
	// WriteReserved stores a new reserved count for a locked event.
	WriteReserved(ctx context.Context, eventID string, reserved int) error
}

// Allocator applies seat arithmetic to a locked ledger.
type Allocator struct{}

// NewAllocator constructs an Allocator.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// TryReserve takes one seat. A nil max_capacity always succeeds. When the
// ledger is full it returns ErrCapacityExceeded and writes nothing.
func (a *Allocator) TryReserve(ctx context.Context, l Ledger, eventID string) (model.CapacityLedger, error) {
	ledger, err := l.LockLedger(ctx, eventID)
	if err != nil {
		return model.CapacityLedger{}, err
	}
	if !ledger.HasRoom() {
		return ledger, ErrCapacityExceeded
	}
	ledger.Reserved++
	if err := l.WriteReserved(ctx, eventID, ledger.Reserved); err != nil {
		return model.CapacityLedger{}, fmt.Errorf("reserve seat: %w", err)
	}
	return ledger, nil
}

// Release returns one seat. The counter never goes below zero; releasing
// from an empty ledger returns ErrNothingToRelease and writes nothing.
func (a *Allocator) Release(ctx context.Context, l Ledger, eventID string) (model.CapacityLedger, error) {
	ledger, err := l.LockLedger(ctx, eventID)
	if err != nil {
		return model.CapacityLedger{}, err
	}
	if ledger.Reserved <= 0 {
		return ledger, ErrNothingToRelease
	}
	ledger.Reserved--
	if err := l.WriteReserved(ctx, eventID, ledger.Reserved); err != nil {
		return model.CapacityLedger{}, fmt.Errorf("release seat: %w", err)
	}
	return ledger, nil
}

// Overwrite sets the reserved count to an externally computed value, used by
// reconciliation. It returns the count before the write.
func (a *Allocator) Overwrite(ctx context.Context, l Ledger, eventID string, reserved int) (int, error) {
	if reserved < 0 {
		return 0, fmt.Errorf("overwrite ledger: negative count %d", reserved)
	}
	ledger, err := l.LockLedger(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if ledger.Reserved == reserved {
		return ledger.Reserved, nil
	}
	if err := l.WriteReserved(ctx, eventID, reserved); err != nil {
		return 0, fmt.Errorf("overwrite ledger: %w", err)
	}
	return ledger.Reserved, nil
}

// Resize checks that a new max_capacity still covers the seats already
// reserved on a locked ledger. It does not write.
func (a *Allocator) Resize(ctx context.Context, l Ledger, eventID string, max *int) error {
	ledger, err := l.LockLedger(ctx, eventID)
	if err != nil {
		return err
	}
	if max != nil && *max < ledger.Reserved {
		return fmt.Errorf("%w: %d reserved, requested %d", model.ErrCapacityBelowReserved, ledger.Reserved, *max)
	}
	return nil
}
