package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
)

func intPtr(n int) *int { return &n }

func seedEvent(t *testing.T, s *MemoryStore, id string, limit *int) *model.Event {
	t.Helper()
	e := &model.Event{ID: id, Name: id, StartsAt: time.Now(), MaxCapacity: limit, Active: true, CreatedAt: time.Now()}
	require.NoError(t, s.CreateEvent(context.Background(), e))
	return e
}

func newReg(id, eventID, userID string, status model.Status) *model.Registration {
	return &model.Registration{
		ID:           id,
		EventID:      eventID,
		UserID:       userID,
		Contact:      model.Contact{Name: userID, Email: userID + "@example.com"},
		FormData:     model.FormData{"tags": model.MultiOptionValue{"a", "b"}},
		Status:       status,
		RegisteredAt: time.Now(),
	}
}

func TestMemoryStore_RollbackDiscardsWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedEvent(t, s, "e1", nil)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.WriteReserved(ctx, "e1", 4))
		require.NoError(t, tx.InsertRegistration(ctx, newReg("r1", "e1", "u1", model.StatusConfirmed)))
		require.NoError(t, tx.InsertFormSchema(ctx, &model.FormSchema{ID: "s1", EventID: "e1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	e, err := s.GetEvent(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, 0, e.AttendeeCount)
	_, err = s.GetRegistration(ctx, "r1")
	require.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.GetFormSchema(ctx, "e1")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemoryStore_CommitAppliesWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedEvent(t, s, "e1", nil)

	err := s.WithTx(ctx, func(tx Tx) error {
		l, err := tx.LockLedger(ctx, "e1")
		require.NoError(t, err)
		require.Equal(t, 0, l.Reserved)
		require.NoError(t, tx.WriteReserved(ctx, "e1", 1))

		// Reads inside the unit of work see its own staged writes.
		l, err = tx.LockLedger(ctx, "e1")
		require.NoError(t, err)
		require.Equal(t, 1, l.Reserved)

		require.NoError(t, tx.InsertRegistration(ctx, newReg("r1", "e1", "u1", model.StatusConfirmed)))
		n, err := tx.CountByStatus(ctx, "e1", model.StatusConfirmed)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		return nil
	})
	require.NoError(t, err)

	e, err := s.GetEvent(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, 1, e.AttendeeCount)
	r, err := s.GetRegistration(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, r.Status)
}

func TestMemoryStore_OneActivePerUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedEvent(t, s, "e1", nil)

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		return tx.InsertRegistration(ctx, newReg("r1", "e1", "u1", model.StatusPending))
	}))
	err := s.WithTx(ctx, func(tx Tx) error {
		return tx.InsertRegistration(ctx, newReg("r2", "e1", "u1", model.StatusConfirmed))
	})
	require.ErrorIs(t, err, model.ErrAlreadyRegistered)

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		r, err := tx.LockRegistration(ctx, "r1")
		if err != nil {
			return err
		}
		r.Status = model.StatusRejected
		return tx.UpdateRegistration(ctx, r)
	}))
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		return tx.InsertRegistration(ctx, newReg("r2", "e1", "u1", model.StatusConfirmed))
	}))

	latest, err := s.LatestRegistration(ctx, "e1", "u1")
	require.NoError(t, err)
	require.Equal(t, "r2", latest.ID)

	all, err := s.ListRegistrations(ctx, "e1", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "r1", all[0].ID)
}

func TestMemoryStore_UpdateEventKeepsCounter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	e := seedEvent(t, s, "e1", nil)

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		return tx.WriteReserved(ctx, "e1", 2)
	}))

	edit := *e
	edit.Name = "renamed"
	edit.AttendeeCount = 99
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateEvent(ctx, &edit)
	}))

	got, err := s.GetEvent(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, "renamed", got.Name)
	require.Equal(t, 2, got.AttendeeCount)
}

func TestMemoryStore_UpdateEventKeepsReservedInRange(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	e := seedEvent(t, s, "e1", intPtr(10))
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		return tx.WriteReserved(ctx, "e1", 6)
	}))

	edit := *e
	edit.MaxCapacity = intPtr(5)
	err := s.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateEvent(ctx, &edit)
	})
	require.ErrorIs(t, err, model.ErrCapacityBelowReserved)

	got, err := s.GetEvent(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, 10, *got.MaxCapacity)
	require.Equal(t, 6, got.AttendeeCount)
}

func TestMemoryStore_LockEventSeesStagedWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedEvent(t, s, "e1", intPtr(3))

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		if err := tx.WriteReserved(ctx, "e1", 2); err != nil {
			return err
		}
		e, err := tx.LockEvent(ctx, "e1")
		if err != nil {
			return err
		}
		require.Equal(t, 2, e.AttendeeCount)
		// The returned row is a copy until UpdateEvent stores it.
		e.Name = "scratch"
		again, err := tx.LockEvent(ctx, "e1")
		require.NoError(t, err)
		require.Equal(t, "e1", again.Name)
		return nil
	}))

	err := s.WithTx(ctx, func(tx Tx) error {
		_, err := tx.LockEvent(ctx, "missing")
		return err
	})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemoryStore_SchemaVersions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedEvent(t, s, "e1", nil)

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		first := &model.FormSchema{ID: "s1", EventID: "e1"}
		second := &model.FormSchema{ID: "s2", EventID: "e1"}
		if err := tx.InsertFormSchema(ctx, first); err != nil {
			return err
		}
		if err := tx.InsertFormSchema(ctx, second); err != nil {
			return err
		}
		require.Equal(t, 1, first.Version)
		require.Equal(t, 2, second.Version)
		return nil
	}))

	latest, err := s.GetFormSchema(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, "s2", latest.ID)
	v1, err := s.GetFormSchemaVersion(ctx, "e1", 1)
	require.NoError(t, err)
	require.Equal(t, "s1", v1.ID)
	_, err = s.GetFormSchemaVersion(ctx, "e1", 3)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedEvent(t, s, "e1", nil)
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		return tx.InsertRegistration(ctx, newReg("r1", "e1", "u1", model.StatusConfirmed))
	}))

	r, err := s.GetRegistration(ctx, "r1")
	require.NoError(t, err)
	r.Status = model.StatusCancelled
	r.FormData["tags"].(model.MultiOptionValue)[0] = "z"

	again, err := s.GetRegistration(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, again.Status)
	require.Equal(t, model.MultiOptionValue{"a", "b"}, again.FormData["tags"])
}

func TestMemoryStore_ListEventsStartingBetween(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{0, time.Hour, 2 * time.Hour} {
		e := &model.Event{ID: string(rune('a' + i)), StartsAt: base.Add(offset), Active: true}
		require.NoError(t, s.CreateEvent(ctx, e))
	}
	inactive := &model.Event{ID: "z", StartsAt: base, Active: false}
	require.NoError(t, s.CreateEvent(ctx, inactive))

	events, err := s.ListEventsStartingBetween(ctx, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "a", events[0].ID)
	require.Equal(t, "b", events[1].ID)
}

func TestMemoryStore_SchemaCopiesLengthBounds(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedEvent(t, s, "e1", nil)
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		return tx.InsertFormSchema(ctx, &model.FormSchema{ID: "s1", EventID: "e1", Fields: []model.FieldDefinition{
			{ID: "f1", Label: "Bio", Type: model.FieldTextarea, MinLength: intPtr(2), MaxLength: intPtr(80)},
		}})
	}))

	got, err := s.GetFormSchema(ctx, "e1")
	require.NoError(t, err)
	*got.Fields[0].MinLength = 50
	*got.Fields[0].MaxLength = 51

	again, err := s.GetFormSchema(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, 2, *again.Fields[0].MinLength)
	require.Equal(t, 80, *again.Fields[0].MaxLength)
}
