package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/notify"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
)

var (
	organizer = model.Actor{ID: "org-1", Role: model.RoleOrganizer}
	admin     = model.Actor{ID: "admin-1", Role: model.RoleAdmin}
)

func user(i int) model.Actor {
	return model.Actor{ID: fmt.Sprintf("user-%d", i), Role: model.RoleUser}
}

func intPtr(n int) *int { return &n }

func newTestService(t testing.TB) (*Service, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	return New(store, notify.Discard{}, zap.NewNop(), Options{}), store
}

func createEvent(t testing.TB, svc *Service, limit *int, approval bool) *model.Event {
	t.Helper()
	event, err := svc.CreateEvent(context.Background(), organizer, model.CreateEventRequest{
		Name:             "GopherCon",
		StartsAt:         time.Now().Add(72 * time.Hour),
		MaxCapacity:      limit,
		RequiresApproval: approval,
	})
	require.NoError(t, err)
	return event
}

func submitReq(actor model.Actor) model.SubmitRequest {
	return model.SubmitRequest{
		Contact: model.Contact{Name: "Attendee " + actor.ID, Email: actor.ID + "@example.com"},
	}
}

func reservedCount(t testing.TB, svc *Service, eventID string) int {
	t.Helper()
	e, err := svc.GetEvent(context.Background(), eventID)
	require.NoError(t, err)
	return e.AttendeeCount
}

func TestCreateEvent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	starts := time.Now().Add(time.Hour)

	_, err := svc.CreateEvent(ctx, user(1), model.CreateEventRequest{Name: "x", StartsAt: starts})
	require.ErrorIs(t, err, model.ErrForbidden)

	_, err = svc.CreateEvent(ctx, organizer, model.CreateEventRequest{Name: "  ", StartsAt: starts})
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.CreateEvent(ctx, organizer, model.CreateEventRequest{Name: "x"})
	require.ErrorIs(t, err, model.ErrValidation)

	for _, bad := range []int{0, -3, 100_001} {
		_, err = svc.CreateEvent(ctx, organizer, model.CreateEventRequest{Name: "x", StartsAt: starts, MaxCapacity: intPtr(bad)})
		require.ErrorIs(t, err, model.ErrValidation, "capacity %d", bad)
	}

	event, err := svc.CreateEvent(ctx, organizer, model.CreateEventRequest{Name: " Meetup ", StartsAt: starts, MaxCapacity: intPtr(10)})
	require.NoError(t, err)
	assert.Equal(t, "Meetup", event.Name)
	assert.Equal(t, organizer.ID, event.OrganizerID)
	assert.True(t, event.Active)

	events, err := svc.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 10, *events[0].SpotsRemaining())
	assert.False(t, events[0].IsFull())
}

// Two concurrent submissions for a single seat: one wins, one is told the
// event is full. Cancelling the winner frees the seat for a third attendee.
func TestScenario_SingleSeat(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	event := createEvent(t, svc, intPtr(1), false)

	var (
		wg      sync.WaitGroup
		results [2]*model.SubmitResult
		errs    [2]error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.SubmitRegistration(ctx, user(i), event.ID, submitReq(user(i)))
		}(i)
	}
	wg.Wait()

	winner := -1
	for i := 0; i < 2; i++ {
		if errs[i] == nil {
			require.Equal(t, -1, winner, "both submissions succeeded")
			require.Equal(t, model.StatusConfirmed, results[i].Status)
			winner = i
		} else {
			require.ErrorIs(t, errs[i], model.ErrEventFull)
		}
	}
	require.NotEqual(t, -1, winner)

	e, err := svc.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.True(t, e.IsFull())

	_, err = svc.CancelRegistration(ctx, user(winner), results[winner].RegistrationID)
	require.NoError(t, err)

	third, err := svc.SubmitRegistration(ctx, user(2), event.ID, submitReq(user(2)))
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, third.Status)
}

func TestProperty_ConcurrentSubmitsConfirmMinNC(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seats := rapid.IntRange(1, 8).Draw(rt, "seats")
		n := rapid.IntRange(1, 20).Draw(rt, "n")

		svc, _ := newTestService(t)
		ctx := context.Background()
		event := createEvent(t, svc, intPtr(seats), false)

		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			confirmed  int
			unexpected []error
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := svc.SubmitRegistration(ctx, user(i), event.ID, submitReq(user(i)))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					confirmed++
				case !errors.Is(err, model.ErrEventFull):
					unexpected = append(unexpected, err)
				}
			}(i)
		}
		wg.Wait()

		require.Empty(rt, unexpected)

		want := min(n, seats)
		require.Equal(rt, want, confirmed)
		regs, err := svc.ListConfirmedAttendees(ctx, event.ID)
		require.NoError(rt, err)
		require.Len(rt, regs, want)
		require.Equal(rt, want, reservedCount(t, svc, event.ID))
	})
}

func TestProperty_ReclaimAllowsExactlyK(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seats := rapid.IntRange(1, 6).Draw(rt, "seats")
		k := rapid.IntRange(0, seats).Draw(rt, "k")

		svc, _ := newTestService(t)
		ctx := context.Background()
		event := createEvent(t, svc, intPtr(seats), false)

		ids := make([]string, seats)
		for i := 0; i < seats; i++ {
			res, err := svc.SubmitRegistration(ctx, user(i), event.ID, submitReq(user(i)))
			require.NoError(rt, err)
			ids[i] = res.RegistrationID
		}
		for i := 0; i < k; i++ {
			_, err := svc.CancelRegistration(ctx, user(i), ids[i])
			require.NoError(rt, err)
		}

		succeeded := 0
		for i := seats; i < seats+k+3; i++ {
			if _, err := svc.SubmitRegistration(ctx, user(i), event.ID, submitReq(user(i))); err == nil {
				succeeded++
			} else {
				require.ErrorIs(rt, err, model.ErrEventFull)
			}
		}
		require.Equal(rt, k, succeeded)
	})
}

func TestCancel_NoDoubleRelease(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	event := createEvent(t, svc, intPtr(3), false)

	ids := make([]string, 2)
	for i := range ids {
		res, err := svc.SubmitRegistration(ctx, user(i), event.ID, submitReq(user(i)))
		require.NoError(t, err)
		ids[i] = res.RegistrationID
	}
	require.Equal(t, 2, reservedCount(t, svc, event.ID))

	_, err := svc.CancelRegistration(ctx, user(0), ids[0])
	require.NoError(t, err)
	_, err = svc.CancelRegistration(ctx, user(0), ids[0])
	require.ErrorIs(t, err, model.ErrNotCancellable)
	require.Equal(t, 1, reservedCount(t, svc, event.ID))
}

func TestCancel_NotOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	event := createEvent(t, svc, nil, false)

	res, err := svc.SubmitRegistration(ctx, user(1), event.ID, submitReq(user(1)))
	require.NoError(t, err)

	_, err = svc.CancelRegistration(ctx, user(2), res.RegistrationID)
	require.ErrorIs(t, err, model.ErrNotOwner)
	_, err = svc.CancelRegistration(ctx, organizer, res.RegistrationID)
	require.ErrorIs(t, err, model.ErrNotOwner)
	_, err = svc.CancelRegistration(ctx, user(2), "missing")
	require.ErrorIs(t, err, model.ErrNotOwner)
	_, err = svc.CancelRegistration(ctx, admin, "missing")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestApprovalGating(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	event := createEvent(t, svc, intPtr(2), true)

	var ids []string
	for i := 0; i < 4; i++ {
		res, err := svc.SubmitRegistration(ctx, user(i), event.ID, submitReq(user(i)))
		require.NoError(t, err)
		require.Equal(t, model.StatusPending, res.Status)
		ids = append(ids, res.RegistrationID)
	}
	require.Equal(t, 0, reservedCount(t, svc, event.ID))

	pending, err := svc.ListPendingRegistrations(ctx, organizer, event.ID)
	require.NoError(t, err)
	require.Len(t, pending, 4)

	_, err = svc.ListPendingRegistrations(ctx, user(0), event.ID)
	require.ErrorIs(t, err, model.ErrForbidden)

	_, err = svc.RejectRegistration(ctx, organizer, ids[0], "duplicate company")
	require.NoError(t, err)
	require.Equal(t, 0, reservedCount(t, svc, event.ID))

	_, err = svc.ApproveRegistration(ctx, organizer, ids[1])
	require.NoError(t, err)
	_, err = svc.ApproveRegistration(ctx, admin, ids[2])
	require.NoError(t, err)
	require.Equal(t, 2, reservedCount(t, svc, event.ID))

	_, err = svc.ApproveRegistration(ctx, organizer, ids[3])
	require.ErrorIs(t, err, model.ErrEventFull)
	_, err = svc.ApproveRegistration(ctx, user(3), ids[3])
	require.ErrorIs(t, err, model.ErrForbidden)

	mine, err := svc.GetMyRegistration(ctx, user(3), event.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, mine.Status)

	_, err = svc.RejectRegistration(ctx, organizer, ids[3], " ")
	require.ErrorIs(t, err, model.ErrMissingReason)
}

func TestSubmit_ValidatorRoundTrip(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	event := createEvent(t, svc, nil, false)

	_, err := svc.PutFormSchema(ctx, organizer, event.ID, []model.FieldDefinition{
		{Label: "T-Shirt Size?", Type: model.FieldDropdown, Required: true, Options: []string{"A", "B"}},
	})
	require.NoError(t, err)

	req := submitReq(user(1))
	req.FormData = map[string]any{"t-shirt_size": "C"}
	_, err = svc.SubmitRegistration(ctx, user(1), event.ID, req)
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "t-shirt_size", ve.First().Field)
	require.Equal(t, model.CodeNotAnOption, ve.First().Code)

	req.FormData = map[string]any{"t-shirt_size": "A"}
	res, err := svc.SubmitRegistration(ctx, user(1), event.ID, req)
	require.NoError(t, err)

	reg, err := store.GetRegistration(ctx, res.RegistrationID)
	require.NoError(t, err)
	require.Equal(t, model.FormData{"t-shirt_size": model.OptionValue("A")}, reg.FormData)
	require.Equal(t, 1, reg.SchemaVersion)
}

func TestSubmit_CollectsContactAndFieldErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	event := createEvent(t, svc, nil, false)
	_, err := svc.PutFormSchema(ctx, organizer, event.ID, []model.FieldDefinition{
		{Label: "Company", Type: model.FieldText, Required: true},
	})
	require.NoError(t, err)

	_, err = svc.SubmitRegistration(ctx, user(1), event.ID, model.SubmitRequest{
		Contact: model.Contact{Email: "not-an-email"},
	})
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	fields := make([]string, len(ve.Errors))
	for i, fe := range ve.Errors {
		fields[i] = fe.Field
	}
	require.Equal(t, []string{"contact_name", "contact_email", "company"}, fields)
}

func TestSubmit_Preconditions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	event := createEvent(t, svc, nil, false)

	_, err := svc.SubmitRegistration(ctx, model.Actor{}, event.ID, submitReq(user(1)))
	require.ErrorIs(t, err, model.ErrUnauthenticated)

	_, err = svc.SubmitRegistration(ctx, user(1), "missing", submitReq(user(1)))
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = svc.SubmitRegistration(ctx, user(1), event.ID, submitReq(user(1)))
	require.NoError(t, err)
	_, err = svc.SubmitRegistration(ctx, user(1), event.ID, submitReq(user(1)))
	require.ErrorIs(t, err, model.ErrAlreadyRegistered)

	_, err = svc.DeactivateEvent(ctx, organizer, event.ID)
	require.NoError(t, err)
	_, err = svc.SubmitRegistration(ctx, user(2), event.ID, submitReq(user(2)))
	require.ErrorIs(t, err, model.ErrEventInactive)
}

func TestDeactivate_ExistingStillCancellable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	event := createEvent(t, svc, intPtr(1), false)

	res, err := svc.SubmitRegistration(ctx, user(1), event.ID, submitReq(user(1)))
	require.NoError(t, err)

	_, err = svc.DeactivateEvent(ctx, user(1), event.ID)
	require.ErrorIs(t, err, model.ErrForbidden)
	e, err := svc.DeactivateEvent(ctx, admin, event.ID)
	require.NoError(t, err)
	require.False(t, e.Active)
	require.Equal(t, 1, e.AttendeeCount)

	_, err = svc.CancelRegistration(ctx, user(1), res.RegistrationID)
	require.NoError(t, err)
	require.Equal(t, 0, reservedCount(t, svc, event.ID))
}

func TestUpdateEvent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	event := createEvent(t, svc, intPtr(3), false)

	for i := 0; i < 2; i++ {
		_, err := svc.SubmitRegistration(ctx, user(i), event.ID, submitReq(user(i)))
		require.NoError(t, err)
	}

	_, err := svc.UpdateEvent(ctx, organizer, event.ID, model.UpdateEventRequest{MaxCapacity: intPtr(1)})
	require.ErrorIs(t, err, model.ErrCapacityBelowReserved)

	name := "GopherCon EU"
	updated, err := svc.UpdateEvent(ctx, organizer, event.ID, model.UpdateEventRequest{Name: &name, MaxCapacity: intPtr(2)})
	require.NoError(t, err)
	require.Equal(t, "GopherCon EU", updated.Name)
	require.Equal(t, 2, *updated.MaxCapacity)
	require.Equal(t, 2, updated.AttendeeCount)
	require.True(t, updated.IsFull())

	updated, err = svc.UpdateEvent(ctx, organizer, event.ID, model.UpdateEventRequest{ClearCapacity: true})
	require.NoError(t, err)
	require.Nil(t, updated.MaxCapacity)
	require.Nil(t, updated.SpotsRemaining())

	other := model.Actor{ID: "org-2", Role: model.RoleOrganizer}
	_, err = svc.UpdateEvent(ctx, other, event.ID, model.UpdateEventRequest{Name: &name})
	require.ErrorIs(t, err, model.ErrForbidden)
}

// interleavedStore runs next right after the first GetEvent read once it is
// set, so a competing commit lands between a caller's read and its unit of
// work and the caller holds a stale copy.
type interleavedStore struct {
	*repository.MemoryStore
	next func()
}

func (s *interleavedStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := s.MemoryStore.GetEvent(ctx, id)
	if next := s.next; next != nil {
		s.next = nil
		next()
	}
	return e, err
}

func newInterleavedService(t *testing.T) (*Service, *Service, *interleavedStore) {
	t.Helper()
	store := &interleavedStore{MemoryStore: repository.NewMemoryStore()}
	svc := New(store, notify.Discard{}, zap.NewNop(), Options{})
	other := New(store.MemoryStore, notify.Discard{}, zap.NewNop(), Options{})
	return svc, other, store
}

func TestDeactivate_KeepsConcurrentEdits(t *testing.T) {
	svc, other, store := newInterleavedService(t)
	ctx := context.Background()
	event := createEvent(t, other, intPtr(10), false)

	store.next = func() {
		_, err := other.UpdateEvent(ctx, organizer, event.ID, model.UpdateEventRequest{MaxCapacity: intPtr(20)})
		require.NoError(t, err)
		for i := 0; i < 15; i++ {
			_, err := other.SubmitRegistration(ctx, user(i), event.ID, submitReq(user(i)))
			require.NoError(t, err)
		}
	}
	got, err := svc.DeactivateEvent(ctx, admin, event.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
	require.Equal(t, 20, *got.MaxCapacity)
	require.Equal(t, 15, got.AttendeeCount)
	require.LessOrEqual(t, got.AttendeeCount, *got.MaxCapacity)
}

func TestUpdateEvent_PatchesLockedRow(t *testing.T) {
	svc, other, store := newInterleavedService(t)
	ctx := context.Background()
	event := createEvent(t, other, intPtr(10), false)

	store.next = func() {
		for i := 0; i < 6; i++ {
			_, err := other.SubmitRegistration(ctx, user(i), event.ID, submitReq(user(i)))
			require.NoError(t, err)
		}
	}
	_, err := svc.UpdateEvent(ctx, organizer, event.ID, model.UpdateEventRequest{MaxCapacity: intPtr(5)})
	require.ErrorIs(t, err, model.ErrCapacityBelowReserved)

	approval := true
	store.next = func() {
		_, err := other.UpdateEvent(ctx, organizer, event.ID, model.UpdateEventRequest{RequiresApproval: &approval})
		require.NoError(t, err)
	}
	name := "GopherCon EU"
	got, err := svc.UpdateEvent(ctx, organizer, event.ID, model.UpdateEventRequest{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "GopherCon EU", got.Name)
	require.True(t, got.RequiresApproval)
	require.Equal(t, 10, *got.MaxCapacity)
	require.Equal(t, 6, got.AttendeeCount)
}

func TestSubmit_DeactivatedMidFlight(t *testing.T) {
	svc, other, store := newInterleavedService(t)
	ctx := context.Background()
	event := createEvent(t, other, intPtr(10), false)

	store.next = func() {
		_, err := other.DeactivateEvent(ctx, admin, event.ID)
		require.NoError(t, err)
	}
	_, err := svc.SubmitRegistration(ctx, user(1), event.ID, submitReq(user(1)))
	require.ErrorIs(t, err, model.ErrEventInactive)
	require.Equal(t, 0, reservedCount(t, other, event.ID))
}

func TestSubmit_ApprovalToggledMidFlight(t *testing.T) {
	svc, other, store := newInterleavedService(t)
	ctx := context.Background()
	event := createEvent(t, other, intPtr(10), false)

	approval := true
	store.next = func() {
		_, err := other.UpdateEvent(ctx, organizer, event.ID, model.UpdateEventRequest{RequiresApproval: &approval})
		require.NoError(t, err)
	}
	res, err := svc.SubmitRegistration(ctx, user(1), event.ID, submitReq(user(1)))
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, res.Status)
	require.Equal(t, 0, reservedCount(t, other, event.ID))
}

func TestGetFormSchema_CallersGetCopies(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	event := createEvent(t, svc, nil, false)
	_, err := svc.PutFormSchema(ctx, organizer, event.ID, []model.FieldDefinition{
		{Label: "Bio", Type: model.FieldTextarea, MaxLength: intPtr(80)},
	})
	require.NoError(t, err)

	first, err := svc.GetFormSchema(ctx, event.ID)
	require.NoError(t, err)
	*first.Fields[0].MaxLength = 1
	first.Fields[0].Label = "tampered"

	// Served from the cache this time.
	second, err := svc.GetFormSchema(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, "Bio", second.Fields[0].Label)
	require.Equal(t, 80, *second.Fields[0].MaxLength)
	*second.Fields[0].MaxLength = 2

	third, err := svc.GetFormSchema(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, 80, *third.Fields[0].MaxLength)
}

func TestFormSchemaVersions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	event := createEvent(t, svc, nil, false)

	_, err := svc.GetFormSchema(ctx, event.ID)
	require.ErrorIs(t, err, model.ErrNotFound)

	v1, err := svc.PutFormSchema(ctx, organizer, event.ID, []model.FieldDefinition{
		{Label: "Company", Type: model.FieldText},
	})
	require.NoError(t, err)
	require.Equal(t, 1, v1.Version)
	require.NotEmpty(t, v1.Fields[0].ID)

	got, err := svc.GetFormSchema(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)

	// Replacing the schema invalidates the cached copy.
	v2, err := svc.PutFormSchema(ctx, organizer, event.ID, []model.FieldDefinition{
		{Label: "Company Name", Type: model.FieldText, Required: true},
	})
	require.NoError(t, err)
	require.Equal(t, 2, v2.Version)

	got, err = svc.GetFormSchema(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Version)

	old, err := svc.GetFormSchemaVersion(ctx, event.ID, 1)
	require.NoError(t, err)
	require.Equal(t, "Company", old.Fields[0].Label)

	_, err = svc.PutFormSchema(ctx, organizer, event.ID, []model.FieldDefinition{
		{Label: "Size", Type: model.FieldRadio},
	})
	require.ErrorIs(t, err, model.ErrSchemaInvalid)

	_, err = svc.PutFormSchema(ctx, user(1), event.ID, []model.FieldDefinition{{Label: "x", Type: model.FieldText}})
	require.ErrorIs(t, err, model.ErrForbidden)
}

func TestListAttendees(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	event := createEvent(t, svc, nil, false)

	res, err := svc.SubmitRegistration(ctx, user(1), event.ID, submitReq(user(1)))
	require.NoError(t, err)
	_, err = svc.SubmitRegistration(ctx, user(2), event.ID, submitReq(user(2)))
	require.NoError(t, err)
	_, err = svc.CancelRegistration(ctx, user(1), res.RegistrationID)
	require.NoError(t, err)

	all, err := svc.ListAttendees(ctx, organizer, event.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	confirmed, err := svc.ListAttendees(ctx, organizer, event.ID, model.StatusConfirmed)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	require.Equal(t, user(2).ID, confirmed[0].UserID)

	_, err = svc.ListAttendees(ctx, organizer, event.ID, "waitlisted")
	require.ErrorIs(t, err, model.ErrValidation)
	_, err = svc.ListAttendees(ctx, user(2), event.ID, "")
	require.ErrorIs(t, err, model.ErrForbidden)
}

func TestReconcile(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	event := createEvent(t, svc, intPtr(5), false)
	for i := 0; i < 3; i++ {
		_, err := svc.SubmitRegistration(ctx, user(i), event.ID, submitReq(user(i)))
		require.NoError(t, err)
	}

	res, err := svc.Reconcile(ctx, event.ID)
	require.NoError(t, err)
	require.False(t, res.Drifted())

	// Simulate a crash that left the counter behind.
	require.NoError(t, store.WithTx(ctx, func(tx repository.Tx) error {
		return tx.WriteReserved(ctx, event.ID, 1)
	}))

	_, err = svc.ReconcileEvent(ctx, organizer, event.ID)
	require.ErrorIs(t, err, model.ErrForbidden)

	res, err = svc.ReconcileEvent(ctx, admin, event.ID)
	require.NoError(t, err)
	require.Equal(t, model.ReconcileResult{EventID: event.ID, Previous: 1, Current: 3}, res)
	require.Equal(t, 3, reservedCount(t, svc, event.ID))

	createEvent(t, svc, nil, false)
	all, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, err = svc.Reconcile(ctx, "missing")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestSubmitRegistration_Span(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	store := repository.NewMemoryStore()
	svc := New(store, notify.Discard{}, zap.NewNop(), Options{Tracer: tp.Tracer("test")})
	event := createEvent(t, svc, nil, false)

	_, err := svc.SubmitRegistration(context.Background(), user(1), event.ID, submitReq(user(1)))
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	require.Contains(t, names, "service.SubmitRegistration")
	require.Contains(t, names, "service.GetFormSchema")
}
