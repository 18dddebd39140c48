package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
)

// MemoryStore implements Store in process memory. Units of work are
// serialised by a single mutex, which gives every ledger lock the same
// exclusivity a Postgres row lock would. Writes are staged and applied only
// on success.
type MemoryStore struct {
	mu      sync.Mutex
	events  map[string]*model.Event
	schemas map[string][]*model.FormSchema
	regs    map[string]*model.Registration
	order   []string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:  make(map[string]*model.Event),
		schemas: make(map[string][]*model.FormSchema),
		regs:    make(map[string]*model.Registration),
	}
}

func (s *MemoryStore) CreateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = cloneEvent(e)
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return cloneEvent(e), nil
}

func (s *MemoryStore) ListEvents(_ context.Context) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		events = append(events, *cloneEvent(e))
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}

func (s *MemoryStore) ListEventsStartingBetween(_ context.Context, from, to time.Time) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []model.Event
	for _, e := range s.events {
		if e.Active && !e.StartsAt.Before(from) && e.StartsAt.Before(to) {
			events = append(events, *cloneEvent(e))
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].StartsAt.Before(events[j].StartsAt)
	})
	return events, nil
}

func (s *MemoryStore) GetFormSchema(_ context.Context, eventID string) (*model.FormSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.schemas[eventID]
	if len(versions) == 0 {
		return nil, model.ErrNotFound
	}
	return versions[len(versions)-1].Clone(), nil
}

func (s *MemoryStore) GetFormSchemaVersion(_ context.Context, eventID string, version int) (*model.FormSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fs := range s.schemas[eventID] {
		if fs.Version == version {
			return fs.Clone(), nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *MemoryStore) GetRegistration(_ context.Context, id string) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return cloneRegistration(r), nil
}

func (s *MemoryStore) LatestRegistration(_ context.Context, eventID, userID string) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		r := s.regs[s.order[i]]
		if r.EventID == eventID && r.UserID == userID {
			return cloneRegistration(r), nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *MemoryStore) ListRegistrations(_ context.Context, eventID string, status model.Status) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var regs []model.Registration
	for _, id := range s.order {
		r := s.regs[id]
		if r.EventID == eventID && (status == "" || r.Status == status) {
			regs = append(regs, *cloneRegistration(r))
		}
	}
	return regs, nil
}

// WithTx holds the store mutex for the whole of fn.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:  s,
		events: make(map[string]*model.Event),
		regs:   make(map[string]*model.Registration),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memoryTx struct {
	store   *MemoryStore
	events  map[string]*model.Event
	regs    map[string]*model.Registration
	added   []string
	schemas []*model.FormSchema
}

func (t *memoryTx) commit() {
	s := t.store
	for id, e := range t.events {
		s.events[id] = e
	}
	for id, r := range t.regs {
		s.regs[id] = r
	}
	s.order = append(s.order, t.added...)
	for _, fs := range t.schemas {
		s.schemas[fs.EventID] = append(s.schemas[fs.EventID], fs)
	}
}

// event returns the staged copy of an event, staging it on first touch.
func (t *memoryTx) event(id string) (*model.Event, error) {
	if e, ok := t.events[id]; ok {
		return e, nil
	}
	e, ok := t.store.events[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	staged := cloneEvent(e)
	t.events[id] = staged
	return staged, nil
}

func (t *memoryTx) registration(id string) (*model.Registration, bool) {
	if r, ok := t.regs[id]; ok {
		return r, true
	}
	r, ok := t.store.regs[id]
	return r, ok
}

// eachRegistration visits committed then newly added registrations,
// preferring staged versions.
func (t *memoryTx) eachRegistration(fn func(r *model.Registration)) {
	for _, id := range t.store.order {
		r, _ := t.registration(id)
		fn(r)
	}
	for _, id := range t.added {
		fn(t.regs[id])
	}
}

func (t *memoryTx) LockLedger(_ context.Context, eventID string) (model.CapacityLedger, error) {
	e, err := t.event(eventID)
	if err != nil {
		return model.CapacityLedger{}, err
	}
	return e.Ledger(), nil
}

func (t *memoryTx) WriteReserved(_ context.Context, eventID string, reserved int) error {
	e, err := t.event(eventID)
	if err != nil {
		return err
	}
	e.AttendeeCount = reserved
	return nil
}

func (t *memoryTx) LockEvent(_ context.Context, id string) (*model.Event, error) {
	e, err := t.event(id)
	if err != nil {
		return nil, err
	}
	return cloneEvent(e), nil
}

func (t *memoryTx) UpdateEvent(_ context.Context, edit *model.Event) error {
	e, err := t.event(edit.ID)
	if err != nil {
		return err
	}
	reserved := e.AttendeeCount
	if edit.MaxCapacity != nil && *edit.MaxCapacity < reserved {
		return fmt.Errorf("%w: max_capacity %d, reserved %d", model.ErrCapacityBelowReserved, *edit.MaxCapacity, reserved)
	}
	*e = *cloneEvent(edit)
	e.AttendeeCount = reserved
	return nil
}

func (t *memoryTx) InsertFormSchema(_ context.Context, fs *model.FormSchema) error {
	latest := 0
	if versions := t.store.schemas[fs.EventID]; len(versions) > 0 {
		latest = versions[len(versions)-1].Version
	}
	for _, staged := range t.schemas {
		if staged.EventID == fs.EventID && staged.Version > latest {
			latest = staged.Version
		}
	}
	fs.Version = latest + 1
	t.schemas = append(t.schemas, fs.Clone())
	return nil
}

func (t *memoryTx) LockRegistration(_ context.Context, id string) (*model.Registration, error) {
	r, ok := t.registration(id)
	if !ok {
		return nil, model.ErrNotFound
	}
	return cloneRegistration(r), nil
}

func (t *memoryTx) HasActiveRegistration(_ context.Context, eventID, userID string) (bool, error) {
	found := false
	t.eachRegistration(func(r *model.Registration) {
		if r.EventID == eventID && r.UserID == userID && r.Status.Active() {
			found = true
		}
	})
	return found, nil
}

func (t *memoryTx) InsertRegistration(ctx context.Context, r *model.Registration) error {
	if r.Status.Active() {
		dup, _ := t.HasActiveRegistration(ctx, r.EventID, r.UserID)
		if dup {
			return model.ErrAlreadyRegistered
		}
	}
	t.regs[r.ID] = cloneRegistration(r)
	t.added = append(t.added, r.ID)
	return nil
}

func (t *memoryTx) UpdateRegistration(_ context.Context, r *model.Registration) error {
	current, ok := t.registration(r.ID)
	if !ok {
		return model.ErrNotFound
	}
	staged := cloneRegistration(current)
	staged.Status = r.Status
	staged.DecidedAt = cloneTime(r.DecidedAt)
	staged.DecisionReason = r.DecisionReason
	t.regs[r.ID] = staged
	return nil
}

func (t *memoryTx) CountByStatus(_ context.Context, eventID string, status model.Status) (int, error) {
	n := 0
	t.eachRegistration(func(r *model.Registration) {
		if r.EventID == eventID && r.Status == status {
			n++
		}
	})
	return n, nil
}

func cloneEvent(e *model.Event) *model.Event {
	c := *e
	if e.MaxCapacity != nil {
		n := *e.MaxCapacity
		c.MaxCapacity = &n
	}
	return &c
}

func cloneRegistration(r *model.Registration) *model.Registration {
	c := *r
	c.DecidedAt = cloneTime(r.DecidedAt)
	if r.FormData != nil {
		c.FormData = make(model.FormData, len(r.FormData))
		for k, v := range r.FormData {
			if multi, ok := v.(model.MultiOptionValue); ok {
				v = append(model.MultiOptionValue(nil), multi...)
			}
			c.FormData[k] = v
		}
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
