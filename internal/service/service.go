// Package service implements the external operation set, validation, and
// orchestration between HTTP handlers and the registration core.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-registration/internal/approval"
	"github.com/Shivanand-hulikatti/event-registration/internal/capacity"
	"github.com/Shivanand-hulikatti/event-registration/internal/formschema"
	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/notify"
	"github.com/Shivanand-hulikatti/event-registration/internal/registration"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	"github.com/Shivanand-hulikatti/event-registration/internal/telemetry"
)

const maxEventCapacity = 100_000

// Options tunes a Service. Zero values are replaced with defaults.
type Options struct {
	SchemaTTL  time.Duration
	Tracer     trace.Tracer
	Authorizer approval.Authorizer
}

// Service orchestrates event and registration operations.
type Service struct {
	store     repository.Store
	allocator *capacity.Allocator
	machine   *registration.Machine
	workflow  *approval.Workflow
	schemas   *cache.Cache
	tracer    trace.Tracer
	log       *zap.Logger
}

// New constructs a Service with its dependencies.
func New(store repository.Store, notifier notify.Dispatcher, log *zap.Logger, opts Options) *Service {
	if opts.SchemaTTL <= 0 {
		opts.SchemaTTL = 5 * time.Minute
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.NoopTracer()
	}
	allocator := capacity.NewAllocator()
	machine := registration.NewMachine(store, allocator, notifier, log)
	return &Service{
		store:     store,
		allocator: allocator,
		machine:   machine,
		workflow:  approval.NewWorkflow(store, machine, opts.Authorizer),
		schemas:   cache.New(opts.SchemaTTL, 2*opts.SchemaTTL),
		tracer:    opts.Tracer,
		log:       log,
	}
}

func (s *Service) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "service."+op, trace.WithAttributes(attrs...))
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent validates the request and stores a new active event owned by
// the actor.
func (s *Service) CreateEvent(ctx context.Context, actor model.Actor, req model.CreateEventRequest) (*model.Event, error) {
	if !actor.CanOrganize() {
		return nil, model.ErrForbidden
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, model.NewValidationError("name", model.CodeRequired, "event name is required")
	}
	if req.StartsAt.IsZero() {
		return nil, model.NewValidationError("starts_at", model.CodeRequired, "starts_at is required")
	}
	if err := checkCapacity(req.MaxCapacity); err != nil {
		return nil, err
	}

	event := &model.Event{
		ID:               uuid.New().String(),
		OrganizerID:      actor.ID,
		Name:             req.Name,
		Description:      strings.TrimSpace(req.Description),
		StartsAt:         req.StartsAt.UTC(),
		MaxCapacity:      req.MaxCapacity,
		RequiresApproval: req.RequiresApproval,
		Active:           true,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.log.Info("event created", zap.String("event_id", event.ID), zap.String("organizer_id", actor.ID))
	return event, nil
}

// ListEvents returns all events.
func (s *Service) ListEvents(ctx context.Context) ([]model.Event, error) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}

// ListEventsStartingBetween returns active events with from <= starts_at < to.
func (s *Service) ListEventsStartingBetween(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	events, err := s.store.ListEventsStartingBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	return events, nil
}

// GetEvent returns a single event by ID.
func (s *Service) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, model.ErrNotFound
	}
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// UpdateEvent applies an administrative edit under the event's ledger lock.
// The patch is applied to the row as read under that lock, so concurrent
// edits and seat changes are never overwritten. Lowering max_capacity below
// the reserved count fails with model.ErrCapacityBelowReserved.
func (s *Service) UpdateEvent(ctx context.Context, actor model.Actor, id string, req model.UpdateEventRequest) (*model.Event, error) {
	if _, err := s.workflow.Authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, model.NewValidationError("name", model.CodeRequired, "event name is required")
	}
	if !req.ClearCapacity && req.MaxCapacity != nil {
		if err := checkCapacity(req.MaxCapacity); err != nil {
			return nil, err
		}
	}

	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		event, err := tx.LockEvent(ctx, id)
		if err != nil {
			return err
		}
		applyEventEdit(event, req)
		if err := s.allocator.Resize(ctx, tx, id, event.MaxCapacity); err != nil {
			return err
		}
		return tx.UpdateEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("event updated", zap.String("event_id", id), zap.String("actor_id", actor.ID))
	return s.store.GetEvent(ctx, id)
}

func applyEventEdit(event *model.Event, req model.UpdateEventRequest) {
	if req.Name != nil {
		event.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		event.Description = strings.TrimSpace(*req.Description)
	}
	if req.StartsAt != nil {
		event.StartsAt = req.StartsAt.UTC()
	}
	if req.RequiresApproval != nil {
		event.RequiresApproval = *req.RequiresApproval
	}
	switch {
	case req.ClearCapacity:
		event.MaxCapacity = nil
	case req.MaxCapacity != nil:
		limit := *req.MaxCapacity
		event.MaxCapacity = &limit
	}
}

// DeactivateEvent stops new submissions. Existing registrations stay
// approvable and cancellable. Only the active flag changes; every other
// column is written back as locked.
func (s *Service) DeactivateEvent(ctx context.Context, actor model.Actor, id string) (*model.Event, error) {
	if _, err := s.workflow.Authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		event, err := tx.LockEvent(ctx, id)
		if err != nil {
			return err
		}
		event.Active = false
		return tx.UpdateEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("event deactivated", zap.String("event_id", id), zap.String("actor_id", actor.ID))
	return s.store.GetEvent(ctx, id)
}

// ─── Form schemas ─────────────────────────────────────────────────────────────

// GetFormSchema returns the event's latest schema.
func (s *Service) GetFormSchema(ctx context.Context, eventID string) (schema *model.FormSchema, err error) {
	ctx, span := s.span(ctx, "GetFormSchema", attribute.String("event.id", eventID))
	defer func() { telemetry.End(span, err) }()

	// Callers get their own copy; the cached one is never handed out.
	if cached, ok := s.schemas.Get(eventID); ok {
		return cached.(*model.FormSchema).Clone(), nil
	}
	schema, err = s.store.GetFormSchema(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.schemas.SetDefault(eventID, schema.Clone())
	return schema, nil
}

// GetFormSchemaVersion returns one historical schema version.
func (s *Service) GetFormSchemaVersion(ctx context.Context, eventID string, version int) (*model.FormSchema, error) {
	return s.store.GetFormSchemaVersion(ctx, eventID, version)
}

// PutFormSchema stores fields as the event's next schema version. Earlier
// versions are kept so stored submissions still resolve their labels.
func (s *Service) PutFormSchema(ctx context.Context, actor model.Actor, eventID string, fields []model.FieldDefinition) (*model.FormSchema, error) {
	if _, err := s.workflow.Authorize(ctx, actor, eventID); err != nil {
		return nil, err
	}
	if err := formschema.CheckSchema(fields); err != nil {
		return nil, err
	}
	for i := range fields {
		if fields[i].ID == "" {
			fields[i].ID = uuid.New().String()
		}
	}

	schema := &model.FormSchema{
		ID:        uuid.New().String(),
		EventID:   eventID,
		Fields:    fields,
		CreatedAt: time.Now().UTC(),
	}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		// The event lock serialises version assignment.
		if _, err := tx.LockLedger(ctx, eventID); err != nil {
			return err
		}
		return tx.InsertFormSchema(ctx, schema)
	})
	if err != nil {
		return nil, fmt.Errorf("put form schema: %w", err)
	}
	s.schemas.Delete(eventID)
	s.log.Info("form schema stored", zap.String("event_id", eventID), zap.Int("version", schema.Version))
	return schema, nil
}

// ─── Registrations ────────────────────────────────────────────────────────────

// SubmitRegistration validates the submission against the current form
// schema and creates a registration whose initial status follows the
// event's approval setting.
func (s *Service) SubmitRegistration(ctx context.Context, actor model.Actor, eventID string, req model.SubmitRequest) (result *model.SubmitResult, err error) {
	ctx, span := s.span(ctx, "SubmitRegistration", attribute.String("event.id", eventID))
	defer func() { telemetry.End(span, err) }()

	if actor.ID == "" {
		return nil, model.ErrUnauthenticated
	}
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.Active {
		return nil, model.ErrEventInactive
	}

	var fields []model.FieldDefinition
	version := 0
	schema, err := s.GetFormSchema(ctx, eventID)
	switch {
	case err == nil:
		fields, version = schema.Fields, schema.Version
	case !errors.Is(err, model.ErrNotFound):
		return nil, err
	}

	contact, fieldErrs := normalizeContact(req.Contact)
	data, err := formschema.Validate(fields, req.FormData)
	if err != nil {
		var ve *model.ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		fieldErrs = append(fieldErrs, ve.Errors...)
	}
	if len(fieldErrs) > 0 {
		return nil, &model.ValidationError{Errors: fieldErrs}
	}

	reg, err := s.machine.Submit(ctx, registration.Submission{
		Event:         event,
		UserID:        actor.ID,
		Contact:       contact,
		FormData:      data,
		SchemaVersion: version,
		Decide: func(locked *model.Event) model.Status {
			return approval.DecideInitialStatus(locked).Status
		},
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("registration.id", reg.ID), attribute.String("registration.status", string(reg.Status)))
	return &model.SubmitResult{RegistrationID: reg.ID, Status: reg.Status}, nil
}

// CancelRegistration cancels the actor's own confirmed registration and
// releases its seat.
func (s *Service) CancelRegistration(ctx context.Context, actor model.Actor, registrationID string) (reg *model.Registration, err error) {
	ctx, span := s.span(ctx, "CancelRegistration", attribute.String("registration.id", registrationID))
	defer func() { telemetry.End(span, err) }()

	current, err := s.store.GetRegistration(ctx, registrationID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) && !actor.IsAdmin() {
			return nil, model.ErrNotOwner
		}
		return nil, err
	}
	if actor.ID == "" || current.UserID != actor.ID {
		return nil, model.ErrNotOwner
	}
	return s.machine.Cancel(ctx, registrationID)
}

// ListPendingRegistrations returns the event's approval queue.
func (s *Service) ListPendingRegistrations(ctx context.Context, actor model.Actor, eventID string) (regs []model.Registration, err error) {
	ctx, span := s.span(ctx, "ListPendingRegistrations", attribute.String("event.id", eventID))
	defer func() { telemetry.End(span, err) }()

	return s.workflow.ListPending(ctx, actor, eventID)
}

// ApproveRegistration confirms a pending registration.
func (s *Service) ApproveRegistration(ctx context.Context, actor model.Actor, registrationID string) (reg *model.Registration, err error) {
	ctx, span := s.span(ctx, "ApproveRegistration", attribute.String("registration.id", registrationID))
	defer func() { telemetry.End(span, err) }()

	return s.workflow.Approve(ctx, actor, registrationID)
}

// RejectRegistration rejects a pending registration with a reason.
func (s *Service) RejectRegistration(ctx context.Context, actor model.Actor, registrationID, reason string) (reg *model.Registration, err error) {
	ctx, span := s.span(ctx, "RejectRegistration", attribute.String("registration.id", registrationID))
	defer func() { telemetry.End(span, err) }()

	return s.workflow.Reject(ctx, actor, registrationID, reason)
}

// GetMyRegistration returns the actor's most recent registration for an event.
func (s *Service) GetMyRegistration(ctx context.Context, actor model.Actor, eventID string) (reg *model.Registration, err error) {
	ctx, span := s.span(ctx, "GetMyRegistration", attribute.String("event.id", eventID))
	defer func() { telemetry.End(span, err) }()

	if actor.ID == "" {
		return nil, model.ErrUnauthenticated
	}
	return s.store.LatestRegistration(ctx, eventID, actor.ID)
}

// ListConfirmedAttendees returns every confirmed registration for an event.
// It is the query external schedulers use for reminders.
func (s *Service) ListConfirmedAttendees(ctx context.Context, eventID string) ([]model.Registration, error) {
	regs, err := s.store.ListRegistrations(ctx, eventID, model.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("list confirmed attendees: %w", err)
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	return regs, nil
}

// ListAttendees returns an event's registrations for its organizer. An
// empty status returns every registration.
func (s *Service) ListAttendees(ctx context.Context, actor model.Actor, eventID string, status model.Status) ([]model.Registration, error) {
	if _, err := s.workflow.Authorize(ctx, actor, eventID); err != nil {
		return nil, err
	}
	switch status {
	case "", model.StatusPending, model.StatusConfirmed, model.StatusRejected, model.StatusCancelled:
	default:
		return nil, model.NewValidationError("status", model.CodeInvalid, fmt.Sprintf("unknown status %q", status))
	}
	regs, err := s.store.ListRegistrations(ctx, eventID, status)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	return regs, nil
}

// ─── Reconciliation ───────────────────────────────────────────────────────────

// Reconcile recomputes the event's reserved count from its confirmed
// registrations under the ledger lock.
func (s *Service) Reconcile(ctx context.Context, eventID string) (res model.ReconcileResult, err error) {
	ctx, span := s.span(ctx, "Reconcile", attribute.String("event.id", eventID))
	defer func() { telemetry.End(span, err) }()

	res.EventID = eventID
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		// Every change to a confirmed status takes this lock, so the count
		// below cannot move until we commit.
		if _, err := tx.LockLedger(ctx, eventID); err != nil {
			return err
		}
		confirmed, err := tx.CountByStatus(ctx, eventID, model.StatusConfirmed)
		if err != nil {
			return err
		}
		prev, err := s.allocator.Overwrite(ctx, tx, eventID, confirmed)
		if err != nil {
			return err
		}
		res.Previous, res.Current = prev, confirmed
		return nil
	})
	if err != nil {
		return model.ReconcileResult{}, err
	}
	if res.Drifted() {
		s.log.Warn("capacity ledger drift repaired",
			zap.String("event_id", eventID),
			zap.Int("previous", res.Previous),
			zap.Int("current", res.Current),
		)
	}
	return res, nil
}

// ReconcileEvent is Reconcile for an admin actor.
func (s *Service) ReconcileEvent(ctx context.Context, actor model.Actor, eventID string) (model.ReconcileResult, error) {
	if !actor.IsAdmin() {
		return model.ReconcileResult{}, model.ErrForbidden
	}
	return s.Reconcile(ctx, eventID)
}

// ReconcileAll reconciles every event and stops at the first failure.
func (s *Service) ReconcileAll(ctx context.Context) ([]model.ReconcileResult, error) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	results := make([]model.ReconcileResult, 0, len(events))
	for _, e := range events {
		res, err := s.Reconcile(ctx, e.ID)
		if err != nil {
			return results, fmt.Errorf("reconcile %s: %w", e.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func checkCapacity(limit *int) error {
	if limit == nil {
		return nil
	}
	if *limit <= 0 {
		return model.NewValidationError("max_capacity", model.CodeInvalid, "max_capacity must be a positive integer")
	}
	if *limit > maxEventCapacity {
		return model.NewValidationError("max_capacity", model.CodeInvalid, "max_capacity cannot exceed 100,000")
	}
	return nil
}

func normalizeContact(c model.Contact) (model.Contact, []model.FieldError) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(strings.ToLower(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)

	var errs []model.FieldError
	if c.Name == "" {
		errs = append(errs, model.FieldError{Field: "contact_name", Code: model.CodeRequired, Message: "contact_name is required"})
	}
	switch {
	case c.Email == "":
		errs = append(errs, model.FieldError{Field: "contact_email", Code: model.CodeRequired, Message: "contact_email is required"})
	case !isValidEmail(c.Email):
		errs = append(errs, model.FieldError{Field: "contact_email", Code: model.CodeInvalid, Message: "contact_email is not a valid email address"})
	}
	return c, errs
}

// isValidEmail does a basic structural check.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
