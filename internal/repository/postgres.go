package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the SQLSTATE for a unique index conflict.
const uniqueViolation = "23505"

// reservedInRange is the events CHECK that keeps
// 0 <= reserved_count <= max_capacity.
const reservedInRange = "events_reserved_in_range"

const eventColumns = `id, organizer_id, name, description, starts_at, max_capacity,
	requires_approval, reserved_count, active, created_at`

const registrationColumns = `id, event_id, user_id, contact_name, contact_email, contact_phone,
	form_data, schema_version, status, registered_at, decided_at, decision_reason`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on PostgreSQL. The reserved counter lives on
// the events row and is written in the same transaction as the registration
// that consumes or frees the seat, so a crash cannot split them.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateEvent inserts a new event.
func (s *PostgresStore) CreateEvent(ctx context.Context, e *model.Event) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.OrganizerID, e.Name, e.Description, e.StartsAt, e.MaxCapacity,
		e.RequiresApproval, e.AttendeeCount, e.Active, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent returns a single event or model.ErrNotFound.
func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// ListEvents returns all events ordered by creation time descending.
func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`)
}

// ListEventsStartingBetween returns active events starting in [from, to).
func (s *PostgresStore) ListEventsStartingBetween(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE active AND starts_at >= $1 AND starts_at < $2
		 ORDER BY starts_at ASC`,
		from, to)
}

func (s *PostgresStore) queryEvents(ctx context.Context, sql string, args ...any) ([]model.Event, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// GetFormSchema returns the latest schema version for an event.
func (s *PostgresStore) GetFormSchema(ctx context.Context, eventID string) (*model.FormSchema, error) {
	return s.getSchema(ctx,
		`SELECT id, event_id, version, fields, created_at FROM form_schemas
		 WHERE event_id = $1 ORDER BY version DESC LIMIT 1`,
		eventID)
}

// GetFormSchemaVersion returns one historical schema version.
func (s *PostgresStore) GetFormSchemaVersion(ctx context.Context, eventID string, version int) (*model.FormSchema, error) {
	return s.getSchema(ctx,
		`SELECT id, event_id, version, fields, created_at FROM form_schemas
		 WHERE event_id = $1 AND version = $2`,
		eventID, version)
}

func (s *PostgresStore) getSchema(ctx context.Context, sql string, args ...any) (*model.FormSchema, error) {
	var (
		fs     model.FormSchema
		fields []byte
	)
	err := s.db.QueryRow(ctx, sql, args...).Scan(&fs.ID, &fs.EventID, &fs.Version, &fields, &fs.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get form schema: %w", err)
	}
	if err := json.Unmarshal(fields, &fs.Fields); err != nil {
		return nil, fmt.Errorf("decode form schema fields: %w", err)
	}
	return &fs, nil
}

// GetRegistration returns a registration or model.ErrNotFound.
func (s *PostgresStore) GetRegistration(ctx context.Context, id string) (*model.Registration, error) {
	return getRegistration(ctx, s.db, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id)
}

// LatestRegistration returns the user's most recent registration for an event.
func (s *PostgresStore) LatestRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	return getRegistration(ctx, s.db,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 AND user_id = $2
		 ORDER BY registered_at DESC LIMIT 1`,
		eventID, userID)
}

// ListRegistrations returns an event's registrations in submission order.
func (s *PostgresStore) ListRegistrations(ctx context.Context, eventID string, status model.Status) ([]model.Registration, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY registered_at ASC`,
		eventID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// WithTx runs fn inside a single transaction, committing only when fn
// returns nil.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Ensure the transaction is always resolved.
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	// Only now does any other transaction see the changes.
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

// LockLedger takes a row-level exclusive lock on the event.
//
// Without it two transactions could both read reserved_count = C-1, both see
// a free seat and both confirm, overbooking by one. SELECT ... FOR UPDATE
// makes every other locker of this row wait until we COMMIT or ROLLBACK, so
// the check and the increment that follows act on the current value.
func (t *postgresTx) LockLedger(ctx context.Context, eventID string) (model.CapacityLedger, error) {
	l := model.CapacityLedger{EventID: eventID}
	err := t.tx.QueryRow(ctx,
		`SELECT max_capacity, reserved_count
		 FROM events
		 WHERE id = $1
		 FOR UPDATE`,
		eventID,
	).Scan(&l.MaxCapacity, &l.Reserved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CapacityLedger{}, model.ErrNotFound
		}
		return model.CapacityLedger{}, fmt.Errorf("lock event row: %w", err)
	}
	return l, nil
}

// LockEvent is LockLedger returning the whole row.
func (t *postgresTx) LockEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(t.tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}
	return e, nil
}

func (t *postgresTx) WriteReserved(ctx context.Context, eventID string, reserved int) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE events SET reserved_count = $2 WHERE id = $1`,
		eventID, reserved,
	)
	if err != nil {
		return fmt.Errorf("update reserved_count: %w", err)
	}
	return nil
}

func (t *postgresTx) UpdateEvent(ctx context.Context, e *model.Event) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE events
		 SET name = $2, description = $3, starts_at = $4, max_capacity = $5,
		     requires_approval = $6, active = $7
		 WHERE id = $1`,
		e.ID, e.Name, e.Description, e.StartsAt, e.MaxCapacity, e.RequiresApproval, e.Active,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == reservedInRange {
			return fmt.Errorf("%w: %s", model.ErrCapacityBelowReserved, pgErr.Message)
		}
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *postgresTx) InsertFormSchema(ctx context.Context, fs *model.FormSchema) error {
	fields, err := json.Marshal(fs.Fields)
	if err != nil {
		return fmt.Errorf("encode form schema fields: %w", err)
	}
	err = t.tx.QueryRow(ctx,
		`INSERT INTO form_schemas (id, event_id, version, fields, created_at)
		 SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3, $4
		 FROM form_schemas WHERE event_id = $2
		 RETURNING version`,
		fs.ID, fs.EventID, fields, fs.CreatedAt,
	).Scan(&fs.Version)
	if err != nil {
		return fmt.Errorf("insert form schema: %w", err)
	}
	return nil
}

func (t *postgresTx) LockRegistration(ctx context.Context, id string) (*model.Registration, error) {
	return getRegistration(ctx, t.tx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1 FOR UPDATE`, id)
}

func (t *postgresTx) HasActiveRegistration(ctx context.Context, eventID, userID string) (bool, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations
		 WHERE event_id = $1 AND user_id = $2 AND status IN ('pending', 'confirmed')`,
		eventID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return n > 0, nil
}

func (t *postgresTx) InsertRegistration(ctx context.Context, r *model.Registration) error {
	formData, err := encodeFormData(r.FormData)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.EventID, r.UserID, r.Contact.Name, r.Contact.Email, r.Contact.Phone,
		formData, r.SchemaVersion, string(r.Status), r.RegisteredAt, r.DecidedAt, r.DecisionReason,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.ErrAlreadyRegistered
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (t *postgresTx) UpdateRegistration(ctx context.Context, r *model.Registration) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE registrations
		 SET status = $2, decided_at = $3, decision_reason = $4
		 WHERE id = $1`,
		r.ID, string(r.Status), r.DecidedAt, r.DecisionReason,
	)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *postgresTx) CountByStatus(ctx context.Context, eventID string, status model.Status) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = $2`,
		eventID, string(status),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.OrganizerID, &e.Name, &e.Description, &e.StartsAt, &e.MaxCapacity,
		&e.RequiresApproval, &e.AttendeeCount, &e.Active, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func getRegistration(ctx context.Context, q querier, sql string, args ...any) (*model.Registration, error) {
	reg, err := scanRegistration(q.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var (
		r        model.Registration
		formData []byte
		status   string
	)
	err := row.Scan(&r.ID, &r.EventID, &r.UserID, &r.Contact.Name, &r.Contact.Email, &r.Contact.Phone,
		&formData, &r.SchemaVersion, &status, &r.RegisteredAt, &r.DecidedAt, &r.DecisionReason)
	if err != nil {
		return nil, err
	}
	r.Status = model.Status(status)
	if r.FormData, err = decodeFormData(formData); err != nil {
		return nil, err
	}
	return &r, nil
}
