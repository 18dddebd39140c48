// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/service"
)

// EventHandler holds all HTTP handlers for the registration API.
type EventHandler struct {
	svc *service.Service
	log *zap.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(svc *service.Service, log *zap.Logger) *EventHandler {
	return &EventHandler{svc: svc, log: log}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// errorStatuses maps service errors onto HTTP statuses and envelope codes.
// The first match wins.
var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{model.ErrEventFull, http.StatusConflict, "event_full"},
	{model.ErrAlreadyRegistered, http.StatusConflict, "already_registered"},
	{model.ErrNotPending, http.StatusConflict, "not_pending"},
	{model.ErrNotCancellable, http.StatusConflict, "not_cancellable"},
	{model.ErrEventInactive, http.StatusConflict, "event_inactive"},
	{model.ErrCapacityBelowReserved, http.StatusConflict, "capacity_below_reserved"},
	{model.ErrForbidden, http.StatusForbidden, "forbidden"},
	{model.ErrNotOwner, http.StatusForbidden, "not_owner"},
	{model.ErrMissingReason, http.StatusBadRequest, "missing_reason"},
	{model.ErrSchemaInvalid, http.StatusBadRequest, "schema_invalid"},
	{model.ErrNotFound, http.StatusNotFound, "not_found"},
	{model.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
}

// writeServiceError maps a service error onto its HTTP status.
func (h *EventHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusUnprocessableEntity, model.ErrorResponse{
			Error:  ve.Error(),
			Code:   "validation_failed",
			Errors: ve.Errors,
		})
		return
	}

	for _, m := range errorStatuses {
		if errors.Is(err, m.err) {
			msg := err.Error()
			// Wrapped capacity errors carry allocator detail.
			if m.err == model.ErrEventFull || m.err == model.ErrNotFound {
				msg = m.err.Error()
			}
			writeJSON(w, m.status, model.ErrorResponse{Error: msg, Code: m.code})
			return
		}
	}

	h.log.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), actorOf(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListEvents(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// UpdateEvent handles PATCH /events/{id}
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.UpdateEvent(r.Context(), actorOf(r), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// DeactivateEvent handles POST /events/{id}/deactivate
func (h *EventHandler) DeactivateEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.DeactivateEvent(r.Context(), actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// Reconcile handles POST /events/{id}/reconcile
func (h *EventHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ReconcileEvent(r.Context(), actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ─── Form schemas ─────────────────────────────────────────────────────────────

// GetFormSchema handles GET /events/{id}/form-schema
func (h *EventHandler) GetFormSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := h.svc.GetFormSchema(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, schema)
}

// GetFormSchemaVersion handles GET /events/{id}/form-schema/versions/{version}
func (h *EventHandler) GetFormSchemaVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		writeError(w, http.StatusBadRequest, "version must be a positive integer")
		return
	}

	schema, err := h.svc.GetFormSchemaVersion(r.Context(), chi.URLParam(r, "id"), version)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, schema)
}

// PutFormSchema handles PUT /events/{id}/form-schema
func (h *EventHandler) PutFormSchema(w http.ResponseWriter, r *http.Request) {
	var req model.FormSchemaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	schema, err := h.svc.PutFormSchema(r.Context(), actorOf(r), chi.URLParam(r, "id"), req.Fields)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, schema)
}

// ─── Registrations ────────────────────────────────────────────────────────────

// Register handles POST /events/{id}/registrations
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.svc.SubmitRegistration(r.Context(), actorOf(r), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Status == model.StatusPending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// MyRegistration handles GET /events/{id}/registrations/me
func (h *EventHandler) MyRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.GetMyRegistration(r.Context(), actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// ListPending handles GET /events/{id}/registrations/pending
func (h *EventHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	regs, err := h.svc.ListPendingRegistrations(r.Context(), actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, regs)
}

// ListAttendees handles GET /events/{id}/attendees?status=
func (h *EventHandler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	status := model.Status(r.URL.Query().Get("status"))
	regs, err := h.svc.ListAttendees(r.Context(), actorOf(r), chi.URLParam(r, "id"), status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, regs)
}

// Cancel handles POST /registrations/{id}/cancel
func (h *EventHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.CancelRegistration(r.Context(), actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// Approve handles POST /registrations/{id}/approve
func (h *EventHandler) Approve(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.ApproveRegistration(r.Context(), actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// Reject handles POST /registrations/{id}/reject
func (h *EventHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req model.RejectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	reg, err := h.svc.RejectRegistration(r.Context(), actorOf(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
