package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-registration/internal/config"
	"github.com/Shivanand-hulikatti/event-registration/internal/service"
)

// NewRouter builds the API router. Event reads, the current form schema and
// /health are public; everything else needs a bearer token.
func NewRouter(svc *service.Service, auth config.AuthConfig, allowedOrigins []string, log *zap.Logger) http.Handler {
	h := NewEventHandler(svc, log)
	authn := NewAuthenticator(auth)

	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(log))
	r.Use(CORS(allowedOrigins))

	r.Get("/health", HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(authn.Identify)

		r.Get("/events", h.ListEvents)
		r.Get("/events/{id}", h.GetEvent)
		r.Get("/events/{id}/form-schema", h.GetFormSchema)

		r.Group(func(r chi.Router) {
			r.Use(RequireActor)

			r.Post("/events", h.CreateEvent)
			r.Patch("/events/{id}", h.UpdateEvent)
			r.Post("/events/{id}/deactivate", h.DeactivateEvent)
			r.Post("/events/{id}/reconcile", h.Reconcile)
			r.Put("/events/{id}/form-schema", h.PutFormSchema)
			r.Get("/events/{id}/form-schema/versions/{version}", h.GetFormSchemaVersion)
			r.Post("/events/{id}/registrations", h.Register)
			r.Get("/events/{id}/registrations/me", h.MyRegistration)
			r.Get("/events/{id}/registrations/pending", h.ListPending)
			r.Get("/events/{id}/attendees", h.ListAttendees)

			r.Post("/registrations/{id}/cancel", h.Cancel)
			r.Post("/registrations/{id}/approve", h.Approve)
			r.Post("/registrations/{id}/reject", h.Reject)
		})
	})

	return r
}
