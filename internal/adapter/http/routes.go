package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the REST API on the given chi router. writeMW wraps
// only the mutating routes (rate limiting, idempotency).
func MountRoutes(r chi.Router, h *Handlers, writeMW ...func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", h.GetVersion)

		r.Get("/installations", h.ListInstallations)
		r.Get("/installations/{id}", h.GetInstallation)
		r.Get("/observers", h.ListObservers)

		r.Group(func(r chi.Router) {
			r.Use(writeMW...)
			r.Post("/installations", h.CreateInstallation)
			r.Patch("/installations/{id}", h.UpdateInstallation)
			r.Delete("/installations/{id}", h.DeleteInstallation)
		})
	})
}
