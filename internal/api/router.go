package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted behind
// AuthMiddleware; tenant routes are additionally limited by TenantScope.
// sseHandler, if non-nil, is mounted at GET /tenants/{tenantID}/events
// inside the auth group.
func NewRouter(h *Handler, dh *DocumentHandler, auth Auth, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(auth))

	r.Post("/excel/parse", dh.ParseExcel)
	r.Post("/pdf/generate", dh.GenerateCertificate)
	r.Post("/pdf/generate-softcopy", dh.GenerateSoftcopy)
	r.Get("/logos", dh.ListLogos)

	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Use(TenantScope)
		r.Get("/objects", h.ListObjects)
		r.Route("/objects/{objectID}/records", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.Patch("/{recordID}", h.UpdateRecord)
			r.Get("/{recordID}/fields/{field}", h.GetField)
		})
		r.Post("/drafts/{recordID}/approve", h.ApproveDraft)
		if sseHandler != nil {
			r.Get("/events", sseHandler.ServeHTTP)
		}
	})

	return r
}
