package quote

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Register mounts the page and the quote API on r. submit wraps only the
// submission endpoint, typically with rate limiting and idempotency.
func (h *Handler) Register(r chi.Router, submit ...func(http.Handler) http.Handler) {
	r.Get("/", h.Page)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/tiers", h.Tiers)
		r.Post("/quotes", h.Calculate)
		r.Get("/quotes/current", h.Current)
		r.Get("/quotes/current/csv", h.ExportCSV)
		r.With(submit...).Post("/quotes/current/submit", h.Submit)
	})
}
