package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the audit API. guard, when non-nil,
// wraps every endpoint.
func Router(store *Store, guard func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	if guard != nil {
		r.Use(guard)
	}
	r.Get("/events", ListEventsHandler(store))
	return r
}
