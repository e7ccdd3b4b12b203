package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/webberzone/gluelink/internal/config"
	"github.com/webberzone/gluelink/internal/store"
)

// NewRouter creates and configures the HTTP router. endpointType selects
// which webhook binding is mounted; the reporting API is always present.
func NewRouter(pgStore *store.PostgresStore, wh *WebhookHandler, endpointType string) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	subHandler := NewSubscriberHandler(pgStore)

	r.Route("/glue-link/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		if endpointType == config.EndpointREST {
			r.Post("/webhook", wh.Rest)
		}

		r.Route("/subscribers", func(r chi.Router) {
			r.Get("/", subHandler.List)
			r.Get("/counts", subHandler.Counts)
			r.Post("/delete", subHandler.BulkDelete)
			r.Get("/{id}", subHandler.Get)
			r.Delete("/{id}", subHandler.Delete)
		})
	})

	if endpointType == config.EndpointQuery {
		// The legacy binding hangs off the site root; the handler rejects
		// non-POST methods and requests without the magic query variable.
		r.HandleFunc("/", wh.Query)
	}

	return r
}
