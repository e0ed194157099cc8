package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GENA request methods.
const (
	MethodSubscribe   = "SUBSCRIBE"
	MethodUnsubscribe = "UNSUBSCRIBE"
)

func init() {
	chi.RegisterMethod(MethodSubscribe)
	chi.RegisterMethod(MethodUnsubscribe)
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeNotFound(w, r, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, r.Method+" not allowed on "+r.URL.Path)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.corsMiddleware)

		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{uuid}", s.handleGetDevice)
		})

		r.Get("/directory", s.handleListDirectory)

		r.Get("/ws", s.handleWebSocket)
	})

	// UPnP routes. The first segment is a device UUID, except for service
	// descriptions where it is "<Type>_<ver>".
	r.Group(func(r chi.Router) {
		r.Use(s.serverHeaderMiddleware)

		r.Get("/{id}/description.xml", s.handleDeviceDescription)
		r.Get("/{id}/service.xml", s.handleServiceDescription)
		r.Post("/{id}/{service}/control", s.handleControl)
		r.Method(MethodSubscribe, "/{id}/{service}/sub", http.HandlerFunc(s.handleSubscribe))
		r.Method(MethodUnsubscribe, "/{id}/{service}/sub", http.HandlerFunc(s.handleUnsubscribe))
	})

	return r
}
