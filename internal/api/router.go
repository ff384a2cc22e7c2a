// Package api wires handlers, middleware, and routes into one http.Handler.
package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/convene-events/server/internal/api/handlers"
	"github.com/convene-events/server/internal/api/middleware"
	"github.com/convene-events/server/internal/config"
	"github.com/convene-events/server/internal/domain/activitypub"
	"github.com/convene-events/server/internal/domain/events"
	"github.com/convene-events/server/internal/metrics"
)

// Deps carries everything the router mounts. Construction happens in the
// serve command so the pool and job client share one lifecycle.
type Deps struct {
	Config        config.Config
	Logger        zerolog.Logger
	Pool          *pgxpool.Pool
	Store         activitypub.Store
	Verifier      *activitypub.Verifier
	Inbox         *activitypub.Inbox
	EventsService *events.Service
	Metrics       *metrics.Metrics
}

func NewRouter(d Deps) http.Handler {
	federation := d.Config.Federation
	env := d.Config.Environment

	ap := handlers.NewActivityPubHandler(d.Store, d.Verifier, d.Inbox, d.Metrics,
		federation.Domain, federation.Enabled, env)
	wellKnown := handlers.NewWellKnownHandler(d.Store, federation.Domain, federation.Enabled, env)
	eventsHandler := handlers.NewEventsHandler(d.EventsService, federation.Domain, env)

	mux := http.NewServeMux()

	mux.Handle("GET /healthz", handlers.Healthz())
	mux.Handle("GET /readyz", handlers.Readyz(d.Pool))
	mux.Handle("GET /metrics", d.Metrics.Handler())

	// Federation surface. Everything here 404s when federation is off.
	mux.Handle("GET /.well-known/webfinger", http.HandlerFunc(wellKnown.Webfinger))
	mux.Handle("POST /activitypub/inbox", http.HandlerFunc(ap.PostInbox))
	mux.Handle("GET /{id}", http.HandlerFunc(ap.GetActor))
	mux.Handle("GET /{id}/event", http.HandlerFunc(ap.GetEventObject))
	mux.Handle("GET /{id}/followers", http.HandlerFunc(ap.GetFollowers))
	mux.Handle("GET /{id}/featured", http.HandlerFunc(ap.GetFeatured))
	mux.Handle("GET /{id}/m/{hash}", http.HandlerFunc(ap.GetMessage))

	// Collaborator API.
	mux.Handle("/api/v1/events", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(eventsHandler.Create),
	}))
	mux.Handle("/api/v1/events/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    http.HandlerFunc(eventsHandler.Get),
		http.MethodPut:    http.HandlerFunc(eventsHandler.Update),
		http.MethodDelete: http.HandlerFunc(eventsHandler.Delete),
	}))
	mux.Handle("/api/v1/events/{id}/attendees", methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(eventsHandler.ListAttendees),
		http.MethodPost: http.HandlerFunc(eventsHandler.AddAttendee),
	}))
	mux.Handle("DELETE /api/v1/events/{id}/attendees/{attendeeID}", http.HandlerFunc(eventsHandler.RemoveAttendee))
	mux.Handle("/api/v1/events/{id}/comments", methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(eventsHandler.ListComments),
		http.MethodPost: http.HandlerFunc(eventsHandler.AddComment),
	}))
	mux.Handle("POST /api/v1/events/{id}/comments/{commentID}/replies", http.HandlerFunc(eventsHandler.AddReply))
	mux.Handle("DELETE /api/v1/events/{id}/comments/{commentID}", http.HandlerFunc(eventsHandler.RemoveComment))
	mux.Handle("/api/v1/groups", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(eventsHandler.CreateGroup),
	}))
	mux.Handle("/api/v1/groups/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    http.HandlerFunc(eventsHandler.GetGroup),
		http.MethodPut:    http.HandlerFunc(eventsHandler.UpdateGroup),
		http.MethodDelete: http.HandlerFunc(eventsHandler.DeleteGroup),
	}))
	mux.Handle("GET /api/v1/groups/{id}/events", http.HandlerFunc(eventsHandler.ListGroupEvents))

	var handler http.Handler = mux
	handler = middleware.Metrics(d.Metrics)(handler)
	handler = middleware.RequestLogging()(handler)
	handler = middleware.CorrelationID(d.Logger)(handler)
	return handler
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
