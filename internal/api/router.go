package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/vigilhq/vigil-master/internal/api/middleware"
	"github.com/vigilhq/vigil-master/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	PingHandler        http.HandlerFunc
	EventsHandler      http.HandlerFunc
	AgentProbesHandler http.HandlerFunc
	StateHandler       http.HandlerFunc
	StateActionHandler http.HandlerFunc

	ListAlarmsHandler  http.HandlerFunc
	GetAlarmHandler    http.HandlerFunc
	AlarmActionHandler http.HandlerFunc
	DeleteAlarmHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/ping", orNotImplemented(deps.PingHandler))

	// Agent-facing routes, rate limited per client
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit)

		r.Post("/events", orNotImplemented(deps.EventsHandler))
		r.Get("/agentprobes", orNotImplemented(deps.AgentProbesHandler))
		r.Head("/agentprobes", orNotImplemented(deps.AgentProbesHandler))
	})

	// User-facing alarm API
	r.Route("/pub/{user}/alarms", func(r chi.Router) {
		r.Get("/", orNotImplemented(deps.ListAlarmsHandler))
		r.Get("/{id}", orNotImplemented(deps.GetAlarmHandler))
		r.Post("/{id}", orNotImplemented(deps.AlarmActionHandler))
		r.Delete("/{id}", orNotImplemented(deps.DeleteAlarmHandler))
	})

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.RequireAdmin)

		r.Get("/state", orNotImplemented(deps.StateHandler))
		r.Post("/state", orNotImplemented(deps.StateActionHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NotImplemented", "Endpoint not yet implemented", nil)
	}
}
