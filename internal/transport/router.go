package transport

import (
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tshop/admin/internal/config"
	"github.com/tshop/admin/internal/definition"
	"github.com/tshop/admin/internal/observability"
	"github.com/tshop/admin/internal/screen"
	"github.com/tshop/admin/internal/session"
)

// BackendResolver returns the backend resource a screen talks to.
type BackendResolver interface {
	Backend(serviceID, basePath string) (screen.Backend, error)
}

// BackendResolverFunc adapts a function to BackendResolver.
type BackendResolverFunc func(serviceID, basePath string) (screen.Backend, error)

// Backend calls f.
func (f BackendResolverFunc) Backend(serviceID, basePath string) (screen.Backend, error) {
	return f(serviceID, basePath)
}

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Definitions *definition.Registry
	Backends    BackendResolver
	Sessions    session.Store
	Readiness   observability.ReadinessChecks

	// Clock is the screens' clock. Defaults to time.Now.
	Clock func() time.Time
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints skip the
// request-scoped layers.
func NewRouter(deps Dependencies) chi.Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	r := chi.NewRouter()

	r.Use(Recovery(deps.Logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, observability.Handler())
	}

	h := newSessionHandlers(deps)

	r.Group(func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(deps.Logger))
		r.Use(MetricsRecording(deps.Metrics))

		r.Get("/ui/navigation", handleNavigation(deps.Definitions))
		r.Post("/ui/screens/{screenId}/sessions", h.open)

		r.Route("/ui/sessions/{sessionId}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Delete("/", h.close)
			r.Post("/refresh", h.refresh)
			r.Post("/navigate", h.navigate)
			r.Put("/page-size", h.pageSize)
			r.Patch("/form", h.input)
			r.Post("/form/reset", h.resetForm)
			r.Post("/submit", h.submit)
			r.Post("/rows/{row}/edit", h.edit)
			r.Post("/rows/{row}/delete", h.deleteRow)
		})
	})

	return r
}
