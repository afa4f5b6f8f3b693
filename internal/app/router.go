package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/brokerdesk/brokerdesk/internal/applications"
	"github.com/brokerdesk/brokerdesk/internal/audit"
	"github.com/brokerdesk/brokerdesk/internal/auth"
	"github.com/brokerdesk/brokerdesk/internal/observability"
	"github.com/brokerdesk/brokerdesk/internal/orgs"
	"github.com/brokerdesk/brokerdesk/internal/principals"
	"github.com/brokerdesk/brokerdesk/internal/roles"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	AuthHandler         *auth.Handler
	RolesHandler        *roles.Handler
	PrincipalsHandler   *principals.Handler
	OrganizationHandler *orgs.Handler
	ApplicationsHandler *applications.Handler
	AuditHandler        *audit.Handler
	Metrics             *observability.Metrics
	Wrapper             *audit.Wrapper
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
		Wrapper: params.Wrapper,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
	}
	if params.PrincipalsHandler != nil {
		r.Route("/principals", params.PrincipalsHandler.MountRoutes)
	}
	if params.OrganizationHandler != nil {
		r.Route("/organizations", params.OrganizationHandler.MountRoutes)
	}
	if params.ApplicationsHandler != nil {
		r.Route("/applications", params.ApplicationsHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
