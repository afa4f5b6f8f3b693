package orgs

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brokerdesk/brokerdesk/internal/authz"
	"github.com/brokerdesk/brokerdesk/internal/platform/httpx"
)

// Handler exposes the tenant directory read surface.
type Handler struct {
	logger    *slog.Logger
	directory *Directory
	guard     authz.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, directory *Directory, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, directory: directory, guard: guard}
}

// MountRoutes registers directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("read", authz.TypeRef("organization")))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
}

type organizationView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	organizations, err := h.directory.List(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	views := make([]organizationView, 0, len(organizations))
	for _, org := range organizations {
		views = append(views, toOrganizationView(org))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, r, httpx.ErrValidation)
		return
	}
	org, err := h.directory.Find(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrganizationView(org))
}

func toOrganizationView(org Organization) organizationView {
	return organizationView{
		ID:        org.ID,
		Name:      org.Name,
		Kind:      string(org.Kind),
		IsActive:  org.IsActive,
		CreatedAt: org.CreatedAt.Format(time.RFC3339),
	}
}
