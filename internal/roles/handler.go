package roles

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/brokerdesk/brokerdesk/internal/authz"
	"github.com/brokerdesk/brokerdesk/internal/platform/httpx"
)

// Handler exposes role management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   authz.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: mw}
}

// MountRoutes registers role routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.authz.Require("read", authz.TypeRef("role"))).Get("/", h.list)
	r.With(h.authz.Require("read", authz.TypeRef("role"))).Get("/{id}", h.show)
	r.Put("/{id}", h.update)
}

type roleView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Level       int    `json:"level"`
	OrgID       *int64 `json:"org_id,omitempty"`
	IsSystem    bool   `json:"is_system"`
}

type updateRoleRequest struct {
	DisplayName string `json:"display_name"`
	Level       int    `json:"level"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	views := make([]roleView, len(roles))
	for i, role := range roles {
		views[i] = toView(role)
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, r, httpx.ErrValidation)
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(role))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, r, httpx.ErrValidation)
		return
	}
	actor, err := h.authz.PrincipalFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, httpx.ErrValidation)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), actor, id, req.DisplayName, req.Level)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(role))
}

func toView(role Role) roleView {
	return roleView{
		ID:          role.ID,
		Name:        role.Name,
		DisplayName: role.DisplayName,
		Level:       role.Level,
		OrgID:       role.OrgID,
		IsSystem:    role.IsSystem,
	}
}
