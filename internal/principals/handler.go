package principals

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brokerdesk/brokerdesk/internal/authz"
	"github.com/brokerdesk/brokerdesk/internal/platform/httpx"
)

// Handler manages account management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   authz.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("list", authz.TypeRef("principal")))
		r.Get("/", h.list)
	})
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.destroy)
}

type accountView struct {
	ID           int64    `json:"id"`
	Email        string   `json:"email"`
	OrgID        *int64   `json:"org_id,omitempty"`
	IsActive     bool     `json:"is_active"`
	Roles        []string `json:"roles"`
	CreatedAt    string   `json:"created_at"`
	LastSignInAt *string  `json:"last_sign_in_at,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, err := h.guard.PrincipalFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	accounts, err := h.service.List(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, toView(a))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, id, err := h.actorAndID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	account, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(account))
}

func (h *Handler) destroy(w http.ResponseWriter, r *http.Request) {
	actor, id, err := h.actorAndID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if err := h.service.Destroy(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) actorAndID(r *http.Request) (*authz.Principal, int64, error) {
	actor, err := h.guard.PrincipalFromRequest(r)
	if err != nil {
		return nil, 0, err
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, 0, httpx.ErrValidation
	}
	return actor, id, nil
}

func toView(a Account) accountView {
	view := accountView{
		ID:        a.ID,
		Email:     a.Email,
		OrgID:     a.OrgID,
		IsActive:  a.IsActive,
		Roles:     a.RoleNames,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
	if a.LastSignInAt != nil {
		s := a.LastSignInAt.Format(time.RFC3339)
		view.LastSignInAt = &s
	}
	return view
}
