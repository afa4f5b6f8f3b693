package audit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brokerdesk/brokerdesk/internal/authz"
	"github.com/brokerdesk/brokerdesk/internal/platform/httpx"
)

// Handler exposes the read-only trail queries. Entries are append-only;
// there is no mutation surface.
type Handler struct {
	logger *slog.Logger
	store  *Store
	guard  authz.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, store *Store, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, store: store, guard: guard}
}

// MountRoutes registers trail query routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("read", authz.TypeRef("audit_entry")))
		r.Get("/organizations/{id}", h.byOrganization)
		r.Get("/actors/{id}", h.byActor)
		r.Get("/resources/{type}/{id}", h.byResource)
	})
}

type entryView struct {
	ID           string         `json:"id"`
	PrincipalID  *int64         `json:"principal_id,omitempty"`
	OrgID        *int64         `json:"org_id,omitempty"`
	Action       string         `json:"action"`
	Category     string         `json:"category"`
	Severity     string         `json:"severity"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	IP           string         `json:"ip,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    string         `json:"created_at"`
}

func (h *Handler) byOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, r, fmt.Errorf("%w: malformed organization id", httpx.ErrValidation))
		return
	}
	window, limit, err := queryWindow(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	entries, err := h.store.ByOrganization(r.Context(), orgID, window, limit)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.respond(w, entries)
}

func (h *Handler) byActor(w http.ResponseWriter, r *http.Request) {
	principalID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, r, fmt.Errorf("%w: malformed actor id", httpx.ErrValidation))
		return
	}
	window, limit, err := queryWindow(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	entries, err := h.store.ByActor(r.Context(), principalID, window, limit)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.respond(w, entries)
}

func (h *Handler) byResource(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "type")
	resourceID := chi.URLParam(r, "id")
	limit, err := queryLimit(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	entries, err := h.store.ByResource(r.Context(), resourceType, resourceID, limit)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.respond(w, entries)
}

func (h *Handler) respond(w http.ResponseWriter, entries []Entry) {
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toEntryView(e))
	}
	httpx.JSON(w, http.StatusOK, views)
}

// queryWindow parses from/to, defaulting to the trailing 24 hours.
func queryWindow(r *http.Request) (Window, int, error) {
	now := time.Now().UTC()
	window := Window{From: now.Add(-24 * time.Hour), To: now}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Window{}, 0, fmt.Errorf("%w: malformed from timestamp", httpx.ErrValidation)
		}
		window.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Window{}, 0, fmt.Errorf("%w: malformed to timestamp", httpx.ErrValidation)
		}
		window.To = t
	}
	limit, err := queryLimit(r)
	if err != nil {
		return Window{}, 0, err
	}
	return window, limit, nil
}

func queryLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("%w: malformed limit", httpx.ErrValidation)
	}
	return limit, nil
}

func toEntryView(e Entry) entryView {
	return entryView{
		ID:           e.ID.String(),
		PrincipalID:  e.PrincipalID,
		OrgID:        e.OrgID,
		Action:       e.Action,
		Category:     string(e.Category),
		Severity:     string(e.Severity),
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		IP:           e.IP,
		Details:      e.Details,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}
