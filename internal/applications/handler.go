package applications

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/brokerdesk/brokerdesk/internal/authz"
	"github.com/brokerdesk/brokerdesk/internal/platform/httpx"
)

// Handler manages application workflow endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers application routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("list", authz.TypeRef("application")))
		r.Get("/", h.list)
	})
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
}

type draftRequest struct {
	Kind            string  `json:"kind" validate:"required,oneof=fire liability general"`
	ApplicantName   string  `json:"applicant_name" validate:"required,max=200"`
	PropertyAddress string  `json:"property_address" validate:"max=500"`
	CoverageAmount  int64   `json:"coverage_amount" validate:"gte=0"`
	Premium         int64   `json:"premium" validate:"gte=0"`
	CarrierOrgIDs   []int64 `json:"carrier_org_ids" validate:"max=20"`
	Notes           string  `json:"notes" validate:"max=2000"`
}

type noteRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

type applicationView struct {
	ID              string  `json:"id"`
	Number          string  `json:"number"`
	Kind            string  `json:"kind"`
	Status          string  `json:"status"`
	ApplicantName   string  `json:"applicant_name"`
	PropertyAddress string  `json:"property_address,omitempty"`
	CoverageAmount  int64   `json:"coverage_amount"`
	Premium         int64   `json:"premium"`
	BrokerID        int64   `json:"broker_id"`
	AgencyOrgID     int64   `json:"agency_org_id"`
	CarrierOrgIDs   []int64 `json:"carrier_org_ids,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	SubmittedAt     *string `json:"submitted_at,omitempty"`
	DecidedAt       *string `json:"decided_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, err := h.guard.PrincipalFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	draft, err := h.decodeDraft(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	app, err := h.service.Create(r.Context(), actor, draft)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toApplicationView(app))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, err := h.guard.PrincipalFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	filter := ListFilter{}
	if v := r.URL.Query().Get("status"); v != "" {
		status := Status(v)
		filter.Status = &status
	}
	if v := r.URL.Query().Get("kind"); v != "" {
		kind := Kind(v)
		filter.Kind = &kind
	}
	apps, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	views := make([]applicationView, 0, len(apps))
	for _, app := range apps {
		views = append(views, toApplicationView(app))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, id, err := h.actorAndID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	app, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toApplicationView(app))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, id, err := h.actorAndID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	draft, err := h.decodeDraft(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	app, err := h.service.Update(r.Context(), actor, id, draft)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toApplicationView(app))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Submit)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reject)
}

type transitionFunc func(ctx context.Context, actor *authz.Principal, id uuid.UUID, note string) (Application, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	actor, id, err := h.actorAndID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var req noteRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, r, fmt.Errorf("%w: %w", httpx.ErrValidation, err))
			return
		}
		if err := h.validator.Struct(req); err != nil {
			httpx.RespondError(w, r, fmt.Errorf("%w: %w", httpx.ErrValidation, err))
			return
		}
	}
	app, err := fn(r.Context(), actor, id, req.Note)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toApplicationView(app))
}

func (h *Handler) decodeDraft(r *http.Request) (Draft, error) {
	var req draftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return Draft{}, fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return Draft{}, fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	}
	return Draft{
		Kind:            Kind(req.Kind),
		ApplicantName:   req.ApplicantName,
		PropertyAddress: req.PropertyAddress,
		CoverageAmount:  req.CoverageAmount,
		Premium:         req.Premium,
		CarrierOrgIDs:   req.CarrierOrgIDs,
		Notes:           req.Notes,
	}, nil
}

func (h *Handler) actorAndID(r *http.Request) (*authz.Principal, uuid.UUID, error) {
	actor, err := h.guard.PrincipalFromRequest(r)
	if err != nil {
		return nil, uuid.Nil, err
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%w: malformed id", httpx.ErrValidation)
	}
	return actor, id, nil
}

func toApplicationView(app Application) applicationView {
	view := applicationView{
		ID:              app.ID.String(),
		Number:          app.Number,
		Kind:            string(app.Kind),
		Status:          string(app.Status),
		ApplicantName:   app.ApplicantName,
		PropertyAddress: app.PropertyAddress,
		CoverageAmount:  app.CoverageAmount,
		Premium:         app.Premium,
		BrokerID:        app.BrokerID,
		AgencyOrgID:     app.AgencyOrgID,
		CarrierOrgIDs:   app.CarrierOrgIDs,
		Notes:           app.Notes,
		CreatedAt:       app.CreatedAt.Format(time.RFC3339),
	}
	if app.SubmittedAt != nil {
		s := app.SubmittedAt.Format(time.RFC3339)
		view.SubmittedAt = &s
	}
	if app.DecidedAt != nil {
		s := app.DecidedAt.Format(time.RFC3339)
		view.DecidedAt = &s
	}
	return view
}
