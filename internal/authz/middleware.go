package authz

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/brokerdesk/brokerdesk/internal/platform/httpx"
	"github.com/brokerdesk/brokerdesk/internal/shared"
)

// Middleware wires authorization checks into HTTP handlers.
type Middleware struct {
	Engine  *Engine
	Service *Service
	Logger  *slog.Logger
}

// Require guards a route with a class-level check against the resource type.
func (m Middleware) Require(action string, resource TypeRef) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := m.resolve(r)
			if err != nil {
				httpx.RespondError(w, r, fmt.Errorf("%w: %w", httpx.ErrForbidden, err))
				return
			}
			if err := m.Engine.Authorize(r.Context(), principal, action, resource, Context{}); err != nil {
				httpx.RespondError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) resolve(r *http.Request) (*Principal, error) {
	actor := shared.CurrentActor(r.Context())
	if actor == nil {
		return nil, shared.ErrInvalidToken
	}
	principal, err := m.Service.Resolve(r.Context(), actor.ID)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("resolve principal", slog.Int64("principal_id", actor.ID), slog.Any("error", err))
		}
		return nil, err
	}
	return principal, nil
}

// PrincipalFromRequest resolves the acting principal for handlers that run
// instance-level checks themselves.
func (m Middleware) PrincipalFromRequest(r *http.Request) (*Principal, error) {
	return m.resolve(r)
}
