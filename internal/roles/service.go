package roles

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/brokerdesk/brokerdesk/internal/authz"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	UpdateRole(ctx context.Context, id int64, displayName string, level int) (Role, error)
}

// Service handles role management. Every mutation goes through the
// authorization engine's role-manage rule before it reaches storage.
type Service struct {
	repo   RepositoryPort
	engine *authz.Engine
	titler cases.Caser
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, engine *authz.Engine) *Service {
	return &Service{repo: repo, engine: engine, titler: cases.Title(language.English)}
}

// ListRoles returns all roles with display names filled in.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		roles[i].DisplayName = s.displayName(roles[i])
	}
	return roles, nil
}

// GetRole returns one role.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	role.DisplayName = s.displayName(role)
	return role, nil
}

// UpdateRole changes a role after the manage rule admits the principal.
func (s *Service) UpdateRole(ctx context.Context, actor *authz.Principal, id int64, displayName string, level int) (Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if err := s.engine.Authorize(ctx, actor, "manage", toAuthzRole(role), authz.Context{}); err != nil {
		return Role{}, err
	}
	updated, err := s.repo.UpdateRole(ctx, id, displayName, level)
	if err != nil {
		return Role{}, err
	}
	updated.DisplayName = s.displayName(updated)
	return updated, nil
}

// displayName falls back to a title-cased role name when none is stored.
func (s *Service) displayName(role Role) string {
	if role.DisplayName != "" {
		return role.DisplayName
	}
	return s.titler.String(strings.ReplaceAll(role.Name, "_", " "))
}

func toAuthzRole(role Role) authz.Role {
	return authz.Role{
		ID:       role.ID,
		Name:     role.Name,
		Level:    role.Level,
		OrgID:    role.OrgID,
		IsSystem: role.IsSystem,
	}
}
