package principals

import (
	"context"

	"github.com/brokerdesk/brokerdesk/internal/audit"
	"github.com/brokerdesk/brokerdesk/internal/authz"
)

// RepositoryPort defines data access methods for principal accounts.
type RepositoryPort interface {
	List(ctx context.Context, orgID *int64) ([]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	Deactivate(ctx context.Context, id int64) error
}

// PrincipalResolver resolves and invalidates cached principals.
type PrincipalResolver interface {
	Resolve(ctx context.Context, id int64) (*authz.Principal, error)
	Invalidate(ctx context.Context, id int64)
}

// Service handles account management logic.
type Service struct {
	repo     RepositoryPort
	resolver PrincipalResolver
	engine   *authz.Engine
	recorder *audit.Recorder
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, resolver PrincipalResolver, engine *authz.Engine, recorder *audit.Recorder) *Service {
	return &Service{repo: repo, resolver: resolver, engine: engine, recorder: recorder}
}

// List returns the accounts the actor may see. Non-system actors only see
// their own organization.
func (s *Service) List(ctx context.Context, actor *authz.Principal) ([]Account, error) {
	var scope *int64
	if actor != nil && !actor.IsSystem() {
		scope = actor.OrgID
	}
	accounts, err := s.repo.List(ctx, scope)
	if err != nil {
		return nil, err
	}
	s.recorder.LogListAccess(ctx, "principal", len(accounts), scope != nil)
	return accounts, nil
}

// Get loads one account, enforcing the organization boundary.
func (s *Service) Get(ctx context.Context, actor *authz.Principal, id int64) (Account, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	target, err := s.resolver.Resolve(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if err := s.engine.Authorize(ctx, actor, "read", target, authz.Context{}); err != nil {
		return Account{}, err
	}
	s.recorder.LogAccess(ctx, "principal", account.ResourceID(), nil)
	return account, nil
}

// Destroy deactivates an account. The destroy rule blocks self-removal and
// removal of peers at or above the actor's level.
func (s *Service) Destroy(ctx context.Context, actor *authz.Principal, id int64) error {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	target, err := s.resolver.Resolve(ctx, id)
	if err != nil {
		return err
	}
	if err := s.engine.Authorize(ctx, actor, "destroy", target, authz.Context{}); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.resolver.Invalidate(ctx, id)
	s.recorder.RecordDestroy(ctx, account)
	return nil
}
