package authz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/brokerdesk/brokerdesk/internal/platform/cache"
)

// PrincipalSource loads principals from reference storage.
type PrincipalSource interface {
	FindPrincipal(ctx context.Context, id int64) (*Principal, error)
}

// Service resolves principals for authorization checks. Resolved graphs are
// cached per principal with a short TTL and concurrent loads for the same
// principal are collapsed, so checks stay in-memory on the hot path.
type Service struct {
	source PrincipalSource
	cache  *cache.PrincipalCache
	group  singleflight.Group
	logger *slog.Logger
	ttl    time.Duration
}

// NewService constructs a Service. cache may be nil to disable caching.
func NewService(source PrincipalSource, principalCache *cache.PrincipalCache, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: principalCache, logger: logger, ttl: ttl}
}

// Resolve returns the principal with its derived permission set.
func (s *Service) Resolve(ctx context.Context, id int64) (*Principal, error) {
	if s.cache != nil {
		if snap, ok := s.cache.Get(ctx, id); ok {
			return principalFromSnapshot(snap), nil
		}
	}
	v, err, _ := s.group.Do(fmt.Sprintf("principal:%d", id), func() (any, error) {
		p, err := s.source.FindPrincipal(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Put(ctx, id, snapshotOf(p), s.ttl); err != nil {
				s.logger.Warn("cache principal", slog.Int64("principal_id", id), slog.Any("error", err))
			}
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Principal), nil
}

// Invalidate drops the cached graph after a role or grant change.
func (s *Service) Invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Drop(ctx, id); err != nil {
		s.logger.Warn("invalidate principal cache", slog.Int64("principal_id", id), slog.Any("error", err))
	}
}

func snapshotOf(p *Principal) cache.PrincipalSnapshot {
	snap := cache.PrincipalSnapshot{
		ID:           p.ID,
		OrgID:        p.OrgID,
		Email:        p.Email,
		Permissions:  p.PermissionNames(),
		HighestLevel: p.HighestRoleLevel(),
	}
	now := time.Now()
	for _, g := range p.Grants {
		if !g.ActiveAt(now) {
			continue
		}
		snap.Roles = append(snap.Roles, cache.RoleSnapshot{
			Name:  g.Role.Name,
			Level: g.Role.Level,
			OrgID: g.Role.OrgID,
		})
	}
	return snap
}

// principalFromSnapshot rebuilds a resolvable principal from cached data.
// Grant validity was evaluated when the snapshot was taken; the TTL bounds
// the staleness window.
func principalFromSnapshot(snap cache.PrincipalSnapshot) *Principal {
	grants := make([]Grant, 0, len(snap.Roles))
	for _, r := range snap.Roles {
		perms := make([]Permission, 0, len(snap.Permissions))
		grants = append(grants, Grant{Role: Role{Name: r.Name, Level: r.Level, OrgID: r.OrgID, Permissions: perms}, GrantedAt: time.Now()})
	}
	p := &Principal{ID: snap.ID, OrgID: snap.OrgID, Email: snap.Email, Grants: grants}
	p.permissions = make(map[string]struct{}, len(snap.Permissions))
	for _, name := range snap.Permissions {
		p.permissions[name] = struct{}{}
	}
	p.highestLevel = snap.HighestLevel
	p.resolved = true
	return p
}
