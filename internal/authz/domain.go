package authz

import (
	"strconv"
	"strings"
	"time"
)

// Role levels used by the coarse fallback when no explicit permission exists.
const (
	LevelViewer   = 10
	LevelAgent    = 40
	LevelBroker   = 50
	LevelManager  = 70
	LevelDirector = 90
)

// SystemRoleName is the top system role. A principal holding it without an
// organization scope is exempt from organization-match checks.
const SystemRoleName = "system_admin"

// Permission represents an atomic capability named "<resource>.<action>".
type Permission struct {
	ID       int64
	Name     string
	IsSystem bool
	IsActive bool
}

// Role is a named, leveled bundle of permissions, optionally scoped to one
// organization. OrgID nil means system-wide.
type Role struct {
	ID          int64
	Name        string
	DisplayName string
	Level       int
	OrgID       *int64
	IsSystem    bool
	Permissions []Permission
}

// ResourceType implements Resource so role management can be authorized.
func (Role) ResourceType() string { return "role" }

// ResourceID implements Resource.
func (r Role) ResourceID() string { return strconv.FormatInt(r.ID, 10) }

// OrganizationID implements OrganizationScoped for org-scoped roles.
func (r Role) OrganizationID() (int64, bool) {
	if r.OrgID == nil {
		return 0, false
	}
	return *r.OrgID, true
}

// Grant ties a role to a principal with validity metadata.
type Grant struct {
	Role      Role
	GrantedAt time.Time
	ExpiresAt *time.Time
	RevokedAt *time.Time
}

// ActiveAt reports whether the grant contributes permissions at the given
// instant. Expired or revoked grants never do.
func (g Grant) ActiveAt(now time.Time) bool {
	if g.RevokedAt != nil && !g.RevokedAt.After(now) {
		return false
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Principal is the authenticated actor on whose behalf actions are
// evaluated. OrgID is nil for system-level principals. The permission set
// and highest level are derived from active grants at load time.
type Principal struct {
	ID     int64
	OrgID  *int64
	Email  string
	Grants []Grant

	permissions  map[string]struct{}
	highestLevel int
	resolved     bool
}

// NewPrincipal derives the permission set and highest role level from the
// supplied grants, excluding expired and revoked ones.
func NewPrincipal(id int64, orgID *int64, email string, grants []Grant) *Principal {
	p := &Principal{ID: id, OrgID: orgID, Email: email, Grants: grants}
	p.resolve(time.Now())
	return p
}

func (p *Principal) resolve(now time.Time) {
	p.permissions = make(map[string]struct{})
	p.highestLevel = 0
	for _, g := range p.Grants {
		if !g.ActiveAt(now) {
			continue
		}
		if g.Role.Level > p.highestLevel {
			p.highestLevel = g.Role.Level
		}
		for _, perm := range g.Role.Permissions {
			if !perm.IsActive {
				continue
			}
			p.permissions[strings.ToLower(perm.Name)] = struct{}{}
		}
	}
	p.resolved = true
}

// HasPermission reports whether the principal holds the named permission.
func (p *Principal) HasPermission(name string) bool {
	if p == nil || !p.resolved {
		return false
	}
	_, ok := p.permissions[strings.ToLower(name)]
	return ok
}

// HasAnyPermissionFor reports whether any held permission ends in ".<action>".
func (p *Principal) HasAnyPermissionFor(action string) bool {
	if p == nil || !p.resolved {
		return false
	}
	suffix := "." + strings.ToLower(action)
	for name := range p.permissions {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// HasRole reports whether the principal holds an active grant of the role.
func (p *Principal) HasRole(name string) bool {
	if p == nil {
		return false
	}
	now := time.Now()
	for _, g := range p.Grants {
		if g.ActiveAt(now) && strings.EqualFold(g.Role.Name, name) {
			return true
		}
	}
	return false
}

// HighestRoleLevel returns the highest level across active grants, 0 when none.
func (p *Principal) HighestRoleLevel() int {
	if p == nil {
		return 0
	}
	return p.highestLevel
}

// IsSystem reports whether the principal is system-level: it has no
// organization scope and holds the top system role.
func (p *Principal) IsSystem() bool {
	return p != nil && p.OrgID == nil && p.HasRole(SystemRoleName)
}

// CanAccessOrganization reports whether the principal may touch resources
// belonging to the given organization.
func (p *Principal) CanAccessOrganization(orgID int64) bool {
	if p == nil {
		return false
	}
	if p.OrgID != nil && *p.OrgID == orgID {
		return true
	}
	return p.IsSystem()
}

// PermissionNames returns the resolved permission set, for caching.
func (p *Principal) PermissionNames() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.permissions))
	for name := range p.permissions {
		names = append(names, name)
	}
	return names
}

// ResourceType implements Resource so principal administration (e.g. a
// director deleting an agent) can itself be authorized.
func (p *Principal) ResourceType() string { return "principal" }

// ResourceID implements Resource.
func (p *Principal) ResourceID() string { return strconv.FormatInt(p.ID, 10) }

// OrganizationID implements OrganizationScoped.
func (p *Principal) OrganizationID() (int64, bool) {
	if p == nil || p.OrgID == nil {
		return 0, false
	}
	return *p.OrgID, true
}

// TypeRef names a resource type for class-level checks ("may I create any X").
type TypeRef string

// Resource is the instance-level capability every checkable domain object
// exposes. Optional capabilities are declared through Ownable,
// OrganizationScoped and Collaborative; the engine never probes beyond
// these interfaces.
type Resource interface {
	ResourceType() string
	ResourceID() string
}

// Ownable is implemented by resources with a single owning principal.
type Ownable interface {
	OwnerID() int64
}

// OrganizationScoped is implemented by resources belonging to an
// organization. The bool is false when the attribute is present but unset.
type OrganizationScoped interface {
	OrganizationID() (int64, bool)
}

// Collaborative is implemented by workflow resources that carry an
// externally-assigned set of collaborating organizations, such as carriers
// invited to quote on an application.
type Collaborative interface {
	CollaboratorOrgIDs() []int64
}

// Context is the ephemeral per-check value object. Never persisted; parts
// of it are mirrored into audit entries by the engine's attempt logging.
type Context struct {
	OrgID  *int64
	Values map[string]any
}
