package authz

import (
	"context"
	"strings"
)

// Rule is a per-resource-type override evaluated after the generic
// ownership and organization layers. Its result is authoritative for that
// layer.
type Rule func(ctx context.Context, p *Principal, res Resource, ac Context) bool

type ruleKey struct {
	resourceType string
	action       string
}

// RuleRegistry maps (resource type, action) pairs to rules. Registered once
// at startup so the rule set stays enumerable. No rule for a pair means the
// layer passes; callers depend on that default-allow posture, so switching
// to default-deny is a breaking change.
type RuleRegistry struct {
	rules map[ruleKey]Rule
}

// NewRuleRegistry returns an empty registry.
func NewRuleRegistry() *RuleRegistry {
	return &RuleRegistry{rules: make(map[ruleKey]Rule)}
}

// Register installs a rule for the resource type and action. Later
// registrations for the same pair replace earlier ones.
func (r *RuleRegistry) Register(resourceType, action string, rule Rule) {
	if rule == nil {
		return
	}
	r.rules[ruleKey{
		resourceType: strings.ToLower(strings.TrimSpace(resourceType)),
		action:       strings.ToLower(strings.TrimSpace(action)),
	}] = rule
}

// Registered lists the installed (resource type, action) pairs.
func (r *RuleRegistry) Registered() []string {
	keys := make([]string, 0, len(r.rules))
	for k := range r.rules {
		keys = append(keys, k.resourceType+"."+k.action)
	}
	return keys
}

func (r *RuleRegistry) allow(ctx context.Context, p *Principal, action string, res Resource, ac Context) bool {
	rule, ok := r.rules[ruleKey{
		resourceType: strings.ToLower(res.ResourceType()),
		action:       strings.ToLower(action),
	}]
	if !ok {
		return true
	}
	return rule(ctx, p, res, ac)
}

// DefaultRules returns a registry preloaded with the built-in rules.
func DefaultRules() *RuleRegistry {
	reg := NewRuleRegistry()
	reg.Register("principal", "destroy", PrincipalDestroyRule)
	reg.Register("role", "manage", RoleManageRule)
	reg.Register("application", "update", WorkflowUpdateRule(LevelBroker))
	return reg
}

// PrincipalDestroyRule forbids self-deletion and requires the acting
// principal to outrank the target strictly.
func PrincipalDestroyRule(ctx context.Context, p *Principal, res Resource, ac Context) bool {
	target, ok := res.(*Principal)
	if !ok {
		return false
	}
	if target.ID == p.ID {
		return false
	}
	return p.HighestRoleLevel() > target.HighestRoleLevel()
}

// RoleManageRule scopes role management: system roles belong to
// system-level principals, organization roles to principals authorized for
// that organization.
func RoleManageRule(ctx context.Context, p *Principal, res Resource, ac Context) bool {
	var role Role
	switch r := res.(type) {
	case Role:
		role = r
	case *Role:
		role = *r
	default:
		return false
	}
	if role.OrgID == nil {
		return p.IsSystem()
	}
	return p.CanAccessOrganization(*role.OrgID)
}

// WorkflowUpdateRule allows updating a workflow resource when the principal
// owns it, shares its organization at or above the given level, or belongs
// to one of its invited collaborator organizations.
func WorkflowUpdateRule(minLevel int) Rule {
	return func(ctx context.Context, p *Principal, res Resource, ac Context) bool {
		if owned, ok := res.(Ownable); ok && owned.OwnerID() == p.ID {
			return true
		}
		if scoped, ok := res.(OrganizationScoped); ok {
			if orgID, set := scoped.OrganizationID(); set &&
				p.OrgID != nil && *p.OrgID == orgID && p.HighestRoleLevel() >= minLevel {
				return true
			}
		}
		if collab, ok := res.(Collaborative); ok && p.OrgID != nil {
			for _, orgID := range collab.CollaboratorOrgIDs() {
				if orgID == *p.OrgID {
					return true
				}
			}
		}
		return false
	}
}
