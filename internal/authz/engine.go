package authz

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Error is the typed denial surfaced by Authorize. The message stays
// generic; the denied action and resource description are carried for
// audit, never internal permission names.
type Error struct {
	Action   string
	Resource string
	Reason   string
}

// Error implements error with a client-safe message.
func (e *Error) Error() string {
	return fmt.Sprintf("access denied: cannot %s %s", e.Action, e.Resource)
}

// AuthorizationDenial marks the error for transport-layer mapping.
func (e *Error) AuthorizationDenial() {}

// AttemptAuditor receives authorization outcomes worth recording. The audit
// recorder implements it; the engine stays free of persistence concerns.
type AttemptAuditor interface {
	LogAuthorizationAttempt(ctx context.Context, action, resourceType, resourceID string, allowed bool)
	LogAuthorizationDenied(ctx context.Context, denial *Error, resourceType, resourceID string)
}

// DecisionObserver counts allow/deny outcomes, implemented by observability.
type DecisionObserver interface {
	ObserveDecision(action string, allowed bool)
}

// Engine evaluates whether a principal may perform an action on a resource
// using layered resolution: direct permission, manage permission,
// role-level fallback, ownership/organization scoping, then registered
// per-resource rules.
type Engine struct {
	rules    *RuleRegistry
	auditor  AttemptAuditor
	observer DecisionObserver
	logger   *slog.Logger
}

// NewEngine constructs an Engine. auditor and observer may be nil.
func NewEngine(rules *RuleRegistry, auditor AttemptAuditor, observer DecisionObserver, logger *slog.Logger) *Engine {
	if rules == nil {
		rules = NewRuleRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{rules: rules, auditor: auditor, observer: observer, logger: logger}
}

// Can reports whether the principal may perform action on resource.
// resource may be nil (general action), a TypeRef (class-level check), a
// plain string (named permission target) or a Resource instance. Unknown
// shapes degrade to deny; Can never fails.
func (e *Engine) Can(ctx context.Context, p *Principal, action string, resource any, ac Context) bool {
	allowed := e.evaluate(ctx, p, action, resource, ac)
	if e.observer != nil {
		e.observer.ObserveDecision(strings.ToLower(action), allowed)
	}
	return allowed
}

// Cannot is the logical negation of Can.
func (e *Engine) Cannot(ctx context.Context, p *Principal, action string, resource any, ac Context) bool {
	return !e.Can(ctx, p, action, resource, ac)
}

// Authorize fails with *Error when Can is false. High-risk actions and
// privileged resource types are always audited, allowed or not; denials are
// recorded before the error is returned.
func (e *Engine) Authorize(ctx context.Context, p *Principal, action string, resource any, ac Context) error {
	allowed := e.Can(ctx, p, action, resource, ac)
	resType, resID := describeResource(resource)
	if e.auditor != nil && (highRiskAction(action) || privilegedResource(resType)) {
		e.auditor.LogAuthorizationAttempt(ctx, action, resType, resID, allowed)
	}
	if allowed {
		return nil
	}
	denial := &Error{
		Action:   strings.ToLower(action),
		Resource: resType,
		Reason:   "insufficient permissions",
	}
	if e.auditor != nil {
		e.auditor.LogAuthorizationDenied(ctx, denial, resType, resID)
	}
	return denial
}

func (e *Engine) evaluate(ctx context.Context, p *Principal, action string, resource any, ac Context) bool {
	if p == nil {
		return false
	}
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" {
		return false
	}
	switch res := resource.(type) {
	case nil:
		// General action: any permission ending in ".<action>".
		return p.HasAnyPermissionFor(action)
	case TypeRef:
		return e.typeAllowed(p, action, string(res))
	case string:
		// Named target: direct permission only, no fallback.
		return p.HasPermission(strings.ToLower(res) + "." + action)
	case Resource:
		return e.instanceAllowed(ctx, p, action, res, ac)
	default:
		e.logger.Warn("authorization probe with unknown resource shape",
			slog.String("action", action), slog.String("type", fmt.Sprintf("%T", resource)))
		return false
	}
}

// typeAllowed runs the class-level layer: direct permission, manage
// permission, then the role-level fallback table.
func (e *Engine) typeAllowed(p *Principal, action, typeName string) bool {
	name := resourceName(typeName)
	if p.HasPermission(name + "." + action) {
		return true
	}
	if p.HasPermission(name + ".manage") {
		return true
	}
	return p.HighestRoleLevel() >= fallbackLevel(action)
}

func (e *Engine) instanceAllowed(ctx context.Context, p *Principal, action string, res Resource, ac Context) bool {
	if !e.typeAllowed(p, action, res.ResourceType()) {
		return false
	}
	if !ownershipOrOrgMatch(p, res) {
		return false
	}
	if !organizationConstraint(p, res) {
		return false
	}
	return e.rules.allow(ctx, p, action, res, ac)
}

// ownershipOrOrgMatch: true when the resource has no owner, when the
// principal owns it, or when an organization attribute matches the
// principal's organization.
func ownershipOrOrgMatch(p *Principal, res Resource) bool {
	owned, ok := res.(Ownable)
	if !ok {
		return true
	}
	if owned.OwnerID() == p.ID {
		return true
	}
	if scoped, ok := res.(OrganizationScoped); ok {
		if orgID, set := scoped.OrganizationID(); set && p.OrgID != nil && *p.OrgID == orgID {
			return true
		}
	}
	return false
}

// organizationConstraint: a resource scoped to an organization is only
// reachable by principals authorized for that organization.
func organizationConstraint(p *Principal, res Resource) bool {
	scoped, ok := res.(OrganizationScoped)
	if !ok {
		return true
	}
	orgID, set := scoped.OrganizationID()
	if !set {
		return true
	}
	return p.CanAccessOrganization(orgID)
}

// fallbackLevel maps an action to the minimum role level that may perform
// it on a type when no explicit permission exists.
func fallbackLevel(action string) int {
	switch action {
	case "read", "list", "view", "show", "index":
		return LevelViewer
	case "create", "new":
		return LevelAgent
	case "update", "edit":
		return LevelBroker
	case "destroy", "delete":
		return LevelManager
	default:
		return LevelDirector
	}
}

func highRiskAction(action string) bool {
	switch strings.ToLower(action) {
	case "destroy", "delete", "manage", "admin", "export":
		return true
	}
	return false
}

func privilegedResource(resourceType string) bool {
	switch resourceType {
	case "role", "roles", "permission", "permissions":
		return true
	}
	return false
}

// describeResource yields the singular type name for class and instance
// checks alike, so denial audit rows group under one resource type.
func describeResource(resource any) (resType, resID string) {
	switch res := resource.(type) {
	case nil:
		return "", ""
	case TypeRef:
		return strings.ToLower(strings.TrimSpace(string(res))), ""
	case string:
		return strings.ToLower(res), ""
	case Resource:
		return res.ResourceType(), res.ResourceID()
	default:
		return fmt.Sprintf("%T", resource), ""
	}
}

// resourceName derives the permission namespace from a type name:
// lower-cased and pluralized.
func resourceName(typeName string) string {
	name := strings.ToLower(strings.TrimSpace(typeName))
	return pluralize(name)
}

func pluralize(name string) string {
	switch {
	case name == "":
		return name
	case strings.HasSuffix(name, "s"), strings.HasSuffix(name, "x"),
		strings.HasSuffix(name, "ch"), strings.HasSuffix(name, "sh"):
		return name + "es"
	case strings.HasSuffix(name, "y") && !strings.HasSuffix(name, "ay") &&
		!strings.HasSuffix(name, "ey") && !strings.HasSuffix(name, "oy") &&
		!strings.HasSuffix(name, "uy"):
		return name[:len(name)-1] + "ies"
	default:
		return name + "s"
	}
}
