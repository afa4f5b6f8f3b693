package authz

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func levelRole(level int) Role {
	return Role{ID: int64(level), Name: "level_" + strconv.Itoa(level), Level: level}
}

func principalWithLevel(id int64, orgID *int64, level int, perms ...string) *Principal {
	role := levelRole(level)
	for i, name := range perms {
		role.Permissions = append(role.Permissions, Permission{ID: int64(i + 1), Name: name, IsActive: true})
	}
	return NewPrincipal(id, orgID, "p@test", []Grant{{Role: role, GrantedAt: time.Now()}})
}

func systemPrincipal(id int64) *Principal {
	role := Role{ID: 99, Name: SystemRoleName, Level: LevelDirector, IsSystem: true}
	return NewPrincipal(id, nil, "root@test", []Grant{{Role: role, GrantedAt: time.Now()}})
}

type policyResource struct {
	id      string
	kind    string
	ownerID *int64
	orgID   *int64
	collabs []int64
}

func (r policyResource) ResourceType() string { return r.kind }
func (r policyResource) ResourceID() string   { return r.id }

type ownedResource struct{ policyResource }

func (r ownedResource) OwnerID() int64 { return *r.ownerID }

type orgResource struct{ policyResource }

func (r orgResource) OrganizationID() (int64, bool) {
	if r.orgID == nil {
		return 0, false
	}
	return *r.orgID, true
}

type ownedOrgResource struct{ policyResource }

func (r ownedOrgResource) OwnerID() int64 { return *r.ownerID }
func (r ownedOrgResource) OrganizationID() (int64, bool) {
	if r.orgID == nil {
		return 0, false
	}
	return *r.orgID, true
}

type collabResource struct{ ownedOrgResource }

func (r collabResource) CollaboratorOrgIDs() []int64 { return r.collabs }

type recordedAttempt struct {
	action, resourceType, resourceID string
	allowed                          bool
	denied                           bool
}

type stubAuditor struct {
	mu       sync.Mutex
	attempts []recordedAttempt
}

func (a *stubAuditor) LogAuthorizationAttempt(ctx context.Context, action, resourceType, resourceID string, allowed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts = append(a.attempts, recordedAttempt{action: action, resourceType: resourceType, resourceID: resourceID, allowed: allowed})
}

func (a *stubAuditor) LogAuthorizationDenied(ctx context.Context, denial *Error, resourceType, resourceID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts = append(a.attempts, recordedAttempt{action: denial.Action, resourceType: resourceType, resourceID: resourceID, denied: true})
}

func newTestEngine(auditor AttemptAuditor) *Engine {
	return NewEngine(DefaultRules(), auditor, nil, slog.Default())
}

func TestNilPrincipalAlwaysDenied(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()

	assert.False(t, e.Can(ctx, nil, "read", TypeRef("application"), Context{}))
	assert.False(t, e.Can(ctx, nil, "read", nil, Context{}))
	assert.Error(t, e.Authorize(ctx, nil, "read", TypeRef("application"), Context{}))
}

func TestTypeLevelDirectPermission(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()

	p := principalWithLevel(1, nil, 0, "applications.read")
	assert.True(t, e.Can(ctx, p, "read", TypeRef("application"), Context{}))
	assert.False(t, e.Can(ctx, p, "create", TypeRef("application"), Context{}))
}

func TestTypeLevelManagePermission(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()

	p := principalWithLevel(1, nil, 0, "applications.manage")
	for _, action := range []string{"read", "create", "update", "destroy"} {
		assert.True(t, e.Can(ctx, p, action, TypeRef("application"), Context{}), action)
	}
}

func TestRoleLevelFallbackTable(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()

	thresholds := map[string]int{
		"read":    10,
		"list":    10,
		"create":  40,
		"update":  50,
		"destroy": 70,
		"archive": 90,
	}
	for _, level := range []int{10, 40, 50, 70, 90} {
		p := principalWithLevel(1, nil, level)
		for action, minLevel := range thresholds {
			want := level >= minLevel
			got := e.Can(ctx, p, action, TypeRef("policy"), Context{})
			assert.Equalf(t, want, got, "level %d action %s", level, action)
		}
	}
}

func TestMidLevelFallbackScenario(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()

	p := principalWithLevel(1, nil, 45)
	assert.True(t, e.Can(ctx, p, "create", TypeRef("application"), Context{}))
	assert.False(t, e.Can(ctx, p, "destroy", TypeRef("application"), Context{}))
}

func TestOwnershipDoesNotBypassTypeLayer(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()
	ownerID := int64(5)
	res := ownedResource{policyResource{id: "r1", kind: "note", ownerID: &ownerID}}

	// Owner below the update threshold: type layer denies first.
	low := principalWithLevel(5, nil, 40)
	assert.False(t, e.Can(ctx, low, "update", res, Context{}))

	// Owner at the threshold passes both layers.
	ok := principalWithLevel(5, nil, 50)
	assert.True(t, e.Can(ctx, ok, "update", res, Context{}))
}

func TestNonOwnerDeniedWithoutOrgMatch(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()
	ownerID := int64(5)
	res := ownedResource{policyResource{id: "r1", kind: "note", ownerID: &ownerID}}

	stranger := principalWithLevel(6, nil, 90)
	assert.False(t, e.Can(ctx, stranger, "update", res, Context{}))
}

func TestCrossTenantIsolation(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()
	orgA, orgB := int64(1), int64(2)
	res := orgResource{policyResource{id: "r2", kind: "policy", orgID: &orgA}}

	// Full permissions in its own org cannot cross the tenant boundary.
	p := principalWithLevel(9, &orgB, 90, "policies.manage")
	for _, action := range []string{"read", "create", "update", "destroy"} {
		assert.Falsef(t, e.Can(ctx, p, action, res, Context{}), action)
	}

	// Same organization passes.
	local := principalWithLevel(10, &orgA, 90)
	assert.True(t, e.Can(ctx, local, "read", res, Context{}))

	// System-level principals are exempt from the organization match.
	assert.True(t, e.Can(ctx, systemPrincipal(11), "read", res, Context{}))
}

func TestNamedResourceNoFallback(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()

	holder := principalWithLevel(1, nil, 0, "reports.export")
	assert.True(t, e.Can(ctx, holder, "export", "reports", Context{}))

	// High level without the named permission: no fallback for names.
	director := principalWithLevel(2, nil, 90)
	assert.False(t, e.Can(ctx, director, "export", "reports", Context{}))
}

func TestGeneralActionMatchesAnyPermissionSuffix(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()

	p := principalWithLevel(1, nil, 0, "applications.approve")
	assert.True(t, e.Can(ctx, p, "approve", nil, Context{}))
	assert.False(t, e.Can(ctx, p, "reject", nil, Context{}))
}

func TestUnknownResourceShapeDegradesToDeny(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()
	p := principalWithLevel(1, nil, 90)

	assert.False(t, e.Can(ctx, p, "read", 42, Context{}))
	assert.False(t, e.Can(ctx, p, "", TypeRef("application"), Context{}))
}

func TestCanIsIdempotent(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()
	orgA := int64(1)
	p := principalWithLevel(1, &orgA, 45, "applications.read")
	res := orgResource{policyResource{id: "r3", kind: "application", orgID: &orgA}}

	first := e.Can(ctx, p, "read", res, Context{})
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Can(ctx, p, "read", res, Context{}))
	}
}

func TestExpiredGrantContributesNothing(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()

	expired := time.Now().Add(-time.Hour)
	role := levelRole(90)
	role.Permissions = []Permission{{ID: 1, Name: "applications.manage", IsActive: true}}
	p := NewPrincipal(1, nil, "p@test", []Grant{{Role: role, GrantedAt: time.Now().Add(-2 * time.Hour), ExpiresAt: &expired}})

	assert.False(t, e.Can(ctx, p, "read", TypeRef("application"), Context{}))
	assert.Equal(t, 0, p.HighestRoleLevel())
}

func TestInactivePermissionExcluded(t *testing.T) {
	role := levelRole(0)
	role.Permissions = []Permission{{ID: 1, Name: "applications.read", IsActive: false}}
	p := NewPrincipal(1, nil, "p@test", []Grant{{Role: role, GrantedAt: time.Now()}})

	assert.False(t, p.HasPermission("applications.read"))
}

func TestAuthorizeDenialLoggedBeforeErrorReturned(t *testing.T) {
	auditor := &stubAuditor{}
	e := newTestEngine(auditor)
	ctx := context.Background()
	orgA, orgB := int64(1), int64(2)

	res := orgResource{policyResource{id: "r4", kind: "application", orgID: &orgA}}
	p := principalWithLevel(2, &orgB, 90, "applications.manage")

	err := e.Authorize(ctx, p, "read", res, Context{})
	require.Error(t, err)

	var denial *Error
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, "read", denial.Action)
	assert.Equal(t, "application", denial.Resource)

	require.Len(t, auditor.attempts, 1)
	assert.True(t, auditor.attempts[0].denied)
	assert.Equal(t, "r4", auditor.attempts[0].resourceID)
}

func TestAuthorizeAlwaysLogsHighRiskActions(t *testing.T) {
	auditor := &stubAuditor{}
	e := newTestEngine(auditor)
	ctx := context.Background()

	p := principalWithLevel(1, nil, 90)
	require.NoError(t, e.Authorize(ctx, p, "destroy", TypeRef("quote"), Context{}))

	require.Len(t, auditor.attempts, 1)
	assert.True(t, auditor.attempts[0].allowed)
	assert.Equal(t, "destroy", auditor.attempts[0].action)
}

func TestAuthorizeLogsPrivilegedResourceReads(t *testing.T) {
	auditor := &stubAuditor{}
	e := newTestEngine(auditor)
	ctx := context.Background()

	p := principalWithLevel(1, nil, 10)
	require.NoError(t, e.Authorize(ctx, p, "read", TypeRef("role"), Context{}))
	require.Len(t, auditor.attempts, 1)
	assert.Equal(t, "role", auditor.attempts[0].resourceType)
}

func TestAuthorizeErrorMessageStaysGeneric(t *testing.T) {
	e := newTestEngine(nil)
	err := e.Authorize(context.Background(), principalWithLevel(1, nil, 0), "destroy", TypeRef("application"), Context{})
	require.Error(t, err)
	assert.Equal(t, "access denied: cannot destroy application", err.Error())
}

func TestDenialsNameTheSameResourceTypeForClassAndInstance(t *testing.T) {
	auditor := &stubAuditor{}
	e := newTestEngine(auditor)
	ctx := context.Background()
	p := principalWithLevel(1, nil, 0)

	classErr := e.Authorize(ctx, p, "destroy", TypeRef("application"), Context{})
	instErr := e.Authorize(ctx, p, "destroy", policyResource{id: "a1", kind: "application"}, Context{})

	var classDenial, instDenial *Error
	require.ErrorAs(t, classErr, &classDenial)
	require.ErrorAs(t, instErr, &instDenial)
	assert.Equal(t, "application", classDenial.Resource)
	assert.Equal(t, instDenial.Resource, classDenial.Resource)

	var denied []recordedAttempt
	for _, att := range auditor.attempts {
		if att.denied {
			denied = append(denied, att)
		}
	}
	require.Len(t, denied, 2)
	assert.Equal(t, denied[0].resourceType, denied[1].resourceType)
}

func TestPluralize(t *testing.T) {
	cases := map[string]string{
		"application": "applications",
		"policy":      "policies",
		"branch":      "branches",
		"address":     "addresses",
		"box":         "boxes",
		"day":         "days",
	}
	for in, want := range cases {
		assert.Equal(t, want, pluralize(in), in)
	}
}
