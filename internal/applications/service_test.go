package applications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerdesk/brokerdesk/internal/audit"
	"github.com/brokerdesk/brokerdesk/internal/authz"
	"github.com/brokerdesk/brokerdesk/internal/orgs"
	"github.com/brokerdesk/brokerdesk/internal/shared"
)

type fakeRepo struct {
	apps       map[uuid.UUID]Application
	seq        int64
	lastFilter ListFilter
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{apps: make(map[uuid.UUID]Application)}
}

func (f *fakeRepo) Create(ctx context.Context, app Application) (Application, error) {
	f.seq++
	app.Number = fmt.Sprintf("APP-%d-%06d", app.CreatedAt.Year(), f.seq)
	f.apps[app.ID] = app
	return app, nil
}

func (f *fakeRepo) Get(ctx context.Context, id uuid.UUID) (Application, error) {
	app, ok := f.apps[id]
	if !ok {
		return Application{}, shared.ErrNotFound
	}
	return app, nil
}

func (f *fakeRepo) Update(ctx context.Context, app Application) error {
	if _, ok := f.apps[app.ID]; !ok {
		return shared.ErrNotFound
	}
	f.apps[app.ID] = app
	return nil
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, at time.Time) error {
	app, ok := f.apps[id]
	if !ok {
		return shared.ErrNotFound
	}
	app.Status = status
	f.apps[id] = app
	return nil
}

func (f *fakeRepo) List(ctx context.Context, filter ListFilter) ([]Application, error) {
	f.lastFilter = filter
	var out []Application
	for _, app := range f.apps {
		out = append(out, app)
	}
	return out, nil
}

type fakeOrgs struct {
	orgs map[int64]orgs.Organization
}

func (f *fakeOrgs) Find(ctx context.Context, id int64) (orgs.Organization, error) {
	org, ok := f.orgs[id]
	if !ok {
		return orgs.Organization{}, shared.ErrNotFound
	}
	return org, nil
}

type recordingStore struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (s *recordingStore) Append(ctx context.Context, entry audit.Entry) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return uuid.New(), nil
}

func (s *recordingStore) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.entries {
		out = append(out, e.Action)
	}
	return out
}

var (
	agencyOrg  = int64(1)
	carrierOrg = int64(2)
	otherOrg   = int64(3)
)

func principalWith(id int64, orgID *int64, level int, perms ...string) *authz.Principal {
	role := authz.Role{ID: id, Name: "tester", Level: level}
	for i, name := range perms {
		role.Permissions = append(role.Permissions, authz.Permission{ID: int64(i + 1), Name: name, IsActive: true})
	}
	return authz.NewPrincipal(id, orgID, "tester@test", []authz.Grant{{Role: role, GrantedAt: time.Now()}})
}

func newAppService(t *testing.T) (*Service, *fakeRepo, *recordingStore) {
	t.Helper()
	repo := newFakeRepo()
	directory := &fakeOrgs{orgs: map[int64]orgs.Organization{
		agencyOrg:  {ID: agencyOrg, Name: "Summit Agency", Kind: orgs.KindAgency, IsActive: true},
		carrierOrg: {ID: carrierOrg, Name: "Granite Mutual", Kind: orgs.KindCarrier, IsActive: true},
		otherOrg:   {ID: otherOrg, Name: "Rival Agency", Kind: orgs.KindAgency, IsActive: true},
	}}
	store := &recordingStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := audit.NewRecorder(store, logger, nil)
	engine := authz.NewEngine(authz.DefaultRules(), recorder, nil, logger)
	return NewService(repo, directory, engine, recorder), repo, store
}

func mustCreate(t *testing.T, svc *Service, broker *authz.Principal) Application {
	t.Helper()
	app, err := svc.Create(context.Background(), broker, Draft{
		Kind:            KindFire,
		ApplicantName:   "Hollis Manufacturing",
		PropertyAddress: "12 Mill Rd",
		CoverageAmount:  2_500_000,
		Premium:         18_400,
		CarrierOrgIDs:   []int64{carrierOrg},
	})
	require.NoError(t, err)
	return app
}

func TestCreateDraft(t *testing.T) {
	svc, repo, store := newAppService(t)
	broker := principalWith(10, &agencyOrg, authz.LevelBroker)

	app := mustCreate(t, svc, broker)
	assert.Equal(t, StatusDraft, app.Status)
	assert.Equal(t, int64(10), app.BrokerID)
	assert.Equal(t, agencyOrg, app.AgencyOrgID)
	assert.NotEmpty(t, app.Number)
	assert.Len(t, repo.apps, 1)
	assert.Contains(t, store.actions(), "create")
}

func TestCreateDeniedBelowAgentLevel(t *testing.T) {
	svc, _, _ := newAppService(t)
	viewer := principalWith(11, &agencyOrg, authz.LevelViewer)

	_, err := svc.Create(context.Background(), viewer, Draft{Kind: KindGeneral, ApplicantName: "X"})
	var denial *authz.Error
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, "create", denial.Action)
}

func TestCreateRejectsUnknownKind(t *testing.T) {
	svc, _, _ := newAppService(t)
	broker := principalWith(10, &agencyOrg, authz.LevelBroker)

	_, err := svc.Create(context.Background(), broker, Draft{Kind: Kind("marine")})
	assert.Error(t, err)
}

func TestUpdateByOwnerRecordsDiff(t *testing.T) {
	svc, _, store := newAppService(t)
	broker := principalWith(10, &agencyOrg, authz.LevelBroker)
	app := mustCreate(t, svc, broker)

	updated, err := svc.Update(context.Background(), broker, app.ID, Draft{
		Kind:            app.Kind,
		ApplicantName:   "Hollis Manufacturing",
		PropertyAddress: "12 Mill Rd",
		CoverageAmount:  3_000_000,
		Premium:         21_000,
		CarrierOrgIDs:   app.CarrierOrgIDs,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3_000_000), updated.CoverageAmount)
	assert.Contains(t, store.actions(), "update")
}

func TestUpdateDeniedAcrossOrganizations(t *testing.T) {
	svc, _, _ := newAppService(t)
	broker := principalWith(10, &agencyOrg, authz.LevelBroker)
	app := mustCreate(t, svc, broker)

	rival := principalWith(40, &otherOrg, authz.LevelManager)
	_, err := svc.Update(context.Background(), rival, app.ID, Draft{Kind: app.Kind, ApplicantName: "X"})
	var denial *authz.Error
	require.ErrorAs(t, err, &denial)
}

func TestSubmitThenApprove(t *testing.T) {
	svc, _, store := newAppService(t)
	broker := principalWith(10, &agencyOrg, authz.LevelBroker)
	app := mustCreate(t, svc, broker)
	ctx := context.Background()

	submitted, err := svc.Submit(ctx, broker, app.ID, "ready for review")
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, submitted.Status)

	director := principalWith(20, &agencyOrg, authz.LevelDirector)
	approved, err := svc.Approve(ctx, director, app.ID, "terms acceptable")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)

	actions := store.actions()
	assert.Contains(t, actions, "submit")
	assert.Contains(t, actions, "approve")
	assert.Contains(t, actions, "status_change")
}

func TestApproveDeniedForBrokerLevel(t *testing.T) {
	svc, _, _ := newAppService(t)
	broker := principalWith(10, &agencyOrg, authz.LevelBroker)
	app := mustCreate(t, svc, broker)
	ctx := context.Background()

	_, err := svc.Submit(ctx, broker, app.ID, "")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, broker, app.ID, "")
	var denial *authz.Error
	require.ErrorAs(t, err, &denial)
}

func TestApproveRequiresSubmittedState(t *testing.T) {
	svc, _, _ := newAppService(t)
	broker := principalWith(10, &agencyOrg, authz.LevelBroker)
	app := mustCreate(t, svc, broker)

	director := principalWith(20, &agencyOrg, authz.LevelDirector)
	_, err := svc.Approve(context.Background(), director, app.ID, "")
	assert.Error(t, err)
	var denial *authz.Error
	assert.False(t, errors.As(err, &denial))
}

func TestUpdateClosedApplication(t *testing.T) {
	svc, _, _ := newAppService(t)
	broker := principalWith(10, &agencyOrg, authz.LevelBroker)
	app := mustCreate(t, svc, broker)
	ctx := context.Background()

	_, err := svc.Submit(ctx, broker, app.ID, "")
	require.NoError(t, err)
	director := principalWith(20, &agencyOrg, authz.LevelDirector)
	_, err = svc.Reject(ctx, director, app.ID, "underwriting declined")
	require.NoError(t, err)

	_, err = svc.Update(ctx, broker, app.ID, Draft{Kind: app.Kind, ApplicantName: "X"})
	assert.Error(t, err)
}

func TestListScopedByTenantKind(t *testing.T) {
	svc, repo, _ := newAppService(t)
	ctx := context.Background()

	agencyActor := principalWith(10, &agencyOrg, authz.LevelBroker)
	_, err := svc.List(ctx, agencyActor, ListFilter{})
	require.NoError(t, err)
	require.NotNil(t, repo.lastFilter.AgencyOrgID)
	assert.Equal(t, agencyOrg, *repo.lastFilter.AgencyOrgID)
	assert.Nil(t, repo.lastFilter.CarrierOrgID)

	carrierActor := principalWith(30, &carrierOrg, authz.LevelAgent)
	_, err = svc.List(ctx, carrierActor, ListFilter{})
	require.NoError(t, err)
	require.NotNil(t, repo.lastFilter.CarrierOrgID)
	assert.Equal(t, carrierOrg, *repo.lastFilter.CarrierOrgID)
	assert.Nil(t, repo.lastFilter.AgencyOrgID)
}
