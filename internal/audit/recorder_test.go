package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerdesk/brokerdesk/internal/authz"
	"github.com/brokerdesk/brokerdesk/internal/shared"
)

type stubStore struct {
	mu        sync.Mutex
	entries   []Entry
	appendErr error
}

func (s *stubStore) Append(ctx context.Context, entry Entry) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return uuid.Nil, s.appendErr
	}
	s.entries = append(s.entries, entry)
	return uuid.New(), nil
}

type testEntity struct {
	id     string
	orgID  *int64
	fields map[string]any
}

func (e testEntity) ResourceType() string        { return "application" }
func (e testEntity) ResourceID() string          { return e.id }
func (e testEntity) AuditFields() map[string]any { return e.fields }
func (e testEntity) OrganizationID() (int64, bool) {
	if e.orgID == nil {
		return 0, false
	}
	return *e.orgID, true
}

func ambientCtx(actorID int64, orgID *int64) context.Context {
	info := shared.NewRequestInfo(&shared.Actor{ID: actorID, OrgID: orgID}, "192.0.2.1", "test-agent", "req-9", "applications", "update")
	return shared.Establish(context.Background(), info)
}

func TestRecordUpdateWritesOnlyChangedFields(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, slog.Default(), nil)

	before := testEntity{id: "a1", fields: map[string]any{"status": "draft", "premium": 1200, "updated_at": "old"}}
	after := testEntity{id: "a1", fields: map[string]any{"status": "submitted", "premium": 1200, "updated_at": "new"}}

	rec.RecordUpdate(ambientCtx(7, nil), before, after)

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	assert.Equal(t, "update", entry.Action)
	assert.Equal(t, CategoryDataModification, entry.Category)

	changes := entry.Details["changes"].(map[string]any)
	require.Len(t, changes, 1)
	assert.Equal(t, []any{"draft", "submitted"}, changes["status"])
}

func TestRecordUpdateNoopDiffWritesNothing(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, slog.Default(), nil)

	same := map[string]any{"status": "draft", "updated_at": "bumped"}
	rec.RecordUpdate(context.Background(),
		testEntity{id: "a1", fields: map[string]any{"status": "draft", "updated_at": "old"}},
		testEntity{id: "a1", fields: same})

	assert.Empty(t, store.entries)
}

func TestRecordUpdateSkipListedFieldProducesNoEntry(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, slog.Default(), nil)

	rec.RecordUpdate(context.Background(),
		testEntity{id: "a1", fields: map[string]any{"password_hash": "old"}},
		testEntity{id: "a1", fields: map[string]any{"password_hash": "new"}})

	assert.Empty(t, store.entries)
}

func TestRecordUpdateAllowListKeepsOnlyConfiguredFields(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, slog.Default(), map[string]TypeConfig{
		"application": {Only: []string{"status"}},
	})

	rec.RecordUpdate(context.Background(),
		testEntity{id: "a1", fields: map[string]any{"status": "draft", "premium": 100}},
		testEntity{id: "a1", fields: map[string]any{"status": "submitted", "premium": 200}})

	require.Len(t, store.entries, 1)
	changes := store.entries[0].Details["changes"].(map[string]any)
	require.Len(t, changes, 1)
	_, hasPremium := changes["premium"]
	assert.False(t, hasPremium)
}

func TestRecordUpdateRedactsChangedSensitiveFields(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, slog.Default(), nil)

	before := testEntity{id: "a1", fields: map[string]any{"ssn": "123-45-6789", "status": "draft"}}
	after := testEntity{id: "a1", fields: map[string]any{"ssn": "987-65-4321", "status": "submitted"}}

	rec.RecordUpdate(context.Background(), before, after)

	require.Len(t, store.entries, 1)
	changes := store.entries[0].Details["changes"].(map[string]any)
	require.Len(t, changes, 2)
	assert.Equal(t, RedactionMarker, changes["ssn"])
	assert.Equal(t, []any{"draft", "submitted"}, changes["status"])

	raw, err := json.Marshal(store.entries[0].Details)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "123-45-6789")
	assert.NotContains(t, string(raw), "987-65-4321")
}

func TestWriteResolvesActorFromAmbientContext(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, slog.Default(), nil)
	orgID := int64(4)

	rec.RecordCreate(ambientCtx(21, &orgID), testEntity{id: "a2", fields: map[string]any{"status": "draft"}})

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	require.NotNil(t, entry.PrincipalID)
	assert.Equal(t, int64(21), *entry.PrincipalID)
	require.NotNil(t, entry.OrgID)
	assert.Equal(t, orgID, *entry.OrgID)
	assert.Equal(t, "192.0.2.1", entry.IP)
	assert.Equal(t, "test-agent", entry.UserAgent)
}

func TestWriteWithoutAmbientContextRecordsSystemActor(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, slog.Default(), nil)

	rec.RecordDestroy(context.Background(), testEntity{id: "a3", fields: map[string]any{"status": "draft"}})

	require.Len(t, store.entries, 1)
	assert.Nil(t, store.entries[0].PrincipalID)
	assert.Equal(t, SeverityWarning, store.entries[0].Severity)
}

func TestWriteRedactsDetails(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, slog.Default(), nil)

	rec.LogCustomAction(context.Background(), "import", CategorySystemAccess, "application", "a4",
		map[string]any{"source": "upload", "api_key": "ak-55"})

	require.Len(t, store.entries, 1)
	assert.Equal(t, RedactionMarker, store.entries[0].Details["api_key"])
	assert.Equal(t, "upload", store.entries[0].Details["source"])
}

func TestAppendFailureIsSwallowed(t *testing.T) {
	store := &stubStore{appendErr: errors.New("sink down")}
	rec := NewRecorder(store, slog.Default(), nil)

	// Must not panic or propagate.
	rec.RecordCreate(context.Background(), testEntity{id: "a5", fields: map[string]any{"status": "draft"}})
	rec.LogListAccess(context.Background(), "application", 3, true)
}

func TestManualWorkflowOps(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, slog.Default(), nil)
	entity := testEntity{id: "a6", fields: map[string]any{}}

	rec.LogSubmission(context.Background(), entity, "ready for review")
	rec.LogApproval(context.Background(), entity, "")
	rec.LogRejection(context.Background(), entity, "missing schedule")
	rec.LogStatusChange(context.Background(), entity, "draft", "submitted")
	rec.LogAccess(context.Background(), "application", "a6", nil)

	require.Len(t, store.entries, 5)
	assert.Equal(t, "submit", store.entries[0].Action)
	assert.Equal(t, "approve", store.entries[1].Action)
	assert.Equal(t, "reject", store.entries[2].Action)
	assert.Equal(t, "status_change", store.entries[3].Action)
	assert.Equal(t, map[string]any{"from": "draft", "to": "submitted"}, store.entries[3].Details)
	assert.Equal(t, CategoryDataAccess, store.entries[4].Category)
}

func TestAuthorizationDenialLoggedWithAuthorizationCategory(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, slog.Default(), nil)

	denial := &authz.Error{Action: "read", Resource: "application", Reason: "insufficient permissions"}
	rec.LogAuthorizationDenied(context.Background(), denial, "application", "a7")

	require.Len(t, store.entries, 1)
	assert.Equal(t, CategoryAuthorization, store.entries[0].Category)
	assert.NotEqual(t, CategoryDataModification, store.entries[0].Category)
	assert.Equal(t, true, store.entries[0].Details["denied"])
}

func TestListAccessEntry(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, slog.Default(), nil)

	rec.LogListAccess(ambientCtx(3, nil), "application", 17, true)

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	assert.Equal(t, "list", entry.Action)
	assert.Equal(t, CategoryDataAccess, entry.Category)
	assert.Equal(t, 17, entry.Details["result_count"])
	assert.Equal(t, true, entry.Details["filters_applied"])
}
