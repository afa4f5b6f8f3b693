package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerdesk/brokerdesk/internal/audit"
)

type trailStub struct {
	entries []audit.Entry
}

func (s *trailStub) Append(ctx context.Context, entry audit.Entry) (uuid.UUID, error) {
	s.entries = append(s.entries, entry)
	return uuid.New(), nil
}

func newAlertJob(store *trailStub) *SecurityAlertJob {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := audit.NewRecorder(store, logger, nil)
	return NewSecurityAlertJob(recorder, logger, nil)
}

func TestSecurityAlertJobWritesTrailEntry(t *testing.T) {
	store := &trailStub{}
	job := newAlertJob(store)

	orgID := int64(4)
	task, err := NewSecurityAlertTask(SecurityAlertPayload{
		Kind:     "security_error",
		Message:  "access denied: cannot destroy principal",
		Severity: "error",
		OrgID:    &orgID,
	})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	assert.Equal(t, "security_alert", entry.Action)
	assert.Equal(t, audit.CategorySecurity, entry.Category)
	assert.Equal(t, audit.SeverityError, entry.Severity)
	require.NotNil(t, entry.OrgID)
	assert.Equal(t, orgID, *entry.OrgID)
}

func TestSecurityAlertJobUnknownSeverityDefaultsToError(t *testing.T) {
	store := &trailStub{}
	job := newAlertJob(store)

	task, err := NewSecurityAlertTask(SecurityAlertPayload{Kind: "odd", Severity: "fatal"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, store.entries, 1)
	assert.Equal(t, audit.SeverityError, store.entries[0].Severity)
}

func TestSecurityAlertJobMalformedPayloadSkipsRetry(t *testing.T) {
	store := &trailStub{}
	job := newAlertJob(store)

	task := asynq.NewTask(TaskTypeSecurityAlert, []byte("{not json"))
	err := job.Handle(context.Background(), task)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.Empty(t, store.entries)
}
