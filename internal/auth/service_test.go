package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/brokerdesk/brokerdesk/internal/audit"
	"github.com/brokerdesk/brokerdesk/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	creds    map[string]*Credential
	touched  []int64
	touchErr error
}

func (m *memoryRepo) FindByEmail(ctx context.Context, email string) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cred, nil
}

func (m *memoryRepo) TouchSignIn(ctx context.Context, principalID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, principalID)
	return m.touchErr
}

type captureStore struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (c *captureStore) Append(ctx context.Context, entry audit.Entry) (uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	return uuid.New(), nil
}

func (c *captureStore) all() []audit.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audit.Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *captureStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	orgID := int64(7)
	repo := &memoryRepo{creds: map[string]*Credential{
		"ana@agency.example": {ID: 11, Email: "ana@agency.example", PasswordHash: string(hash), OrgID: &orgID, IsActive: true},
		"gone@agency.example": {ID: 12, Email: "gone@agency.example", PasswordHash: string(hash), IsActive: false},
	}}
	store := &captureStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := audit.NewRecorder(store, logger, nil)
	sessions := NewSessionStore(client, time.Hour)
	svc := NewService(repo, sessions, recorder, logger)
	return svc, repo, store, mr
}

func TestSignInIssuesSessionAndAudits(t *testing.T) {
	svc, repo, store, _ := newTestService(t)

	sess, err := svc.SignIn(context.Background(), "ana@agency.example", "correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, int64(11), sess.PrincipalID)
	require.NotNil(t, sess.OrgID)
	assert.Equal(t, int64(7), *sess.OrgID)
	assert.Equal(t, []int64{11}, repo.touched)

	entries := store.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "sign_in", entries[0].Action)
	assert.Equal(t, audit.CategoryAuthentication, entries[0].Category)
	assert.NotContains(t, entries[0].Details, "password")
}

func TestSignInWrongPassword(t *testing.T) {
	svc, _, store, _ := newTestService(t)

	_, err := svc.SignIn(context.Background(), "ana@agency.example", "wrong password")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	entries := store.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "sign_in_failed", entries[0].Action)
	assert.Equal(t, audit.CategoryAuthentication, entries[0].Category)
}

func TestSignInInactiveAccount(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.SignIn(context.Background(), "gone@agency.example", "correct horse")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestSignInUnknownEmailSameError(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.SignIn(context.Background(), "nobody@agency.example", "correct horse")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestSignOutRevokesToken(t *testing.T) {
	svc, _, store, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.SignIn(ctx, "ana@agency.example", "correct horse")
	require.NoError(t, err)
	require.NoError(t, svc.SignOut(ctx, sess.Token))

	_, err = svc.sessions.Lookup(ctx, sess.Token)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)

	entries := store.all()
	require.Len(t, entries, 2)
	assert.Equal(t, "sign_out", entries[1].Action)
}

func TestSignOutUnknownToken(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	err := svc.SignOut(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestResolveActor(t *testing.T) {
	svc, _, _, mr := newTestService(t)
	ctx := context.Background()

	sess, err := svc.SignIn(ctx, "ana@agency.example", "correct horse")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/roles", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	actor := svc.ResolveActor(req)
	require.NotNil(t, actor)
	assert.Equal(t, int64(11), actor.ID)
	assert.Equal(t, "ana@agency.example", actor.Email)

	// Expired sessions stop resolving.
	mr.FastForward(2 * time.Hour)
	assert.Nil(t, svc.ResolveActor(req))

	bare := httptest.NewRequest("GET", "/roles", nil)
	assert.Nil(t, svc.ResolveActor(bare))

	malformed := httptest.NewRequest("GET", "/roles", nil)
	malformed.Header.Set("Authorization", "Token abc")
	assert.Nil(t, svc.ResolveActor(malformed))
}
