package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brokerdesk/brokerdesk/internal/shared"
)

const sessionKeyPrefix = "brokerdesk:session:"

// SessionStore keeps bearer sessions in redis, expiring with the token TTL.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// TTL reports the configured session lifetime.
func (s *SessionStore) TTL() time.Duration { return s.ttl }

// Issue mints a fresh token for the credential and stores the session.
func (s *SessionStore) Issue(ctx context.Context, cred *Credential) (Session, error) {
	token, err := newToken()
	if err != nil {
		return Session{}, fmt.Errorf("issue session: %w", err)
	}
	now := time.Now().UTC()
	sess := Session{
		Token:       token,
		PrincipalID: cred.ID,
		Email:       cred.Email,
		OrgID:       cred.OrgID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return Session{}, fmt.Errorf("issue session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+token, payload, s.ttl).Err(); err != nil {
		return Session{}, fmt.Errorf("issue session: %w", err)
	}
	return sess, nil
}

// Lookup resolves a token to its session, shared.ErrInvalidToken when the
// token is unknown or expired.
func (s *SessionStore) Lookup(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, shared.ErrInvalidToken
	}
	payload, err := s.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if err == redis.Nil {
		return Session{}, shared.ErrInvalidToken
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return Session{}, shared.ErrInvalidToken
	}
	return sess, nil
}

// Revoke deletes a session so the token stops resolving immediately.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, sessionKeyPrefix+token).Err()
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
