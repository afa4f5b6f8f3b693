package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/brokerdesk/brokerdesk/internal/audit"
	"github.com/brokerdesk/brokerdesk/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	sessions *SessionStore
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, sessions *SessionStore, recorder *audit.Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, sessions: sessions, recorder: recorder, logger: logger}
}

// SignIn validates the credentials and issues a session token. Every
// attempt lands in the audit trail under the authentication category.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	cred, err := s.authenticate(ctx, email, password)
	if err != nil {
		s.recorder.LogCustomAction(ctx, "sign_in_failed", audit.CategoryAuthentication,
			"session", "", map[string]any{"email": email})
		return Session{}, err
	}
	sess, err := s.sessions.Issue(ctx, cred)
	if err != nil {
		return Session{}, err
	}
	if err := s.repo.TouchSignIn(ctx, cred.ID); err != nil {
		s.logger.Warn("touch sign-in", slog.Any("error", err))
	}
	s.recorder.LogCustomAction(ctx, "sign_in", audit.CategoryAuthentication,
		"session", sess.Token[:8], map[string]any{"email": cred.Email})
	return sess, nil
}

// SignOut revokes the session behind the token.
func (s *Service) SignOut(ctx context.Context, token string) error {
	sess, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return err
	}
	s.recorder.LogCustomAction(ctx, "sign_out", audit.CategoryAuthentication,
		"session", sess.Token[:8], map[string]any{"email": sess.Email})
	return nil
}

// ResolveActor identifies the bearer of the request's Authorization header,
// nil when anonymous or when the token no longer resolves.
func (s *Service) ResolveActor(r *http.Request) *shared.Actor {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	sess, err := s.sessions.Lookup(r.Context(), token)
	if err != nil {
		return nil
	}
	return &shared.Actor{ID: sess.PrincipalID, OrgID: sess.OrgID, Email: sess.Email}
}

func (s *Service) authenticate(ctx context.Context, email, password string) (*Credential, error) {
	cred, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !cred.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return cred, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
