package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"warranty/internal/models"
	"warranty/internal/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionRevoked  = errors.New("session expired/revoked")
)

// SessionManager ties every issued token to a session row keyed by jti, so
// logout can revoke a token before it expires.
type SessionManager struct {
	issuer   *Issuer
	sessions store.SessionStore
}

func NewSessionManager(issuer *Issuer, sessions store.SessionStore) *SessionManager {
	return &SessionManager{issuer: issuer, sessions: sessions}
}

func (m *SessionManager) Issue(ctx context.Context, u *models.User) (string, time.Time, error) {
	jti := uuid.NewString()
	token, exp, err := m.issuer.Sign(u.ID, u.Role, jti)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := m.sessions.Create(ctx, &models.Session{JTI: jti, UserID: u.ID, ExpiresAt: exp}); err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

func (m *SessionManager) Validate(ctx context.Context, token string) (Claims, error) {
	claims, err := m.issuer.Verify(token)
	if err != nil {
		return Claims{}, err
	}
	sess, err := m.sessions.Find(ctx, claims.JWTID)
	if errors.Is(err, store.ErrNotFound) {
		return Claims{}, ErrSessionNotFound
	}
	if err != nil {
		return Claims{}, err
	}
	if sess.RevokedAt != nil || m.issuer.now().After(sess.ExpiresAt) {
		return Claims{}, ErrSessionRevoked
	}
	return claims, nil
}

func (m *SessionManager) Revoke(ctx context.Context, jti string) error {
	err := m.sessions.Revoke(ctx, jti, m.issuer.now())
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}
