// Package session is the Session Store: it owns the signed-in identity and hands
// out an explicit Session handle to every feature that scopes queries by user.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zfogg/daredrop/pkg/credentials"
	clierrors "github.com/zfogg/daredrop/pkg/errors"
	"github.com/zfogg/daredrop/pkg/gateway"
	"github.com/zfogg/daredrop/pkg/logger"
)

// ErrNotAuthenticated is returned when no one is signed in
var ErrNotAuthenticated = errors.New("not signed in")

// refreshWindow is how close to expiry a restored token is refreshed
const refreshWindow = time.Minute

// Session identifies the signed-in user
type Session struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// Authenticator is the auth surface of the gateway
type Authenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*gateway.AuthSession, error)
	Refresh(ctx context.Context, refreshToken string) (*gateway.AuthSession, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Store holds the current credentials
type Store struct {
	auth Authenticator
	now  func() time.Time

	mu    sync.RWMutex
	creds *credentials.Credentials
}

// NewStore creates an empty store
func NewStore(auth Authenticator) *Store {
	return &Store{auth: auth, now: time.Now}
}

// SignIn authenticates and persists the session
func (s *Store) SignIn(ctx context.Context, email, password string) (Session, error) {
	grant, err := s.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	creds := s.fromGrant(grant)
	if err := credentials.Save(creds); err != nil {
		return Session{}, fmt.Errorf("failed to save credentials: %w", err)
	}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()

	logger.Info("Signed in", "user_id", creds.UserID)
	return sessionOf(creds), nil
}

// Restore loads persisted credentials, refreshing them when close to expiry
func (s *Store) Restore(ctx context.Context) (Session, error) {
	creds, err := credentials.Load()
	if err != nil {
		return Session{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds == nil || creds.AccessToken == "" {
		return Session{}, ErrNotAuthenticated
	}

	if creds.ExpiresWithin(refreshWindow) {
		if creds.RefreshToken == "" {
			return Session{}, s.expired(nil)
		}
		grant, err := s.auth.Refresh(ctx, creds.RefreshToken)
		if err != nil {
			logger.Error("Session refresh failed", "error", err)
			if creds.IsExpired() {
				return Session{}, s.expired(err)
			}
		} else {
			creds = s.fromGrant(grant)
			if err := credentials.Save(creds); err != nil {
				logger.Error("Failed to save refreshed credentials", "error", err)
			}
		}
	}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	return sessionOf(creds), nil
}

// SignOut revokes the session remotely and forgets it locally. A failed
// remote revoke is logged; the local session is dropped regardless.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	creds := s.creds
	s.creds = nil
	s.mu.Unlock()

	if creds == nil {
		loaded, err := credentials.Load()
		if err != nil {
			return err
		}
		creds = loaded
	}
	if creds == nil {
		return ErrNotAuthenticated
	}

	if err := s.auth.SignOut(ctx, creds.AccessToken); err != nil {
		logger.Error("Remote sign out failed", "error", err)
	}
	return credentials.Delete()
}

// Current returns the signed-in session
func (s *Store) Current() (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return Session{}, ErrNotAuthenticated
	}
	return sessionOf(s.creds), nil
}

// AccessToken returns the bearer token, or "" when signed out
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return ""
	}
	return s.creds.AccessToken
}

func (s *Store) expired(cause error) error {
	_ = credentials.Delete()
	err := clierrors.SessionExpiredError()
	err.Cause = fmt.Errorf("%w: session expired: %v", ErrNotAuthenticated, cause)
	return err
}

func (s *Store) fromGrant(grant *gateway.AuthSession) *credentials.Credentials {
	creds := &credentials.Credentials{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		UserID:       grant.User.ID,
		Email:        grant.User.Email,
	}
	switch {
	case grant.ExpiresAt > 0:
		creds.ExpiresAt = time.Unix(grant.ExpiresAt, 0)
	case grant.ExpiresIn > 0:
		creds.ExpiresAt = s.now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	}

	// The token is the authority for identity and expiry when the grant omits them
	if claims, err := ParseClaims(grant.AccessToken); err == nil {
		if creds.UserID == "" {
			creds.UserID = claims.UserID
		}
		if creds.Email == "" {
			creds.Email = claims.Email
		}
		if creds.ExpiresAt.IsZero() {
			creds.ExpiresAt = claims.ExpiresAt
		}
	}
	return creds
}

func sessionOf(c *credentials.Credentials) Session {
	return Session{UserID: c.UserID, Email: c.Email, ExpiresAt: c.ExpiresAt}
}

// ParseClaims reads sub, email and exp from an access token without verifying
// its signature; the gateway verifies it on every request.
func ParseClaims(token string) (Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Session{}, fmt.Errorf("failed to parse access token: %w", err)
	}

	var out Session
	out.UserID, _ = claims.GetSubject()
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
