package gateway

import (
	"context"
	"fmt"
	"strings"

	clierrors "github.com/zfogg/daredrop/pkg/errors"
	"github.com/zfogg/daredrop/pkg/logger"
)

const authPath = "/auth/v1"

// AuthUser is the user object returned with a token
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthSession is the token grant returned by the auth endpoints
type AuthSession struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         AuthUser `json:"user"`
}

// SignInWithPassword exchanges email and password for a session
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, clierrors.ValidationError("email", "is required")
	}
	if password == "" {
		return nil, clierrors.ValidationError("password", "is required")
	}

	logger.Debug("Signing in", "email", email)

	var session AuthSession
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "password").
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&session).
		Post(authPath + "/token")
	if err := CheckResponse(resp, err); err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("failed to sign in: empty access token")
	}
	return &session, nil
}

// Refresh exchanges a refresh token for a new session
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*AuthSession, error) {
	if refreshToken == "" {
		return nil, clierrors.ValidationError("refresh_token", "is required")
	}

	logger.Debug("Refreshing session")

	var session AuthSession
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "refresh_token").
		SetBody(map[string]string{"refresh_token": refreshToken}).
		SetResult(&session).
		Post(authPath + "/token")
	if err := CheckResponse(resp, err); err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	return &session, nil
}

// SignOut revokes the session that owns accessToken
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	logger.Debug("Signing out")

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		Post(authPath + "/logout")
	if err := CheckResponse(resp, err); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}
