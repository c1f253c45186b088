package rest

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/templui/habits/internal/backend"
	"github.com/templui/habits/internal/model"
	"golang.org/x/oauth2"
)

// newTokenSource caches the session's access token and renews it through
// the refresh grant once it expires. Must be called with c.mu held.
func (c *Client) newTokenSource(session *model.Session) oauth2.TokenSource {
	var initial *oauth2.Token
	if session != nil {
		initial = sessionToken(session)
	}
	return oauth2.ReuseTokenSourceWithExpiry(initial, &refresher{client: c}, refreshLeeway)
}

// refresher exchanges the stored refresh token for a new session.
type refresher struct {
	client *Client
}

func (r *refresher) Token() (*oauth2.Token, error) {
	c := r.client

	c.mu.Lock()
	current := c.session
	c.mu.Unlock()
	if current == nil || current.RefreshToken == "" {
		return nil, backend.ErrNoSession
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var session model.Session
	err := c.do(ctx, http.MethodPost, "/auth/v1/token",
		url.Values{"grant_type": {"refresh_token"}},
		map[string]string{"refresh_token": current.RefreshToken},
		nil, &session)
	if err != nil {
		return nil, err
	}

	c.setSession(&session, backend.EventTokenRefreshed)
	return sessionToken(&session), nil
}

func sessionToken(s *model.Session) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       sessionExpiry(s),
	}
}

// sessionExpiry prefers the session's expires_at and falls back to the
// token's own exp claim.
func sessionExpiry(s *model.Session) time.Time {
	if exp := s.Expiry(); !exp.IsZero() {
		return exp
	}

	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims)
	if err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
