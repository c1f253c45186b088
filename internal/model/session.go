package model

import (
	"time"
)

const TokenTypeBearer = "bearer"

// Session is the credential set returned by the backend after sign in.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

func (s *Session) Expiry() time.Time {
	if s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.ExpiresAt, 0)
}

// IsExpired reports whether the access token expires within leeway.
func (s *Session) IsExpired(leeway time.Duration) bool {
	exp := s.Expiry()
	if exp.IsZero() {
		return false
	}
	return time.Now().Add(leeway).After(exp)
}

func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}
