// Package backend defines the boundary to the hosted service that owns
// authentication and storage.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/templui/habits/internal/model"
)

// Table names.
const (
	TableHabits    = "habits"
	TableHabitLogs = "habit_logs"
)

var (
	ErrNoSession = errors.New("no active session")
)

// AuthEvent is emitted whenever the signed-in identity changes.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthListener receives auth events. session is nil after sign out.
type AuthListener func(event AuthEvent, session *model.Session)

type Auth interface {
	// Session returns the current session, or nil when nobody is signed in.
	Session(ctx context.Context) (*model.Session, error)
	SignUp(ctx context.Context, email, password string) (*model.Session, error)
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	SignOut(ctx context.Context) error
	// OnAuthStateChange registers fn for future events and returns a function
	// that removes it.
	OnAuthStateChange(fn AuthListener) (unsubscribe func())
}

type Data interface {
	// Select decodes matching rows into dest, which must point to a slice.
	Select(ctx context.Context, q Query, dest any) error
	// Insert creates rows and, when dest is non-nil, decodes the stored rows
	// (including server-assigned fields) into it.
	Insert(ctx context.Context, table string, rows []map[string]any, dest any) error
	Update(ctx context.Context, q Query, values map[string]any) error
	Delete(ctx context.Context, q Query) error
}

type Client interface {
	Auth
	Data
}

// Error is a failure reported by the service.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// Error codes shared by the service and its clients.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeInvalidGrant       = "invalid_grant"
	CodeUserExists         = "user_already_exists"
	CodeWeakPassword       = "weak_password"
	CodeValidation         = "validation_failed"
	CodeUnauthorized       = "PGRST301"
	CodeNotFound           = "PGRST116"
	CodeBadQuery           = "PGRST100"
	CodeMissingFilter      = "21000"
	CodeInvalidText        = "22P02"
	CodeUnknownColumn      = "42703"
	CodeUnknownTable       = "42P01"
	CodeRowSecurity        = "42501"
	CodeUniqueViolation    = "23505"
	CodeForeignKey         = "23503"
)

func NewError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// IsUnauthorized reports whether err means the caller must sign in again.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrNoSession) {
		return true
	}
	var be *Error
	return errors.As(err, &be) && be.Status == http.StatusUnauthorized
}
