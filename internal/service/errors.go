package service

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/templui/habits/internal/backend"
)

// AuthError maps AuthService failures to wire errors. Unknown errors are
// logged and reported as internal.
func AuthError(err error) *backend.Error {
	var be *backend.Error
	if errors.As(err, &be) {
		return be
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return backend.NewError(http.StatusBadRequest, backend.CodeInvalidCredentials, "Invalid login credentials")
	case errors.Is(err, ErrEmailAlreadyExists):
		return backend.NewError(http.StatusUnprocessableEntity, backend.CodeUserExists, "User already registered")
	case errors.Is(err, ErrWeakPassword):
		return backend.NewError(http.StatusUnprocessableEntity, backend.CodeWeakPassword, err.Error())
	case errors.Is(err, ErrInvalidEmail):
		return backend.NewError(http.StatusBadRequest, backend.CodeValidation, "Unable to validate email address: invalid format")
	case errors.Is(err, ErrInvalidRefreshToken):
		return backend.NewError(http.StatusBadRequest, backend.CodeInvalidGrant, "Invalid Refresh Token")
	case errors.Is(err, ErrInvalidToken):
		return backend.NewError(http.StatusUnauthorized, backend.CodeUnauthorized, "invalid JWT")
	}

	slog.Error("auth operation failed", "error", err)
	return backend.NewError(http.StatusInternalServerError, "", "internal error")
}
