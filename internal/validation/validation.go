// Package validation checks user input before it reaches storage.
package validation

import "errors"

var (
	ErrEmailRequired    = errors.New("email address is required")
	ErrEmailTooLong     = errors.New("email address is too long (max 254 characters)")
	ErrEmailFormat      = errors.New("invalid email address format")
	ErrPasswordTooShort = errors.New("password must be at least 12 characters")
	ErrPasswordTooLong  = errors.New("password must not exceed 72 characters")
	ErrPasswordCommon   = errors.New("password is too common, please choose a stronger one")
	ErrNameRequired     = errors.New("habit name is required")
	ErrNameTooLong      = errors.New("habit name is too long (max 100 characters)")
	ErrFrequency        = errors.New("unknown frequency")
)

// IsPasswordError reports whether err came from ValidatePassword.
func IsPasswordError(err error) bool {
	return errors.Is(err, ErrPasswordTooShort) ||
		errors.Is(err, ErrPasswordTooLong) ||
		errors.Is(err, ErrPasswordCommon)
}
