package validation

import (
	"net/mail"
	"strings"
)

// NormalizeEmail trims and lowercases an address before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks length (RFC 5321) and format (RFC 5322 via net/mail).
// Display names are rejected: the parsed address must equal the input.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmailRequired
	}
	if len(email) > 254 {
		return ErrEmailTooLong
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrEmailFormat
	}

	return nil
}
