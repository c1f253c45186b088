package validation

import (
	"strings"
)

var commonPatterns = []string{
	"password", "123456", "qwerty", "admin", "letmein",
	"welcome", "monkey", "dragon", "master", "sunshine",
}

// ValidatePassword enforces NIST length guidance and blocks common patterns.
func ValidatePassword(password string) error {
	if len(password) < 12 {
		return ErrPasswordTooShort
	}

	// bcrypt silently truncates after 72 bytes
	if len(password) > 72 {
		return ErrPasswordTooLong
	}

	lower := strings.ToLower(password)
	for _, pattern := range commonPatterns {
		if strings.Contains(lower, pattern) {
			return ErrPasswordCommon
		}
	}

	return nil
}
