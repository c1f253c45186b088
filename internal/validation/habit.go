package validation

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/templui/habits/internal/model"
	"golang.org/x/text/unicode/norm"
)

const maxNameLength = 100

// NormalizeHabitName trims surrounding space and composes the name to NFC so
// visually equal names compare equal.
func NormalizeHabitName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateHabitName expects a normalized name.
func ValidateHabitName(name string) error {
	if name == "" {
		return ErrNameRequired
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// NormalizeFrequency lowercases the descriptor and defaults to daily.
func NormalizeFrequency(frequency string) string {
	frequency = strings.ToLower(strings.TrimSpace(frequency))
	if frequency == "" {
		return model.FrequencyDaily
	}
	return frequency
}

func ValidateFrequency(frequency string) error {
	if !slices.Contains(model.Frequencies, frequency) {
		return fmt.Errorf("%w %q (want one of %s)", ErrFrequency, frequency, strings.Join(model.Frequencies, ", "))
	}
	return nil
}
