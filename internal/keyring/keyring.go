// Package keyring stores the signed-in session in the OS credential store.
package keyring

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/templui/habits/internal/model"
	"github.com/zalando/go-keyring"
)

const (
	Service = "habits"
	User    = "session"
)

var (
	// ErrNotFound is returned when no session is stored in the keyring
	ErrNotFound = errors.New("session not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// Store implements the backend session store on top of the OS keyring.
type Store struct {
	service string
	user    string
}

func NewStore(server string) *Store {
	// One entry per server so switching HABITS_URL does not reuse a foreign
	// session.
	user := User
	if server != "" {
		user = User + ":" + server
	}
	return &Store{service: Service, user: user}
}

func (s *Store) Load() (*model.Session, error) {
	data, err := keyring.Get(s.service, s.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}

	var session model.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to decode stored session: %w", err)
	}
	return &session, nil
}

func (s *Store) Save(session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	err = keyring.Set(s.service, s.user, string(data))
	if err != nil {
		return fmt.Errorf("failed to store session in keyring: %w", err)
	}
	return nil
}

// Clear removes the stored session. Clearing an empty keyring is not an
// error.
func (s *Store) Clear() error {
	err := keyring.Delete(s.service, s.user)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete session from keyring: %w", err)
	}
	return nil
}

// Exists reports whether a session entry is present.
func (s *Store) Exists() (bool, error) {
	_, err := keyring.Get(s.service, s.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return true, nil
}

// IsAvailable checks if the OS keyring is available on the current system.
func IsAvailable() bool {
	_, err := keyring.Get(Service, "test-availability")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
