// Package session tracks who is signed in.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/templui/habits/internal/backend"
	"github.com/templui/habits/internal/model"
)

// State holds the current identity. It only changes in response to the
// backend's auth events, so the latest event always wins.
type State struct {
	auth backend.Auth

	once        sync.Once
	ready       chan struct{}
	initErr     error
	mu          sync.RWMutex
	user        *model.User
	unsubscribe func()
}

func New(auth backend.Auth) *State {
	return &State{
		auth:  auth,
		ready: make(chan struct{}),
	}
}

// Init restores an existing session and subscribes to auth events.
// Readiness is reached exactly once whatever the outcome; a failed session
// check is returned after the subscription is in place. Later calls return
// the first call's error without doing anything.
func (s *State) Init(ctx context.Context) error {
	s.once.Do(func() {
		current, err := s.auth.Session(ctx)
		if err != nil {
			slog.Warn("session check failed", "error", err)
			s.initErr = fmt.Errorf("failed to restore session: %w", err)
		} else if current != nil {
			s.setUser(current.User)
		}

		// Subscribe before releasing waiters so no event is missed.
		unsubscribe := s.auth.OnAuthStateChange(s.handleEvent)
		s.mu.Lock()
		s.unsubscribe = unsubscribe
		s.mu.Unlock()

		close(s.ready)
	})
	return s.initErr
}

func (s *State) handleEvent(event backend.AuthEvent, current *model.Session) {
	slog.Debug("auth state changed", "event", event, "user_id", current.UserID())
	if current == nil {
		s.setUser(nil)
		return
	}
	s.setUser(current.User)
}

func (s *State) setUser(user *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
}

// Ready is closed once Init has settled the initial identity.
func (s *State) Ready() <-chan struct{} {
	return s.ready
}

func (s *State) IsReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// Wait blocks until Init has settled or ctx is done.
func (s *State) Wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *State) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *State) UserID() string {
	if u := s.User(); u != nil {
		return u.ID
	}
	return ""
}

func (s *State) IsAuthenticated() bool {
	return s.User() != nil
}

func (s *State) SignUp(ctx context.Context, email, password string) error {
	_, err := s.auth.SignUp(ctx, email, password)
	return err
}

func (s *State) SignIn(ctx context.Context, email, password string) error {
	_, err := s.auth.SignIn(ctx, email, password)
	return err
}

func (s *State) SignOut(ctx context.Context) error {
	return s.auth.SignOut(ctx)
}

// Close drops the auth event subscription.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}
