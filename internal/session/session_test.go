package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/templui/habits/internal/backend"
	"github.com/templui/habits/internal/model"
)

type fakeAuth struct {
	mu         sync.Mutex
	session    *model.Session
	sessionErr error
	signInErr  error
	listener   backend.AuthListener
	sessionN   int
}

func (f *fakeAuth) Session(ctx context.Context) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionN++
	return f.session, f.sessionErr
}

func (f *fakeAuth) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	return f.SignIn(ctx, email, password)
}

func (f *fakeAuth) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	s := &model.Session{User: &model.User{ID: "u-" + email, Email: email}}
	f.emit(backend.EventSignedIn, s)
	return s, nil
}

func (f *fakeAuth) SignOut(ctx context.Context) error {
	f.emit(backend.EventSignedOut, nil)
	return nil
}

func (f *fakeAuth) OnAuthStateChange(fn backend.AuthListener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listener = nil
	}
}

func (f *fakeAuth) emit(event backend.AuthEvent, s *model.Session) {
	f.mu.Lock()
	fn := f.listener
	f.mu.Unlock()
	if fn != nil {
		fn(event, s)
	}
}

func TestInitWithoutSession(t *testing.T) {
	state := New(&fakeAuth{})
	if state.IsReady() {
		t.Fatal("ready before Init")
	}

	if err := state.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !state.IsReady() {
		t.Fatal("not ready after Init")
	}
	if state.IsAuthenticated() || state.User() != nil {
		t.Fatal("unexpected user")
	}
}

func TestInitRestoresSession(t *testing.T) {
	auth := &fakeAuth{session: &model.Session{User: &model.User{ID: "u1"}}}
	state := New(auth)

	if err := state.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if state.UserID() != "u1" {
		t.Fatalf("UserID = %q, want u1", state.UserID())
	}

	select {
	case <-state.Ready():
	default:
		t.Fatal("Ready channel not closed")
	}
}

func TestInitErrorStillReady(t *testing.T) {
	boom := errors.New("network down")
	auth := &fakeAuth{sessionErr: boom}
	state := New(auth)

	err := state.Init(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Init error = %v, want %v", err, boom)
	}
	if !state.IsReady() {
		t.Fatal("readiness must be reached on failure")
	}
	if auth.listener == nil {
		t.Fatal("subscription must be in place after a failed check")
	}
}

func TestInitRunsOnce(t *testing.T) {
	auth := &fakeAuth{}
	state := New(auth)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = state.Init(ctx)
		}()
	}
	wg.Wait()

	if auth.sessionN != 1 {
		t.Fatalf("session checked %d times, want 1", auth.sessionN)
	}
}

func TestSignInRightAfterReady(t *testing.T) {
	for i := 0; i < 50; i++ {
		state := New(&fakeAuth{})
		ctx := context.Background()

		done := make(chan error, 1)
		go func() {
			<-state.Ready()
			done <- state.SignIn(ctx, "a@example.com", "pw")
		}()

		if err := state.Init(ctx); err != nil {
			t.Fatalf("Init: %v", err)
		}
		if err := <-done; err != nil {
			t.Fatalf("SignIn: %v", err)
		}
		if !state.IsAuthenticated() {
			t.Fatalf("run %d: sign in right after readiness was lost", i)
		}
		state.Close()
	}
}

func TestEventsDriveIdentity(t *testing.T) {
	auth := &fakeAuth{}
	state := New(auth)
	ctx := context.Background()
	if err := state.Init(ctx); err != nil {
		t.Fatal(err)
	}

	if err := state.SignIn(ctx, "ada@example.com", "pw"); err != nil {
		t.Fatal(err)
	}
	if state.UserID() != "u-ada@example.com" {
		t.Fatalf("after sign in UserID = %q", state.UserID())
	}

	auth.emit(backend.EventTokenRefreshed, &model.Session{User: &model.User{ID: "u2"}})
	if state.UserID() != "u2" {
		t.Fatalf("latest event should win, UserID = %q", state.UserID())
	}

	if err := state.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	if state.IsAuthenticated() {
		t.Fatal("still authenticated after sign out")
	}

	state.Close()
	auth.emit(backend.EventSignedIn, &model.Session{User: &model.User{ID: "u3"}})
	if state.IsAuthenticated() {
		t.Fatal("events after Close must be ignored")
	}
}

func TestSignInErrorLeavesIdentity(t *testing.T) {
	auth := &fakeAuth{signInErr: backend.NewError(400, backend.CodeInvalidCredentials, "Invalid login credentials")}
	state := New(auth)
	_ = state.Init(context.Background())

	err := state.SignIn(context.Background(), "ada@example.com", "wrong")
	var be *backend.Error
	if !errors.As(err, &be) || be.Code != backend.CodeInvalidCredentials {
		t.Fatalf("SignIn error = %v", err)
	}
	if state.IsAuthenticated() {
		t.Fatal("failed sign in must not set identity")
	}
}

func TestWait(t *testing.T) {
	state := New(&fakeAuth{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := state.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait before Init = %v", err)
	}

	go func() { _ = state.Init(context.Background()) }()
	if err := state.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
}
