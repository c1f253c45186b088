package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/templui/habits/internal/app"
	"github.com/templui/habits/internal/backend"
	"github.com/templui/habits/internal/config"
	"github.com/templui/habits/internal/model"
	"github.com/templui/habits/internal/routes"
)

const (
	testAPIKey   = "anon-key"
	testPassword = "correct-horse-battery"
)

func newServer(t *testing.T, jwtExpiry time.Duration) *httptest.Server {
	t.Helper()
	a, err := app.New(&config.Config{
		AppName:            "Habits",
		AppEnv:             "development",
		DBDriver:           "sqlite",
		DBConnection:       ":memory:",
		JWTSecret:          "test-secret-test-secret-test-secret",
		JWTExpiry:          jwtExpiry,
		RefreshTokenExpiry: 24 * time.Hour,
		APIKey:             testAPIKey,
		AuthRateLimit:      100,
		AuthRateWindow:     time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(routes.SetupRoutes(a))
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return srv
}

type recorder struct {
	events []backend.AuthEvent
}

func (r *recorder) listen(event backend.AuthEvent, _ *model.Session) {
	r.events = append(r.events, event)
}

func (r *recorder) has(event backend.AuthEvent) bool {
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func TestSignInPersistsSession(t *testing.T) {
	srv := newServer(t, time.Hour)
	ctx := context.Background()
	store := backend.NewMemoryStore()

	client := New(srv.URL, testAPIKey, WithSessionStore(store))
	rec := &recorder{}
	unsubscribe := client.OnAuthStateChange(rec.listen)
	defer unsubscribe()

	if _, err := client.SignUp(ctx, "Ada@Example.com", testPassword); err != nil {
		t.Fatal(err)
	}
	if !rec.has(backend.EventSignedIn) {
		t.Fatalf("events = %v", rec.events)
	}

	// A second client restores the stored session.
	restored := New(srv.URL, testAPIKey, WithSessionStore(store))
	session, err := restored.Session(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if session == nil || session.User.Email != "ada@example.com" {
		t.Fatalf("restored session = %+v", session)
	}

	user, err := restored.User(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if user.ID != session.User.ID {
		t.Fatalf("User().ID = %q, want %q", user.ID, session.User.ID)
	}
}

func TestSignInErrors(t *testing.T) {
	srv := newServer(t, time.Hour)
	ctx := context.Background()
	client := New(srv.URL, testAPIKey)

	_, err := client.SignIn(ctx, "ada@example.com", testPassword)
	var be *backend.Error
	if !errors.As(err, &be) || be.Code != backend.CodeInvalidCredentials || be.Status != http.StatusBadRequest {
		t.Fatalf("SignIn error = %v", err)
	}

	_, err = client.SignUp(ctx, "ada@example.com", "short")
	if !errors.As(err, &be) || be.Code != backend.CodeWeakPassword {
		t.Fatalf("SignUp error = %v", err)
	}

	if _, err := client.SignUp(ctx, "ada@example.com", testPassword); err != nil {
		t.Fatal(err)
	}
	_, err = New(srv.URL, testAPIKey).SignUp(ctx, "ada@example.com", testPassword)
	if !errors.As(err, &be) || be.Code != backend.CodeUserExists {
		t.Fatalf("duplicate SignUp error = %v", err)
	}
}

func TestDataWithoutSession(t *testing.T) {
	srv := newServer(t, time.Hour)
	client := New(srv.URL, testAPIKey)

	var rows []model.Habit
	err := client.Select(context.Background(), backend.From(backend.TableHabits), &rows)
	if !errors.Is(err, backend.ErrNoSession) {
		t.Fatalf("Select error = %v", err)
	}
}

func TestExpiringTokenIsRefreshed(t *testing.T) {
	// Tokens expire inside the refresh leeway, so every use renews them.
	srv := newServer(t, 10*time.Second)
	ctx := context.Background()
	store := backend.NewMemoryStore()

	client := New(srv.URL, testAPIKey, WithSessionStore(store))
	first, err := client.SignUp(ctx, "ada@example.com", testPassword)
	if err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	client.OnAuthStateChange(rec.listen)

	session, err := client.Session(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if session == nil || session.RefreshToken == first.RefreshToken {
		t.Fatal("session was not rotated")
	}
	if !rec.has(backend.EventTokenRefreshed) {
		t.Fatalf("events = %v", rec.events)
	}

	stored, _ := store.Load()
	if stored.RefreshToken != session.RefreshToken {
		t.Fatal("rotated session not persisted")
	}

	// Data calls keep working across refreshes.
	var rows []model.Habit
	if err := client.Select(ctx, backend.From(backend.TableHabits), &rows); err != nil {
		t.Fatal(err)
	}

	// The consumed token cannot be replayed.
	err = postRefresh(t, srv.URL, first.RefreshToken)
	var be *backend.Error
	if !errors.As(err, &be) || be.Code != backend.CodeInvalidGrant {
		t.Fatalf("replayed refresh error = %v", err)
	}
}

func TestRejectedRefreshSignsOut(t *testing.T) {
	srv := newServer(t, time.Hour)
	store := backend.NewMemoryStore()
	_ = store.Save(&model.Session{
		AccessToken:  "stale",
		RefreshToken: "unknown",
		ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
		User:         &model.User{ID: "u1"},
	})

	client := New(srv.URL, testAPIKey, WithSessionStore(store))
	rec := &recorder{}
	client.OnAuthStateChange(rec.listen)

	session, err := client.Session(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if session != nil {
		t.Fatalf("session = %+v, want nil", session)
	}
	if !rec.has(backend.EventSignedOut) {
		t.Fatalf("events = %v", rec.events)
	}
	if stored, _ := store.Load(); stored != nil {
		t.Fatal("store not cleared")
	}
}

func TestSignOutRevokes(t *testing.T) {
	srv := newServer(t, time.Hour)
	ctx := context.Background()
	store := backend.NewMemoryStore()

	client := New(srv.URL, testAPIKey, WithSessionStore(store))
	session, err := client.SignUp(ctx, "ada@example.com", testPassword)
	if err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	client.OnAuthStateChange(rec.listen)
	if err := client.SignOut(ctx); err != nil {
		t.Fatal(err)
	}

	if !rec.has(backend.EventSignedOut) {
		t.Fatalf("events = %v", rec.events)
	}
	if current, _ := client.Session(ctx); current != nil {
		t.Fatal("session survived sign out")
	}
	if stored, _ := store.Load(); stored != nil {
		t.Fatal("store not cleared")
	}

	err = postRefresh(t, srv.URL, session.RefreshToken)
	var be *backend.Error
	if !errors.As(err, &be) || be.Code != backend.CodeInvalidGrant {
		t.Fatalf("refresh after sign out error = %v", err)
	}
}

func TestDecodeError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{
			name:     "auth shape",
			status:   400,
			body:     `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`,
			wantCode: "invalid_credentials",
			wantMsg:  "Invalid login credentials",
		},
		{
			name:     "table shape",
			status:   403,
			body:     `{"code":"42501","message":"new row violates row-level security policy","hint":"h"}`,
			wantCode: "42501",
			wantMsg:  "new row violates row-level security policy",
		},
		{
			name:     "oauth shape",
			status:   400,
			body:     `{"error":"invalid_grant","error_description":"Invalid Refresh Token"}`,
			wantCode: "invalid_grant",
			wantMsg:  "Invalid Refresh Token",
		},
		{
			name:    "plain text",
			status:  502,
			body:    "bad gateway\n",
			wantMsg: "bad gateway",
		},
		{
			name:    "empty",
			status:  503,
			wantMsg: "Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			rec.WriteHeader(tt.status)
			rec.WriteString(tt.body)

			err := decodeError(rec.Result())
			var be *backend.Error
			if !errors.As(err, &be) {
				t.Fatalf("error %T is not *backend.Error", err)
			}
			if be.Status != tt.status || be.Code != tt.wantCode || be.Message != tt.wantMsg {
				t.Fatalf("got %+v", be)
			}
		})
	}
}

func TestSessionExpiryFallsBackToClaim(t *testing.T) {
	// header.payload.signature with {"exp":1700000000}
	token := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJleHAiOjE3MDAwMDAwMDB9.c2ln"
	got := sessionExpiry(&model.Session{AccessToken: token})
	if got.Unix() != 1700000000 {
		t.Fatalf("expiry = %v", got)
	}

	if !sessionExpiry(&model.Session{AccessToken: "garbage"}).IsZero() {
		t.Fatal("unparsable token should have no expiry")
	}
}

func postRefresh(t *testing.T, baseURL, refreshToken string) error {
	t.Helper()
	c := New(baseURL, testAPIKey)
	var session model.Session
	return c.do(context.Background(), http.MethodPost, "/auth/v1/token",
		url.Values{"grant_type": {"refresh_token"}},
		map[string]string{"refresh_token": strings.TrimSpace(refreshToken)},
		nil, &session)
}
