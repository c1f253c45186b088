package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/habits/internal/backend"
	"github.com/templui/habits/internal/db"
	"github.com/templui/habits/internal/model"
)

func openDB(t *testing.T) *sqlx.DB {
	t.Helper()
	database, err := db.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func createUser(t *testing.T, database *sqlx.DB, email string) *model.User {
	t.Helper()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	if err := NewUserRepository(database).Create(user); err != nil {
		t.Fatal(err)
	}
	return user
}

func TestUserRepository(t *testing.T) {
	database := openDB(t)
	repo := NewUserRepository(database)
	user := createUser(t, database, "ada@example.com")

	got, err := repo.ByEmail("ada@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != user.ID {
		t.Fatalf("ByEmail id = %q, want %q", got.ID, user.ID)
	}
	if got.LastSignInAt != nil {
		t.Fatal("new user should not have a sign in time")
	}

	dup := &model.User{ID: uuid.New().String(), Email: "ada@example.com", PasswordHash: "x", CreatedAt: time.Now()}
	if err := repo.Create(dup); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("duplicate create: got %v, want ErrDuplicateEmail", err)
	}

	if err := repo.UpdateLastSignIn(user.ID, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	got, err = repo.ByID(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastSignInAt == nil {
		t.Fatal("last sign in not stored")
	}

	if _, err := repo.ByID("missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("ByID missing: got %v", err)
	}
	if err := repo.UpdateLastSignIn("missing", time.Now()); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("UpdateLastSignIn missing: got %v", err)
	}

	if err := repo.Delete(user.ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("second delete: got %v", err)
	}
}

func TestRefreshTokenConsumeOnce(t *testing.T) {
	database := openDB(t)
	repo := NewRefreshTokenRepository(database)
	user := createUser(t, database, "ada@example.com")

	token := &model.RefreshToken{
		UserID:    user.ID,
		Token:     "tok-1",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	if err := repo.Create(token); err != nil {
		t.Fatal(err)
	}

	got, err := repo.ConsumeToken("tok-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != user.ID || !got.IsUsed() {
		t.Fatalf("consumed token = %+v", got)
	}

	if _, err := repo.ConsumeToken("tok-1"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("second consume: got %v, want ErrTokenNotFound", err)
	}
}

func TestRefreshTokenExpiredAndRevoked(t *testing.T) {
	database := openDB(t)
	repo := NewRefreshTokenRepository(database)
	user := createUser(t, database, "ada@example.com")

	expired := &model.RefreshToken{UserID: user.ID, Token: "old", ExpiresAt: time.Now().UTC().Add(-time.Hour)}
	live := &model.RefreshToken{UserID: user.ID, Token: "live", ExpiresAt: time.Now().UTC().Add(time.Hour)}
	for _, tok := range []*model.RefreshToken{expired, live} {
		if err := repo.Create(tok); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := repo.ConsumeToken("old"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expired consume: got %v", err)
	}

	if err := repo.RevokeByUser(user.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.ConsumeToken("live"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("revoked consume: got %v", err)
	}

	n, err := repo.CleanupExpired(0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("cleanup removed %d tokens, want 2", n)
	}
}

func insertHabit(t *testing.T, repo TableRepository, userID, name string, created time.Time) Row {
	t.Helper()
	row, err := repo.Insert(context.Background(), backend.TableHabits, Row{
		"id":         uuid.New().String(),
		"user_id":    userID,
		"name":       name,
		"frequency":  model.FrequencyDaily,
		"created_at": created,
	})
	if err != nil {
		t.Fatal(err)
	}
	return row
}

func TestTableInsertNormalizesRow(t *testing.T) {
	database := openDB(t)
	repo := NewTableRepository(database)
	user := createUser(t, database, "ada@example.com")

	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	habit := insertHabit(t, repo, user.ID, "Read", created)

	if habit["name"] != "Read" {
		t.Fatalf("name = %v", habit["name"])
	}
	ts, ok := habit["created_at"].(time.Time)
	if !ok || !ts.Equal(created) {
		t.Fatalf("created_at = %#v, want %v", habit["created_at"], created)
	}

	log, err := repo.Insert(context.Background(), backend.TableHabitLogs, Row{
		"id":           uuid.New().String(),
		"habit_id":     habit["id"],
		"log_date":     "2024-03-02",
		"is_completed": true,
		"created_at":   created,
	})
	if err != nil {
		t.Fatal(err)
	}
	if log["is_completed"] != true {
		t.Fatalf("is_completed = %#v, want true", log["is_completed"])
	}
	if log["log_date"] != "2024-03-02" {
		t.Fatalf("log_date = %#v", log["log_date"])
	}
}

func TestTableInsertConstraints(t *testing.T) {
	database := openDB(t)
	repo := NewTableRepository(database)
	user := createUser(t, database, "ada@example.com")
	habit := insertHabit(t, repo, user.ID, "Read", time.Now())
	ctx := context.Background()

	row := Row{
		"habit_id":     habit["id"],
		"log_date":     "2024-03-02",
		"is_completed": true,
		"created_at":   time.Now(),
	}

	row["id"] = "log-1"
	if _, err := repo.Insert(ctx, backend.TableHabitLogs, row); err != nil {
		t.Fatal(err)
	}
	row["id"] = "log-2"
	if _, err := repo.Insert(ctx, backend.TableHabitLogs, row); !errors.Is(err, ErrDuplicateRow) {
		t.Fatalf("second log for same date: got %v, want ErrDuplicateRow", err)
	}

	row["id"] = "log-3"
	row["habit_id"] = "missing"
	row["log_date"] = "2024-03-03"
	if _, err := repo.Insert(ctx, backend.TableHabitLogs, row); !errors.Is(err, ErrMissingParent) {
		t.Fatalf("log for missing habit: got %v, want ErrMissingParent", err)
	}

	if _, err := repo.Insert(ctx, "profiles", Row{"id": "x"}); !errors.Is(err, ErrUnknownTable) {
		t.Fatalf("unknown table: got %v", err)
	}
	if _, err := repo.Insert(ctx, backend.TableHabits, Row{"color": "red"}); !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("unknown column: got %v", err)
	}
	if _, err := repo.Insert(ctx, backend.TableHabitLogs, Row{"log_date": "yesterday"}); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("bad date: got %v", err)
	}
}

func TestTableSelectFiltersOrderLimit(t *testing.T) {
	database := openDB(t)
	repo := NewTableRepository(database)
	ada := createUser(t, database, "ada@example.com")
	bob := createUser(t, database, "bob@example.com")
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := insertHabit(t, repo, ada.ID, "Read", base)
	second := insertHabit(t, repo, ada.ID, "Run", base.Add(time.Hour))
	insertHabit(t, repo, bob.ID, "Swim", base.Add(2*time.Hour))

	rows, err := repo.Select(ctx, backend.From(backend.TableHabits).Eq("user_id", ada.ID).Order("created_at", true), Scope{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0]["id"] != second["id"] || rows[1]["id"] != first["id"] {
		t.Fatalf("rows not ordered newest first: %v", rows)
	}

	rows, err = repo.Select(ctx, backend.From(backend.TableHabits).Select("id").WithLimit(1), Scope{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || len(rows[0]) != 1 {
		t.Fatalf("select id limit 1 = %v", rows)
	}

	ids := []string{first["id"].(string), second["id"].(string)}
	rows, err = repo.Select(ctx, backend.From(backend.TableHabits).In("id", ids...), Scope{
		Clause: "user_id = ?",
		Args:   []any{bob.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("scope should exclude other users' habits, got %v", rows)
	}

	rows, err = repo.Select(ctx, backend.From(backend.TableHabits).In("id"), Scope{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("empty in-list should match nothing, got %v", rows)
	}

	if _, err := repo.Select(ctx, backend.From(backend.TableHabits).Order("color", false), Scope{}); !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("unknown order column: got %v", err)
	}
}

func TestTableUpdateAndDelete(t *testing.T) {
	database := openDB(t)
	repo := NewTableRepository(database)
	user := createUser(t, database, "ada@example.com")
	habit := insertHabit(t, repo, user.ID, "Read", time.Now())
	ctx := context.Background()

	log, err := repo.Insert(ctx, backend.TableHabitLogs, Row{
		"id":           "log-1",
		"habit_id":     habit["id"],
		"log_date":     "2024-03-02",
		"is_completed": false,
		"created_at":   time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	n, err := repo.Update(ctx, backend.From(backend.TableHabitLogs).Eq("id", log["id"]), Scope{}, Row{"is_completed": true})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("updated %d rows, want 1", n)
	}

	rows, err := repo.Select(ctx, backend.From(backend.TableHabitLogs).Eq("is_completed", true), Scope{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("completed logs = %d, want 1", len(rows))
	}

	if _, err := repo.Update(ctx, backend.From(backend.TableHabitLogs), Scope{}, Row{}); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("empty update: got %v", err)
	}

	// Deleting the habit cascades to its logs.
	n, err = repo.Delete(ctx, backend.From(backend.TableHabits).Eq("id", habit["id"]), Scope{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted %d rows, want 1", n)
	}
	rows, err = repo.Select(ctx, backend.From(backend.TableHabitLogs), Scope{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("logs survived habit delete: %v", rows)
	}
}

func TestNormalize(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		kind ColumnKind
		in   any
		want any
	}{
		{KindBool, int64(1), true},
		{KindBool, int64(0), false},
		{KindBool, []byte("true"), true},
		{KindDate, "2024-03-01", "2024-03-01"},
		{KindDate, ts, "2024-03-01"},
		{KindText, []byte("abc"), "abc"},
		{KindTime, "2024-03-01 09:30:00+00:00", ts},
		{KindText, nil, nil},
	}
	for _, tt := range tests {
		got := normalize(tt.kind, tt.in)
		if gt, ok := got.(time.Time); ok {
			if !gt.Equal(tt.want.(time.Time)) {
				t.Errorf("normalize(%v, %#v) = %v, want %v", tt.kind, tt.in, got, tt.want)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("normalize(%v, %#v) = %#v, want %#v", tt.kind, tt.in, got, tt.want)
		}
	}
}
