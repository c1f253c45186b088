// Package habits holds the signed-in user's habits and their statistics.
package habits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/templui/habits/internal/backend"
	"github.com/templui/habits/internal/model"
	"github.com/templui/habits/internal/stats"
	"github.com/templui/habits/internal/validation"
	"golang.org/x/text/cases"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrHabitNotFound          = errors.New("habit not found")
	ErrAmbiguousHabit         = errors.New("habit reference is ambiguous")
)

// Identity names the signed-in user; an empty id means nobody is.
type Identity interface {
	UserID() string
}

type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLocation sets the time zone that decides what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// Store is the in-memory view of the user's habits. Concurrent operations
// are safe; the last one to write a collection wins.
type Store struct {
	data     backend.Data
	identity Identity
	now      func() time.Time
	loc      *time.Location

	mu      sync.RWMutex
	habits  []model.HabitToday
	stats   []model.HabitWithStats
	loading int
}

func New(data backend.Data, identity Identity, opts ...Option) *Store {
	s := &Store{
		data:     data,
		identity: identity,
		now:      time.Now,
		loc:      time.UTC,
		habits:   []model.HabitToday{},
		stats:    []model.HabitWithStats{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the current calendar day in the store's time zone.
func (s *Store) Today() model.Date {
	return model.DateOf(s.now().In(s.loc))
}

// FetchToday loads every habit of the user with today's completion flag,
// newest first. On failure the list is emptied and the error returned.
func (s *Store) FetchToday(ctx context.Context) error {
	userID := s.identity.UserID()
	if userID == "" {
		s.setHabits([]model.HabitToday{})
		return ErrAuthenticationRequired
	}

	defer s.track()()

	list, err := s.fetchToday(ctx, userID)
	if err != nil {
		slog.Error("failed to fetch habits", "error", err, "user_id", userID)
		s.setHabits([]model.HabitToday{})
		return fmt.Errorf("failed to fetch habits: %w", err)
	}

	s.setHabits(list)
	return nil
}

func (s *Store) fetchToday(ctx context.Context, userID string) ([]model.HabitToday, error) {
	habits, err := s.selectHabits(ctx, userID)
	if err != nil {
		return nil, err
	}

	list := make([]model.HabitToday, len(habits))
	if len(habits) == 0 {
		return list, nil
	}

	var logs []model.HabitLog
	err = s.data.Select(ctx,
		backend.From(backend.TableHabitLogs).
			Select("habit_id", "is_completed").
			In("habit_id", habitIDs(habits)...).
			Eq("log_date", s.Today()),
		&logs)
	if err != nil {
		return nil, err
	}

	completed := make(map[string]bool, len(logs))
	for _, l := range logs {
		completed[l.HabitID] = l.IsCompleted
	}

	for i, h := range habits {
		list[i] = model.HabitToday{Habit: h, IsCompletedToday: completed[h.ID]}
	}
	return list, nil
}

// Add creates a habit and puts it at the head of the list.
func (s *Store) Add(ctx context.Context, name, frequency string) (*model.HabitToday, error) {
	userID := s.identity.UserID()
	if userID == "" {
		return nil, ErrAuthenticationRequired
	}

	name = validation.NormalizeHabitName(name)
	if err := validation.ValidateHabitName(name); err != nil {
		return nil, err
	}
	frequency = validation.NormalizeFrequency(frequency)
	if err := validation.ValidateFrequency(frequency); err != nil {
		return nil, err
	}

	var created []model.Habit
	err := s.data.Insert(ctx, backend.TableHabits, []map[string]any{{
		"name":      name,
		"frequency": frequency,
		"user_id":   userID,
	}}, &created)
	if err != nil {
		return nil, fmt.Errorf("failed to create habit: %w", err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("failed to create habit: no row returned")
	}

	habit := model.HabitToday{Habit: created[0]}

	s.mu.Lock()
	s.habits = append([]model.HabitToday{habit}, s.habits...)
	s.mu.Unlock()

	slog.Info("habit created", "habit_id", habit.ID, "frequency", habit.Frequency)
	return &habit, nil
}

// ToggleCompletion records today's completion for a habit, updating the
// existing log or inserting one, then reloads the list. A failed reload is
// logged; the toggle itself has succeeded by then.
func (s *Store) ToggleCompletion(ctx context.Context, habitID string, completed bool) error {
	userID := s.identity.UserID()
	if userID == "" {
		return ErrAuthenticationRequired
	}

	today := s.Today()

	var existing []model.HabitLog
	err := s.data.Select(ctx,
		backend.From(backend.TableHabitLogs).
			Select("id").
			Eq("habit_id", habitID).
			Eq("log_date", today).
			WithLimit(1),
		&existing)
	if err != nil {
		return fmt.Errorf("failed to look up today's log: %w", err)
	}

	if len(existing) > 0 {
		err = s.data.Update(ctx,
			backend.From(backend.TableHabitLogs).Eq("id", existing[0].ID),
			map[string]any{"is_completed": completed})
	} else {
		err = s.data.Insert(ctx, backend.TableHabitLogs, []map[string]any{{
			"habit_id":     habitID,
			"log_date":     today.String(),
			"is_completed": completed,
		}}, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}

	s.mu.Lock()
	for i := range s.habits {
		if s.habits[i].ID == habitID {
			s.habits[i].IsCompletedToday = completed
		}
	}
	s.mu.Unlock()

	slog.Debug("completion toggled", "habit_id", habitID, "date", today, "completed", completed)

	if err := s.FetchToday(ctx); err != nil {
		slog.Warn("refresh after toggle failed", "error", err, "habit_id", habitID)
	}
	return nil
}

// Delete removes a habit remotely and then from local state.
func (s *Store) Delete(ctx context.Context, habitID string) error {
	if s.identity.UserID() == "" {
		return ErrAuthenticationRequired
	}

	err := s.data.Delete(ctx, backend.From(backend.TableHabits).Eq("id", habitID))
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}

	s.mu.Lock()
	s.habits = slices.DeleteFunc(s.habits, func(h model.HabitToday) bool { return h.ID == habitID })
	s.stats = slices.DeleteFunc(s.stats, func(h model.HabitWithStats) bool { return h.ID == habitID })
	s.mu.Unlock()

	slog.Info("habit deleted", "habit_id", habitID)
	return nil
}

// FetchStats loads all habits with their full log history and computes
// statistics. On failure the stats list is emptied and the error returned.
func (s *Store) FetchStats(ctx context.Context) error {
	userID := s.identity.UserID()
	if userID == "" {
		s.setStats([]model.HabitWithStats{})
		return ErrAuthenticationRequired
	}

	defer s.track()()

	rows, err := s.fetchStats(ctx, userID)
	if err != nil {
		slog.Error("failed to fetch stats", "error", err, "user_id", userID)
		s.setStats([]model.HabitWithStats{})
		return fmt.Errorf("failed to fetch stats: %w", err)
	}

	s.setStats(rows)
	return nil
}

func (s *Store) fetchStats(ctx context.Context, userID string) ([]model.HabitWithStats, error) {
	habits, err := s.selectHabits(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(habits) == 0 {
		return []model.HabitWithStats{}, nil
	}

	var logs []model.HabitLog
	err = s.data.Select(ctx,
		backend.From(backend.TableHabitLogs).
			Select("habit_id", "log_date", "is_completed").
			In("habit_id", habitIDs(habits)...).
			Order("log_date", false),
		&logs)
	if err != nil {
		return nil, err
	}

	return stats.CalculateAll(habits, logs, s.Today()), nil
}

func (s *Store) selectHabits(ctx context.Context, userID string) ([]model.Habit, error) {
	var habits []model.Habit
	err := s.data.Select(ctx,
		backend.From(backend.TableHabits).
			Eq("user_id", userID).
			Order("created_at", true),
		&habits)
	return habits, err
}

// Habits returns a copy of the current list.
func (s *Store) Habits() []model.HabitToday {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.habits)
}

// Stats returns a copy of the last computed statistics.
func (s *Store) Stats() []model.HabitWithStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.stats)
}

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// Find resolves ref against the loaded list: exact id first, then a unique
// id prefix, then a case-insensitive name.
func (s *Store) Find(ref string) (model.HabitToday, error) {
	ref = strings.TrimSpace(ref)
	list := s.Habits()
	if ref == "" {
		return model.HabitToday{}, ErrHabitNotFound
	}

	for _, h := range list {
		if h.ID == ref {
			return h, nil
		}
	}

	if match, err := unique(list, ref, func(h model.HabitToday) bool { return strings.HasPrefix(h.ID, ref) }); !errors.Is(err, ErrHabitNotFound) {
		return match, err
	}

	fold := cases.Fold()
	folded := fold.String(validation.NormalizeHabitName(ref))
	return unique(list, ref, func(h model.HabitToday) bool { return fold.String(h.Name) == folded })
}

func unique(list []model.HabitToday, ref string, match func(model.HabitToday) bool) (model.HabitToday, error) {
	var found []model.HabitToday
	for _, h := range list {
		if match(h) {
			found = append(found, h)
		}
	}
	switch len(found) {
	case 0:
		return model.HabitToday{}, ErrHabitNotFound
	case 1:
		return found[0], nil
	default:
		return model.HabitToday{}, fmt.Errorf("%w: %q matches %d habits", ErrAmbiguousHabit, ref, len(found))
	}
}

func (s *Store) setHabits(list []model.HabitToday) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.habits = list
}

func (s *Store) setStats(list []model.HabitWithStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = list
}

// track marks a fetch as in flight until the returned func is called.
func (s *Store) track() func() {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}
}

func habitIDs(habits []model.Habit) []string {
	ids := make([]string, len(habits))
	for i, h := range habits {
		ids[i] = h.ID
	}
	return ids
}
