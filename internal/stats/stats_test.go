package stats

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/templui/habits/internal/model"
)

var today = model.NewDate(2026, 3, 15)

func day(offset int, completed bool) model.HabitLog {
	return model.HabitLog{LogDate: today.AddDays(offset), IsCompleted: completed}
}

func TestCalculateEmpty(t *testing.T) {
	got := Calculate("h1", nil, today)
	want := model.HabitStats{HabitID: "h1"}
	if got != want {
		t.Fatalf("expected all-zero stats, got %+v", got)
	}
}

func TestCalculateExamples(t *testing.T) {
	tests := []struct {
		name          string
		logs          []model.HabitLog
		current, best int
		rate          float64
	}{
		{
			name:    "single completed today",
			logs:    []model.HabitLog{day(0, true)},
			current: 1, best: 1, rate: 100,
		},
		{
			name:    "three consecutive days",
			logs:    []model.HabitLog{day(-2, true), day(-1, true), day(0, true)},
			current: 3, best: 3, rate: 100,
		},
		{
			name:    "latest day incomplete decays streak",
			logs:    []model.HabitLog{day(-5, true), day(0, false)},
			current: 0, best: 1, rate: 50,
		},
		{
			name:    "gap restarts streak at one",
			logs:    []model.HabitLog{day(-10, true), day(-1, true), day(0, true)},
			current: 2, best: 2, rate: 100,
		},
		{
			name:    "completed yesterday keeps streak",
			logs:    []model.HabitLog{day(-2, true), day(-1, true)},
			current: 2, best: 2, rate: 100,
		},
		{
			name:    "stale latest day zeroes current streak",
			logs:    []model.HabitLog{day(-4, true), day(-3, true), day(-2, true)},
			current: 0, best: 3, rate: 100,
		},
		{
			name:    "incomplete day resets run",
			logs:    []model.HabitLog{day(-4, true), day(-3, true), day(-2, false), day(-1, true), day(0, true)},
			current: 2, best: 2, rate: 80,
		},
		{
			name:    "future entries do not override current streak",
			logs:    []model.HabitLog{day(-1, true), day(0, true), day(3, true)},
			current: 2, best: 2, rate: 100,
		},
		{
			name:    "unordered input",
			logs:    []model.HabitLog{day(0, true), day(-2, true), day(-1, true)},
			current: 3, best: 3, rate: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate("h1", tt.logs, today)
			if got.CurrentStreak != tt.current {
				t.Errorf("current streak = %d, want %d", got.CurrentStreak, tt.current)
			}
			if got.BestStreak != tt.best {
				t.Errorf("best streak = %d, want %d", got.BestStreak, tt.best)
			}
			if got.CompletionRate != tt.rate {
				t.Errorf("completion rate = %v, want %v", got.CompletionRate, tt.rate)
			}
		})
	}
}

func TestCalculateDeduplicatesDates(t *testing.T) {
	logs := []model.HabitLog{day(-1, true), day(0, false), day(0, true)}
	got := Calculate("h1", logs, today)
	if got.TotalDays != 2 {
		t.Fatalf("total days = %d, want 2", got.TotalDays)
	}
	if got.CompletedDays != 2 {
		t.Fatalf("completed days = %d, want 2", got.CompletedDays)
	}
	if got.CurrentStreak != 2 {
		t.Fatalf("current streak = %d, want 2", got.CurrentStreak)
	}
}

func randomLogs(r *rand.Rand) []model.HabitLog {
	n := r.Intn(30)
	logs := make([]model.HabitLog, 0, n)
	for i := 0; i < n; i++ {
		logs = append(logs, day(r.Intn(40)-35, r.Intn(3) > 0))
	}
	return logs
}

func TestCalculateInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		logs := randomLogs(r)
		got := Calculate("h1", logs, today)

		if got.CompletedDays > got.TotalDays {
			t.Fatalf("completed %d > total %d for %+v", got.CompletedDays, got.TotalDays, logs)
		}
		if got.CompletionRate < 0 || got.CompletionRate > 100 {
			t.Fatalf("completion rate %v out of range", got.CompletionRate)
		}
		if got.CurrentStreak < 0 || got.BestStreak < 0 {
			t.Fatalf("negative streak: %+v", got)
		}

		again := Calculate("h1", logs, today)
		if again != got {
			t.Fatalf("recomputing changed result: %+v vs %+v", got, again)
		}
	}
}

func TestBestStreakMonotonicOverWalk(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		unique := make(map[model.Date]model.HabitLog)
		for _, log := range randomLogs(r) {
			unique[log.LogDate] = log
		}
		logs := make([]model.HabitLog, 0, len(unique))
		for _, log := range unique {
			logs = append(logs, log)
		}
		sort.Slice(logs, func(a, b int) bool { return logs[a].LogDate.Before(logs[b].LogDate) })

		prev := 0
		for k := 1; k <= len(logs); k++ {
			best := Calculate("h1", logs[:k], today).BestStreak
			if best < prev {
				t.Fatalf("best streak decreased from %d to %d at step %d", prev, best, k)
			}
			prev = best
		}
	}
}

func TestCalculateAll(t *testing.T) {
	habits := []model.Habit{{ID: "a", Name: "Read"}, {ID: "b", Name: "Run"}, {ID: "c", Name: "Sleep"}}
	logs := []model.HabitLog{
		{HabitID: "a", LogDate: today, IsCompleted: true},
		{HabitID: "a", LogDate: today.AddDays(-1), IsCompleted: true},
		{HabitID: "b", LogDate: today, IsCompleted: false},
		{HabitID: "c", IsCompleted: true},
	}

	rows := CalculateAll(habits, logs, today)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Name != "Read" || rows[0].CurrentStreak != 2 || rows[0].HabitID != "a" {
		t.Errorf("unexpected row for a: %+v", rows[0])
	}
	if rows[1].TotalDays != 1 || rows[1].CompletedDays != 0 {
		t.Errorf("unexpected row for b: %+v", rows[1])
	}
	if rows[2].TotalDays != 0 {
		t.Errorf("log without date should be ignored: %+v", rows[2])
	}
}
