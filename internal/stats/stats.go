// Package stats computes streak and completion statistics from daily habit logs.
package stats

import (
	"sort"

	"github.com/templui/habits/internal/model"
)

// staleAfterDays is how old the latest log may be before the current streak
// is considered broken.
const staleAfterDays = 1.1

// Calculate aggregates the logs of a single habit as of today. Logs may be in
// any order; when a date appears more than once the last one wins.
func Calculate(habitID string, logs []model.HabitLog, today model.Date) model.HabitStats {
	result := model.HabitStats{HabitID: habitID}
	if len(logs) == 0 {
		return result
	}

	byDate := make(map[model.Date]bool, len(logs))
	for _, log := range logs {
		byDate[log.LogDate] = log.IsCompleted
	}

	dates := make([]model.Date, 0, len(byDate))
	for d, completed := range byDate {
		dates = append(dates, d)
		if completed {
			result.CompletedDays++
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	result.TotalDays = len(dates)

	var tempStreak int
	var lastDate model.Date
	for i, d := range dates {
		if byDate[d] {
			if i > 0 && d.DaysSince(lastDate) == 1 {
				tempStreak++
			} else {
				tempStreak = 1
			}
			result.BestStreak = max(result.BestStreak, tempStreak)
			if !d.After(today) {
				result.CurrentStreak = tempStreak
			}
		} else {
			tempStreak = 0
		}
		lastDate = d
	}

	latest := dates[len(dates)-1]
	if !byDate[latest] || today.DaysSince(latest) > staleAfterDays {
		result.CurrentStreak = 0
	}

	result.CompletionRate = 100 * float64(result.CompletedDays) / float64(result.TotalDays)
	return result
}

// CalculateAll groups logs by habit and returns one row per habit in the
// order the habits were given. Logs without a date are ignored.
func CalculateAll(habits []model.Habit, logs []model.HabitLog, today model.Date) []model.HabitWithStats {
	byHabit := make(map[string][]model.HabitLog)
	for _, log := range logs {
		if log.LogDate.IsZero() {
			continue
		}
		byHabit[log.HabitID] = append(byHabit[log.HabitID], log)
	}

	rows := make([]model.HabitWithStats, 0, len(habits))
	for _, h := range habits {
		rows = append(rows, model.HabitWithStats{
			Habit:      h,
			HabitStats: Calculate(h.ID, byHabit[h.ID], today),
		})
	}
	return rows
}
