package model

// HabitStats is derived from a habit's logs and never persisted.
type HabitStats struct {
	HabitID        string  `json:"habit_id"`
	CompletionRate float64 `json:"completion_rate"`
	CurrentStreak  int     `json:"current_streak"`
	BestStreak     int     `json:"best_streak"`
	TotalDays      int     `json:"total_days"`
	CompletedDays  int     `json:"completed_days"`
}

// HabitWithStats is one row of the statistics view.
type HabitWithStats struct {
	Habit
	HabitStats
}
