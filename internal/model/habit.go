package model

import (
	"time"
)

const (
	FrequencyDaily    = "daily"
	FrequencyWeekly   = "weekly"
	FrequencyWeekdays = "weekdays"
	FrequencyWeekends = "weekends"
)

// Frequencies lists the accepted frequency descriptors.
var Frequencies = []string{
	FrequencyDaily,
	FrequencyWeekly,
	FrequencyWeekdays,
	FrequencyWeekends,
}

// Habit is owned by exactly one user. ID and CreatedAt are assigned by the
// backend.
type Habit struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Frequency string    `db:"frequency" json:"frequency"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// HabitToday is a habit with today's completion flag attached.
type HabitToday struct {
	Habit
	IsCompletedToday bool `json:"is_completed_today"`
}
