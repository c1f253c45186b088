package model

// HabitLog records whether a habit was completed on one calendar day.
type HabitLog struct {
	ID          string `db:"id" json:"id,omitempty"`
	HabitID     string `db:"habit_id" json:"habit_id,omitempty"`
	LogDate     Date   `db:"log_date" json:"log_date"`
	IsCompleted bool   `db:"is_completed" json:"is_completed"`
}
