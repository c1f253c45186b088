package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/templui/habits/internal/model"
)

type jsonExport struct {
	ExportedAt string      `json:"exported_at"`
	Count      int         `json:"count"`
	Habits     []jsonHabit `json:"habits"`
}

type jsonHabit struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Frequency      string  `json:"frequency"`
	CreatedAt      string  `json:"created_at,omitempty"`
	CurrentStreak  int     `json:"current_streak"`
	BestStreak     int     `json:"best_streak"`
	CompletedDays  int     `json:"completed_days"`
	TotalDays      int     `json:"total_days"`
	CompletionRate float64 `json:"completion_rate"`
}

func ToJSON(rows []model.HabitWithStats, path string) error {
	export := jsonExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      len(rows),
		Habits:     []jsonHabit{},
	}

	for _, r := range rows {
		export.Habits = append(export.Habits, jsonHabit{
			ID:             r.ID,
			Name:           r.Name,
			Frequency:      r.Frequency,
			CreatedAt:      formatTime(r.CreatedAt),
			CurrentStreak:  r.CurrentStreak,
			BestStreak:     r.BestStreak,
			CompletedDays:  r.CompletedDays,
			TotalDays:      r.TotalDays,
			CompletionRate: r.CompletionRate,
		})
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}

// Write exports rows to path in format.
func Write(format string, rows []model.HabitWithStats, path string) error {
	switch format {
	case FormatCSV:
		return ToCSV(rows, path)
	case FormatJSON:
		return ToJSON(rows, path)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}
