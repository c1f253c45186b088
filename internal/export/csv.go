// Package export writes habit statistics to CSV and JSON files.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/templui/habits/internal/model"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

var csvHeader = []string{
	"ID", "Name", "Frequency", "Created", "Current Streak", "Best Streak",
	"Completed Days", "Total Days", "Completion Rate (%)",
}

func ToCSV(rows []model.HabitWithStats, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	if err := w.Write(csvHeader); err != nil {
		return err
	}

	for _, r := range rows {
		record := []string{
			r.ID,
			r.Name,
			r.Frequency,
			formatTime(r.CreatedAt),
			strconv.Itoa(r.CurrentStreak),
			strconv.Itoa(r.BestStreak),
			strconv.Itoa(r.CompletedDays),
			strconv.Itoa(r.TotalDays),
			formatRate(r.CompletionRate),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// FileName is the default export file name for format at t.
func FileName(format string, t time.Time) string {
	return "habits-" + t.UTC().Format("20060102-150405") + "." + format
}

// ContentType returns the MIME type of format.
func ContentType(format string) string {
	if format == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 1, 64)
}
