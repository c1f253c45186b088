package cli

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/templui/habits/internal/model"
)

const (
	markDone = "✓"
	markOpen = "·"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func renderToday(list []model.HabitToday, today model.Date) string {
	t := newTable("", "Habit", "Frequency", "ID")
	done := 0
	for _, h := range list {
		mark := mutedStyle.Render(markOpen)
		if h.IsCompletedToday {
			mark = doneStyle.Render(markDone)
			done++
		}
		t.Row(mark, h.Name, h.Frequency, shortID(h.ID))
	}

	summary := mutedStyle.Render(fmt.Sprintf("%s: %d of %d done", today, done, len(list)))
	return t.String() + "\n" + summary
}

func renderStats(rows []model.HabitWithStats) string {
	t := newTable("Habit", "Streak", "Best", "Done", "Rate")
	for _, r := range rows {
		t.Row(
			r.Name,
			strconv.Itoa(r.CurrentStreak),
			strconv.Itoa(r.BestStreak),
			fmt.Sprintf("%d/%d", r.CompletedDays, r.TotalDays),
			fmt.Sprintf("%.0f%%", r.CompletionRate),
		)
	}
	return t.String()
}
