package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/templui/habits/internal/model"
)

func sampleRows() []model.HabitWithStats {
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return []model.HabitWithStats{
		{
			Habit: model.Habit{ID: "h1", Name: "Read", Frequency: "daily", CreatedAt: created},
			HabitStats: model.HabitStats{
				HabitID: "h1", CurrentStreak: 2, BestStreak: 2,
				CompletedDays: 3, TotalDays: 4, CompletionRate: 75,
			},
		},
		{
			Habit:      model.Habit{ID: "h2", Name: `Stretch, "deep"`, Frequency: "weekly", CreatedAt: created},
			HabitStats: model.HabitStats{HabitID: "h2"},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}

func TestToCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")

	if err := ToCSV(sampleRows(), path); err != nil {
		t.Fatalf("ToCSV: %v", err)
	}

	records := readCSV(t, path)
	if len(records) != 3 {
		t.Fatalf("expected 3 rows (1 header + 2 data), got %d", len(records))
	}
	if strings.Join(records[0], "|") != strings.Join(csvHeader, "|") {
		t.Fatalf("header = %v", records[0])
	}

	want := []string{"h1", "Read", "daily", "2026-03-01T08:00:00Z", "2", "2", "3", "4", "75.0"}
	for i, v := range want {
		if records[1][i] != v {
			t.Fatalf("row[%d] = %q, want %q", i, records[1][i], v)
		}
	}

	if records[2][1] != `Stretch, "deep"` {
		t.Fatalf("name mangled: %q", records[2][1])
	}
	if records[2][8] != "0.0" {
		t.Fatalf("rate = %q, want 0.0", records[2][8])
	}
}

func TestToCSVEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := ToCSV(nil, path); err != nil {
		t.Fatal(err)
	}
	if records := readCSV(t, path); len(records) != 1 {
		t.Fatalf("expected header only, got %d rows", len(records))
	}
}

func TestToCSVBadPath(t *testing.T) {
	if err := ToCSV(nil, "/nonexistent/dir/file.csv"); err == nil {
		t.Fatal("expected error for bad path")
	}
}

func TestToJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")

	if err := ToJSON(sampleRows(), path); err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Fatal("JSON should be indented")
	}

	var result jsonExport
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if result.Count != 2 || len(result.Habits) != 2 {
		t.Fatalf("count = %d, habits = %d", result.Count, len(result.Habits))
	}
	if _, err := time.Parse(time.RFC3339, result.ExportedAt); err != nil {
		t.Fatalf("exported_at = %q", result.ExportedAt)
	}

	h := result.Habits[0]
	if h.Name != "Read" || h.CompletionRate != 75 || h.CompletedDays != 3 || h.TotalDays != 4 {
		t.Fatalf("first habit = %+v", h)
	}
}

func TestToJSONEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := ToJSON(nil, path); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"habits": []`) {
		t.Fatalf("empty export should contain an empty list: %s", data)
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()

	for _, format := range []string{FormatCSV, FormatJSON} {
		path := filepath.Join(dir, "out."+format)
		if err := Write(format, sampleRows(), path); err != nil {
			t.Fatalf("Write(%s): %v", format, err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatal(err)
		}
	}

	if err := Write("xml", nil, filepath.Join(dir, "out.xml")); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestFileName(t *testing.T) {
	at := time.Date(2026, 3, 10, 14, 5, 9, 0, time.UTC)
	if got := FileName(FormatCSV, at); got != "habits-20260310-140509.csv" {
		t.Fatalf("FileName = %q", got)
	}
	if ContentType(FormatJSON) != "application/json" || ContentType(FormatCSV) != "text/csv" {
		t.Fatal("unexpected content types")
	}
}
