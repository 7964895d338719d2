package transform

import (
	"testing"
	"time"

	"github.com/conorfennell/habbit/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestToHabit(t *testing.T) {
	created := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	row := HabitRow{
		ID:          "h1",
		UserID:      "u1",
		Name:        "Read",
		Description: nil,
		Frequency:   "daily",
		StartDate:   "2024-02-01",
		EndDate:     strPtr(""),
		TimeOfDay:   strPtr("07:30"),
		Color:       "#4F46E5",
		Icon:        "📚",
		Goal:        20,
		CreatedAt:   created,
		UpdatedAt:   created,
	}

	t.Run("absent progress and statistics", func(t *testing.T) {
		h := ToHabit(row, nil, nil)
		if h.Progress == nil || len(h.Progress) != 0 {
			t.Errorf("Expected empty non-nil progress, but got %#v", h.Progress)
		}
		if h.Statistics != nil {
			t.Errorf("Expected statistics to stay nil, but got %+v", h.Statistics)
		}
		if h.Description != nil || h.EndDate != nil {
			t.Errorf("Expected null and empty optional fields to become nil, but got %v and %v", h.Description, h.EndDate)
		}
		if h.TimeOfDay == nil || *h.TimeOfDay != "07:30" {
			t.Errorf("Expected time of day 07:30, but got %v", h.TimeOfDay)
		}
		if h.Frequency != domain.Daily {
			t.Errorf("Expected frequency daily, but got %q", h.Frequency)
		}
	})

	t.Run("progress and zero statistics", func(t *testing.T) {
		progress := []ProgressRow{
			{HabitID: "h1", Date: "2024-02-02", Status: "completed"},
			{HabitID: "h1", Date: "2024-02-01", Status: "failed"},
		}
		h := ToHabit(row, progress, &StatisticsRow{HabitID: "h1"})
		if len(h.Progress) != 2 || h.Progress[0].Date != "2024-02-02" || h.Progress[1].Status != domain.StatusFailed {
			t.Errorf("Expected progress in row order, but got %v", h.Progress)
		}
		if h.Statistics == nil {
			t.Fatal("Expected a zeroed statistics object, but got nil")
		}
		if *h.Statistics != (domain.Statistics{}) {
			t.Errorf("Expected zero statistics, but got %+v", h.Statistics)
		}
	})
}

func TestFromInput(t *testing.T) {
	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	in := domain.HabitInput{
		Name:        "  Walk  ",
		Description: strPtr("   "),
		Icon:        "🚶",
		Color:       "#000000",
		Frequency:   domain.Weekly,
		StartDate:   "2024-02-01",
		Goal:        4,
	}
	row := FromInput("id", "user", in, now)
	if row.Name != "Walk" {
		t.Errorf("Expected trimmed name, but got %q", row.Name)
	}
	if row.Description != nil {
		t.Errorf("Expected blank description to be NULL, but got %q", *row.Description)
	}
	if !row.CreatedAt.Equal(now) || !row.UpdatedAt.Equal(now) {
		t.Errorf("Expected timestamps set to now, but got %v and %v", row.CreatedAt, row.UpdatedAt)
	}
	if row.UserID != "user" || row.ID != "id" || row.Frequency != "weekly" {
		t.Errorf("Unexpected row %+v", row)
	}
}

func TestPatchColumns(t *testing.T) {
	goal := 10
	archived := true
	cols := PatchColumns(domain.HabitPatch{
		Name:       strPtr("Run"),
		EndDate:    strPtr(""),
		Goal:       &goal,
		IsArchived: &archived,
	})

	if len(cols) != 4 {
		t.Fatalf("Expected 4 columns, but got %v", cols)
	}
	if cols["name"] != "Run" || cols["goal"] != 10 || cols["is_archived"] != true {
		t.Errorf("Unexpected columns %v", cols)
	}
	if v, ok := cols["end_date"].(*string); !ok || v != nil {
		t.Errorf("Expected end_date to be cleared, but got %#v", cols["end_date"])
	}
	if _, ok := cols["description"]; ok {
		t.Error("Expected unset description to be absent")
	}
	if len(PatchColumns(domain.HabitPatch{})) != 0 {
		t.Error("Expected no columns for an empty patch")
	}
}

func TestGroupAndIndex(t *testing.T) {
	grouped := GroupProgress([]ProgressRow{
		{HabitID: "a", Date: "1"}, {HabitID: "b", Date: "2"}, {HabitID: "a", Date: "3"},
	})
	if len(grouped["a"]) != 2 || grouped["a"][1].Date != "3" || len(grouped["b"]) != 1 {
		t.Errorf("Unexpected grouping %v", grouped)
	}

	idx := IndexStatistics([]StatisticsRow{{HabitID: "a", CompletedCount: 1}, {HabitID: "b", CompletedCount: 2}})
	if idx["b"].CompletedCount != 2 || idx["c"] != nil {
		t.Errorf("Unexpected index %v", idx)
	}
}
