package transform

import (
	"strings"
	"time"

	"github.com/conorfennell/habbit/internal/domain"
)

// ToHabit converts a persisted row, its progress rows and an optional
// statistics row into a Habit. Empty or null optional fields become nil.
// A nil stats row stays nil so callers can tell "not computed" from zero.
func ToHabit(row HabitRow, progress []ProgressRow, stats *StatisticsRow) domain.Habit {
	h := domain.Habit{
		ID:          row.ID,
		Name:        row.Name,
		Description: optional(row.Description),
		Frequency:   domain.Frequency(row.Frequency),
		StartDate:   row.StartDate,
		EndDate:     optional(row.EndDate),
		TimeOfDay:   optional(row.TimeOfDay),
		Color:       row.Color,
		Icon:        row.Icon,
		IsArchived:  row.IsArchived,
		Goal:        row.Goal,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		Progress:    make([]domain.ProgressEntry, 0, len(progress)),
	}
	for _, p := range progress {
		h.Progress = append(h.Progress, domain.ProgressEntry{
			Date:   p.Date,
			Status: domain.Status(p.Status),
		})
	}
	if stats != nil {
		h.Statistics = &domain.Statistics{
			CompletedCount: stats.CompletedCount,
			FailedCount:    stats.FailedCount,
			SkippedCount:   stats.SkippedCount,
			CompletionRate: stats.CompletionRate,
		}
	}
	return h
}

// FromInput builds the insert row for a new habit. Text fields are trimmed.
func FromInput(id, userID string, in domain.HabitInput, now time.Time) HabitRow {
	return HabitRow{
		ID:          id,
		UserID:      userID,
		Name:        strings.TrimSpace(in.Name),
		Description: trimmed(in.Description),
		Frequency:   string(in.Frequency),
		StartDate:   in.StartDate,
		EndDate:     trimmed(in.EndDate),
		TimeOfDay:   trimmed(in.TimeOfDay),
		Color:       in.Color,
		Icon:        strings.TrimSpace(in.Icon),
		IsArchived:  in.IsArchived,
		Goal:        in.Goal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// PatchColumns returns the column values a patch writes, keyed by column
// name. Only fields set on the patch appear; an optional text field set to
// the empty string maps to NULL.
func PatchColumns(p domain.HabitPatch) map[string]any {
	cols := make(map[string]any)
	if p.Name != nil {
		cols["name"] = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		cols["description"] = trimmed(p.Description)
	}
	if p.Icon != nil {
		cols["icon"] = strings.TrimSpace(*p.Icon)
	}
	if p.Color != nil {
		cols["color"] = *p.Color
	}
	if p.Frequency != nil {
		cols["frequency"] = string(*p.Frequency)
	}
	if p.StartDate != nil {
		cols["start_date"] = *p.StartDate
	}
	if p.EndDate != nil {
		cols["end_date"] = trimmed(p.EndDate)
	}
	if p.TimeOfDay != nil {
		cols["time_of_day"] = trimmed(p.TimeOfDay)
	}
	if p.Goal != nil {
		cols["goal"] = *p.Goal
	}
	if p.IsArchived != nil {
		cols["is_archived"] = *p.IsArchived
	}
	return cols
}

// PatchOrder is the column order used when building statements from PatchColumns.
var PatchOrder = []string{
	"name", "description", "icon", "color", "frequency",
	"start_date", "end_date", "time_of_day", "goal", "is_archived",
}

// GroupProgress buckets progress rows by habit id, keeping row order.
func GroupProgress(rows []ProgressRow) map[string][]ProgressRow {
	out := make(map[string][]ProgressRow)
	for _, r := range rows {
		out[r.HabitID] = append(out[r.HabitID], r)
	}
	return out
}

// IndexStatistics maps statistics rows by habit id.
func IndexStatistics(rows []StatisticsRow) map[string]*StatisticsRow {
	out := make(map[string]*StatisticsRow, len(rows))
	for i := range rows {
		out[rows[i].HabitID] = &rows[i]
	}
	return out
}

func optional(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

// trimmed returns nil for a nil or blank value, otherwise the trimmed text.
// A nil return is written as NULL.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
