package domain

import "time"

// DateLayout is the calendar date format used for progress entries and schedules.
const DateLayout = "2006-01-02"

// TimeOfDayLayout is the format of a habit's optional reminder time.
const TimeOfDayLayout = "15:04"

// Frequency is how often a habit is meant to be performed.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// Status is the outcome recorded for a habit on a given day.
// StatusNone means no entry exists for that day and is never persisted.
type Status string

const (
	StatusNone      Status = ""
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Valid reports whether s is one of the persisted statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// ProgressEntry is one day's outcome for a habit.
type ProgressEntry struct {
	Date   string `json:"date"`
	Status Status `json:"status"`
}

// Statistics are derived counts over a habit's progress. They are never authoritative.
type Statistics struct {
	CompletedCount int     `json:"completedCount"`
	FailedCount    int     `json:"failedCount"`
	SkippedCount   int     `json:"skippedCount"`
	CompletionRate float64 `json:"completionRate"`
}

// Habit is a tracked routine together with its progress.
type Habit struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Icon        string          `json:"icon"`
	Color       string          `json:"color"`
	Frequency   Frequency       `json:"frequency"`
	StartDate   string          `json:"startDate"`
	EndDate     *string         `json:"endDate,omitempty"`
	TimeOfDay   *string         `json:"timeOfDay,omitempty"`
	Goal        int             `json:"goal"`
	IsArchived  bool            `json:"isArchived"`
	Progress    []ProgressEntry `json:"progress"`
	// Statistics is nil when no precomputed view row was available.
	Statistics *Statistics `json:"statistics,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// StatusOn returns the recorded status for date, or StatusNone.
func (h *Habit) StatusOn(date string) Status {
	for _, p := range h.Progress {
		if p.Date == date {
			return p.Status
		}
	}
	return StatusNone
}

// CompletedCount returns the number of completed progress entries.
func (h *Habit) CompletedCount() int {
	n := 0
	for _, p := range h.Progress {
		if p.Status == StatusCompleted {
			n++
		}
	}
	return n
}

// User is an authenticated account as seen by the application.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
