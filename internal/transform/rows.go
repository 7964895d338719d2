package transform

import "time"

// HabitRow is a row of the habits relation.
type HabitRow struct {
	ID          string    `json:"id,omitempty"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Frequency   string    `json:"frequency"`
	StartDate   string    `json:"start_date"`
	EndDate     *string   `json:"end_date"`
	TimeOfDay   *string   `json:"time_of_day"`
	Color       string    `json:"color"`
	Icon        string    `json:"icon"`
	IsArchived  bool      `json:"is_archived"`
	Goal        int       `json:"goal"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProgressRow is a row of the habit_progress relation, keyed by (habit_id, date).
type ProgressRow struct {
	HabitID   string    `json:"habit_id"`
	Date      string    `json:"date"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// StatisticsRow is a row of the read-only habit_statistics view.
type StatisticsRow struct {
	HabitID        string  `json:"habit_id"`
	UserID         string  `json:"user_id"`
	Name           string  `json:"name"`
	CompletedCount int     `json:"completed_count"`
	FailedCount    int     `json:"failed_count"`
	SkippedCount   int     `json:"skipped_count"`
	CompletionRate float64 `json:"completion_rate"`
}
