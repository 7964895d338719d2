package domain

import (
	"strings"
	"time"
)

// Form defaults for a new habit.
const (
	DefaultColor     = "#4F46E5"
	DefaultIcon      = "📝"
	DefaultGoal      = 30
	DefaultFrequency = Daily
)

// HabitInput carries the user-editable fields of a new habit.
type HabitInput struct {
	Name        string    `json:"name" validate:"required,notblank,max=200"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=1000"`
	Icon        string    `json:"icon" validate:"required,notblank,max=16"`
	Color       string    `json:"color" validate:"required,max=32"`
	Frequency   Frequency `json:"frequency" validate:"required,oneof=daily weekly monthly"`
	StartDate   string    `json:"startDate" validate:"required,date"`
	EndDate     *string   `json:"endDate,omitempty" validate:"omitempty,date"`
	TimeOfDay   *string   `json:"timeOfDay,omitempty" validate:"omitempty,clock"`
	Goal        int       `json:"goal" validate:"min=1,max=31"`
	IsArchived  bool      `json:"isArchived"`
}

// NewHabitInput returns an input pre-filled with the form defaults.
func NewHabitInput(now time.Time) HabitInput {
	return HabitInput{
		Icon:      DefaultIcon,
		Color:     DefaultColor,
		Frequency: DefaultFrequency,
		StartDate: now.Format(DateLayout),
		Goal:      DefaultGoal,
	}
}

// HabitPatch is a partial update. A nil field is left untouched.
// Identity, timestamps and progress are deliberately absent: progress only
// changes through the progress operations.
type HabitPatch struct {
	Name        *string    `json:"name,omitempty" validate:"omitempty,notblank,max=200"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=1000"`
	Icon        *string    `json:"icon,omitempty" validate:"omitempty,notblank,max=16"`
	Color       *string    `json:"color,omitempty" validate:"omitempty,min=1,max=32"`
	Frequency   *Frequency `json:"frequency,omitempty" validate:"omitempty,oneof=daily weekly monthly"`
	StartDate   *string    `json:"startDate,omitempty" validate:"omitempty,min=1,date"`
	EndDate     *string    `json:"endDate,omitempty" validate:"omitempty,date"`
	TimeOfDay   *string    `json:"timeOfDay,omitempty" validate:"omitempty,clock"`
	Goal        *int       `json:"goal,omitempty" validate:"omitempty,min=1,max=31"`
	IsArchived  *bool      `json:"isArchived,omitempty"`
}

// Empty reports whether the patch sets no field.
func (p HabitPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Icon == nil && p.Color == nil &&
		p.Frequency == nil && p.StartDate == nil && p.EndDate == nil && p.TimeOfDay == nil &&
		p.Goal == nil && p.IsArchived == nil
}

// Apply copies the set fields of p onto h. Text is trimmed, and optional
// text fields set to blank are cleared.
func (p HabitPatch) Apply(h *Habit) {
	if p.Name != nil {
		h.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		h.Description = optional(*p.Description)
	}
	if p.Icon != nil {
		h.Icon = strings.TrimSpace(*p.Icon)
	}
	if p.Color != nil {
		h.Color = *p.Color
	}
	if p.Frequency != nil {
		h.Frequency = *p.Frequency
	}
	if p.StartDate != nil {
		h.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		h.EndDate = optional(*p.EndDate)
	}
	if p.TimeOfDay != nil {
		h.TimeOfDay = optional(*p.TimeOfDay)
	}
	if p.Goal != nil {
		h.Goal = *p.Goal
	}
	if p.IsArchived != nil {
		h.IsArchived = *p.IsArchived
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
