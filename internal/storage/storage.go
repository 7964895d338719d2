// Package storage persists habits and their progress.
package storage

import (
	"context"
	"errors"

	"github.com/conorfennell/habbit/internal/domain"
)

// ErrNotFound is returned when a habit does not exist for the user.
var ErrNotFound = errors.New("habit not found")

// Store is the persistence boundary. Every call is scoped to one user.
type Store interface {
	// ListHabits returns the user's habits, newest first, each with its progress.
	ListHabits(ctx context.Context, userID string) ([]domain.Habit, error)
	GetHabit(ctx context.Context, userID, id string) (*domain.Habit, error)
	CreateHabit(ctx context.Context, userID string, in domain.HabitInput) (*domain.Habit, error)
	UpdateHabit(ctx context.Context, userID, id string, p domain.HabitPatch) (*domain.Habit, error)
	// DeleteHabit removes the habit and all of its progress.
	DeleteHabit(ctx context.Context, userID, id string) error
	// SetProgress records status for date. StatusNone deletes the entry.
	SetProgress(ctx context.Context, userID, habitID, date string, status domain.Status) error
	// ProgressInRange returns entries with start <= date <= end, ordered by date.
	ProgressInRange(ctx context.Context, userID, habitID, start, end string) ([]domain.ProgressEntry, error)
	// Statistics returns the precomputed statistics, or nil when the store has none.
	Statistics(ctx context.Context, userID, habitID string) (*domain.Statistics, error)
	Ping(ctx context.Context) error
	Close() error
}
