// Package habits is the application service between the web layer and the
// store. It validates input, performs each operation, and reports which
// views the operation made stale.
package habits

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/habbit/internal/domain"
	"github.com/conorfennell/habbit/internal/progress"
	"github.com/conorfennell/habbit/internal/stats"
	"github.com/conorfennell/habbit/internal/storage"
	"github.com/go-playground/validator/v10"
)

// View names a piece of rendered state that a mutation can make stale.
type View string

const (
	ViewHabitList  View = "habit-list"
	ViewDashboard  View = "dashboard"
	ViewHabit      View = "habit"
	ViewProgress   View = "progress"
	ViewStatistics View = "statistics"
)

// Declared invalidations per operation. The web layer re-renders exactly these.
var (
	createInvalidates   = []View{ViewHabitList, ViewDashboard}
	updateInvalidates   = []View{ViewHabit, ViewHabitList, ViewDashboard}
	deleteInvalidates   = []View{ViewHabit, ViewHabitList, ViewDashboard, ViewProgress, ViewStatistics}
	progressInvalidates = []View{ViewHabit, ViewProgress, ViewStatistics, ViewDashboard}
)

// Result is the outcome of a mutation.
type Result struct {
	// Habit is the habit as stored after the mutation; nil after a delete.
	Habit *domain.Habit
	// Status is the status written by a progress operation.
	Status      domain.Status
	Invalidates []View
}

// Invalidated reports whether v is stale after the mutation.
func (r Result) Invalidated(v View) bool {
	for _, x := range r.Invalidates {
		if x == v {
			return true
		}
	}
	return false
}

// Dashboard is the data behind the dashboard page.
type Dashboard struct {
	Habits  []domain.Habit `json:"habits"`
	Summary stats.Summary  `json:"summary"`
}

type Service struct {
	store    storage.Store
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a service over store.
func NewService(store storage.Store) *Service {
	return &Service{
		store:    store,
		validate: newValidator(),
		now:      time.Now,
	}
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// List returns the user's habits, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Habit, error) {
	habits, err := s.store.ListHabits(ctx, userID)
	if err != nil {
		return nil, err
	}
	return habits, nil
}

// Get returns one habit.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Habit, error) {
	return s.store.GetHabit(ctx, userID, id)
}

// Create validates in and stores a new habit.
func (s *Service) Create(ctx context.Context, userID string, in domain.HabitInput) (Result, error) {
	if err := s.check(in); err != nil {
		return Result{}, err
	}
	h, err := s.store.CreateHabit(ctx, userID, in)
	if err != nil {
		return Result{}, err
	}
	slog.Info("habit created", "id", h.ID, "user", userID)
	return Result{Habit: h, Invalidates: createInvalidates}, nil
}

// Update applies p to the habit. Dates are checked against the merged result.
func (s *Service) Update(ctx context.Context, userID, id string, p domain.HabitPatch) (Result, error) {
	if err := s.check(p); err != nil {
		return Result{}, err
	}
	if p.StartDate != nil || p.EndDate != nil {
		current, err := s.store.GetHabit(ctx, userID, id)
		if err != nil {
			return Result{}, err
		}
		merged := *current
		p.Apply(&merged)
		if merged.EndDate != nil && endsBeforeStart(merged.StartDate, *merged.EndDate) {
			return Result{}, invalid("endDate", messages["gtefield"])
		}
	}
	h, err := s.store.UpdateHabit(ctx, userID, id, p)
	if err != nil {
		return Result{}, err
	}
	slog.Info("habit updated", "id", id, "user", userID)
	return Result{Habit: h, Invalidates: updateInvalidates}, nil
}

// Delete removes the habit and all of its progress.
func (s *Service) Delete(ctx context.Context, userID, id string) (Result, error) {
	if err := s.store.DeleteHabit(ctx, userID, id); err != nil {
		return Result{}, err
	}
	slog.Info("habit deleted", "id", id, "user", userID)
	return Result{Invalidates: deleteInvalidates}, nil
}

// SetProgress records status for date. StatusNone removes the entry.
func (s *Service) SetProgress(ctx context.Context, userID, id, date string, status domain.Status) (Result, error) {
	if date == "" || !validDate(date) {
		return Result{}, invalid("date", messages["date"])
	}
	if status != domain.StatusNone && !status.Valid() {
		return Result{}, invalid("status", messages["oneof"])
	}
	return s.writeProgress(ctx, userID, id, date, status)
}

// Toggle advances the status of (habit, date) one step through the cycle
// none, completed, failed, skipped. The new status is only reported once the
// store has accepted it.
func (s *Service) Toggle(ctx context.Context, userID, id, date string) (Result, error) {
	if date == "" || !validDate(date) {
		return Result{}, invalid("date", messages["date"])
	}
	h, err := s.store.GetHabit(ctx, userID, id)
	if err != nil {
		return Result{}, err
	}
	return s.writeProgress(ctx, userID, id, date, progress.Next(h.StatusOn(date)))
}

func (s *Service) writeProgress(ctx context.Context, userID, id, date string, status domain.Status) (Result, error) {
	if err := s.store.SetProgress(ctx, userID, id, date, status); err != nil {
		return Result{}, err
	}
	h, err := s.store.GetHabit(ctx, userID, id)
	if err != nil {
		return Result{}, err
	}
	slog.Debug("progress recorded", "habit", id, "date", date, "status", status)
	return Result{Habit: h, Status: status, Invalidates: progressInvalidates}, nil
}

// ProgressInRange returns entries with start <= date <= end, ordered by date.
func (s *Service) ProgressInRange(ctx context.Context, userID, id, start, end string) ([]domain.ProgressEntry, error) {
	if start == "" || !validDate(start) {
		return nil, invalid("start", messages["date"])
	}
	if end == "" || !validDate(end) {
		return nil, invalid("end", messages["date"])
	}
	if end < start {
		return nil, invalid("end", "must not be before start")
	}
	return s.store.ProgressInRange(ctx, userID, id, start, end)
}

// Statistics returns the habit's statistics. Precomputed values from the
// store win; otherwise they are aggregated from progress.
func (s *Service) Statistics(ctx context.Context, userID, id string) (domain.Statistics, error) {
	pre, err := s.store.Statistics(ctx, userID, id)
	if err != nil {
		return domain.Statistics{}, err
	}
	if pre != nil {
		return *pre, nil
	}
	h, err := s.store.GetHabit(ctx, userID, id)
	if err != nil {
		return domain.Statistics{}, err
	}
	return stats.Resolve(*h), nil
}

// Dashboard returns the user's habits and their summary as of now.
func (s *Service) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	habits, err := s.store.ListHabits(ctx, userID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("failed to load dashboard: %w", err)
	}
	return Dashboard{
		Habits:  habits,
		Summary: stats.Summarize(habits, s.now()),
	}, nil
}
