package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/habbit/internal/auth"
	"github.com/conorfennell/habbit/internal/domain"
	"github.com/conorfennell/habbit/internal/progress"
	"github.com/conorfennell/habbit/internal/tablestore"
	"github.com/conorfennell/habbit/internal/transform"
	"github.com/google/uuid"
)

const (
	tableHabits    = "habits"
	tableProgress  = "habit_progress"
	viewStatistics = "habit_statistics"
	nilHabitID     = "00000000-0000-0000-0000-000000000000"
)

// TableStore is a Store backed by the hosted table store. Requests carry the
// bearer token of the session found in the context.
type TableStore struct {
	client *tablestore.Client
	now    func() time.Time
}

// NewTableStore creates a store on top of client.
func NewTableStore(client *tablestore.Client) *TableStore {
	return &TableStore{client: client, now: time.Now}
}

func (t *TableStore) from(ctx context.Context, table string) *tablestore.Query {
	c := t.client
	if s, ok := auth.FromContext(ctx); ok && s.Token != nil {
		c = c.WithToken(s.Token)
	}
	return c.From(table)
}

func (t *TableStore) ListHabits(ctx context.Context, userID string) ([]domain.Habit, error) {
	var habitRows []transform.HabitRow
	err := t.from(ctx, tableHabits).
		Select("*").
		Eq("user_id", userID).
		Order("created_at", false).
		Get(ctx, &habitRows)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	if len(habitRows) == 0 {
		return []domain.Habit{}, nil
	}

	ids := make([]string, 0, len(habitRows))
	for _, r := range habitRows {
		ids = append(ids, r.ID)
	}

	var progressRows []transform.ProgressRow
	err = t.from(ctx, tableProgress).
		Select("*").
		In("habit_id", ids...).
		Order("created_at", true).
		Get(ctx, &progressRows)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}

	var statsRows []transform.StatisticsRow
	err = t.from(ctx, viewStatistics).
		Select("*").
		Eq("user_id", userID).
		Get(ctx, &statsRows)
	if err != nil {
		return nil, fmt.Errorf("failed to list statistics: %w", err)
	}

	byHabit := transform.GroupProgress(progressRows)
	statsByHabit := transform.IndexStatistics(statsRows)
	habits := make([]domain.Habit, 0, len(habitRows))
	for _, r := range habitRows {
		habits = append(habits, transform.ToHabit(r, byHabit[r.ID], statsByHabit[r.ID]))
	}
	return habits, nil
}

func (t *TableStore) habitRow(ctx context.Context, userID, id string) (*transform.HabitRow, error) {
	var r transform.HabitRow
	err := t.from(ctx, tableHabits).
		Select("*").
		Eq("id", id).
		Eq("user_id", userID).
		Single().
		Get(ctx, &r)
	if err != nil {
		if errors.Is(err, tablestore.ErrNoRows) {
			return nil, fmt.Errorf("habit %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get habit %s: %w", id, err)
	}
	return &r, nil
}

func (t *TableStore) GetHabit(ctx context.Context, userID, id string) (*domain.Habit, error) {
	r, err := t.habitRow(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	var progressRows []transform.ProgressRow
	err = t.from(ctx, tableProgress).
		Select("*").
		Eq("habit_id", id).
		Order("created_at", true).
		Get(ctx, &progressRows)
	if err != nil {
		return nil, fmt.Errorf("failed to get progress for habit %s: %w", id, err)
	}

	stats, err := t.statisticsRow(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	h := transform.ToHabit(*r, progressRows, stats)
	return &h, nil
}

func (t *TableStore) CreateHabit(ctx context.Context, userID string, in domain.HabitInput) (*domain.Habit, error) {
	row := transform.FromInput(uuid.NewString(), userID, in, t.now().UTC())
	var created []transform.HabitRow
	if err := t.from(ctx, tableHabits).Insert(ctx, row, &created); err != nil {
		return nil, fmt.Errorf("failed to insert habit: %w", err)
	}
	if len(created) == 1 {
		row = created[0]
	}
	h := transform.ToHabit(row, nil, nil)
	return &h, nil
}

// nextUpdatedAt reads the habit and returns its advanced updated_at.
func (t *TableStore) nextUpdatedAt(ctx context.Context, userID, id string) (time.Time, error) {
	r, err := t.habitRow(ctx, userID, id)
	if err != nil {
		return time.Time{}, err
	}
	h := domain.Habit{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	progress.Touch(&h, t.now().UTC())
	return h.UpdatedAt.UTC(), nil
}

func (t *TableStore) UpdateHabit(ctx context.Context, userID, id string, p domain.HabitPatch) (*domain.Habit, error) {
	updatedAt, err := t.nextUpdatedAt(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	cols := transform.PatchColumns(p)
	cols["updated_at"] = updatedAt

	var updated []transform.HabitRow
	err = t.from(ctx, tableHabits).
		Eq("id", id).
		Eq("user_id", userID).
		Update(ctx, cols, &updated)
	if err != nil {
		return nil, fmt.Errorf("failed to update habit %s: %w", id, err)
	}
	if len(updated) == 0 {
		return nil, fmt.Errorf("habit %s: %w", id, ErrNotFound)
	}
	return t.GetHabit(ctx, userID, id)
}

// DeleteHabit deletes the progress and then the habit. The store has no
// transactions, so a failure after the first request leaves the habit with
// no progress and is reported.
func (t *TableStore) DeleteHabit(ctx context.Context, userID, id string) error {
	if _, err := t.habitRow(ctx, userID, id); err != nil {
		return err
	}
	if err := t.from(ctx, tableProgress).Eq("habit_id", id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete progress for habit %s: %w", id, err)
	}
	if err := t.from(ctx, tableHabits).Eq("id", id).Eq("user_id", userID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete habit %s: %w", id, err)
	}
	return nil
}

// progressWrite leaves created_at to the store's default so an overwrite
// keeps the entry's original position.
type progressWrite struct {
	HabitID   string    `json:"habit_id"`
	Date      string    `json:"date"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetProgress advances the habit's updated_at before writing the entry, so a
// failed write leaves at most a newer timestamp behind.
func (t *TableStore) SetProgress(ctx context.Context, userID, habitID, date string, status domain.Status) error {
	updatedAt, err := t.nextUpdatedAt(ctx, userID, habitID)
	if err != nil {
		return err
	}
	err = t.from(ctx, tableHabits).
		Eq("id", habitID).
		Eq("user_id", userID).
		Update(ctx, map[string]any{"updated_at": updatedAt}, nil)
	if err != nil {
		return fmt.Errorf("failed to touch habit %s: %w", habitID, err)
	}

	if status == domain.StatusNone {
		err = t.from(ctx, tableProgress).
			Eq("habit_id", habitID).
			Eq("date", date).
			Delete(ctx)
	} else {
		err = t.from(ctx, tableProgress).
			OnConflict("habit_id", "date").
			Upsert(ctx, progressWrite{
				HabitID:   habitID,
				Date:      date,
				Status:    string(status),
				UpdatedAt: t.now().UTC(),
			})
	}
	if err != nil {
		return fmt.Errorf("failed to set progress for habit %s on %s: %w", habitID, date, err)
	}
	return nil
}

func (t *TableStore) ProgressInRange(ctx context.Context, userID, habitID, start, end string) ([]domain.ProgressEntry, error) {
	if _, err := t.habitRow(ctx, userID, habitID); err != nil {
		return nil, err
	}
	var rows []transform.ProgressRow
	err := t.from(ctx, tableProgress).
		Select("*").
		Eq("habit_id", habitID).
		Gte("date", start).
		Lte("date", end).
		Order("date", true).
		Get(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get progress range for habit %s: %w", habitID, err)
	}
	entries := make([]domain.ProgressEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, domain.ProgressEntry{Date: r.Date, Status: domain.Status(r.Status)})
	}
	return entries, nil
}

func (t *TableStore) Statistics(ctx context.Context, userID, habitID string) (*domain.Statistics, error) {
	r, err := t.statisticsRow(ctx, userID, habitID)
	if err != nil || r == nil {
		return nil, err
	}
	return &domain.Statistics{
		CompletedCount: r.CompletedCount,
		FailedCount:    r.FailedCount,
		SkippedCount:   r.SkippedCount,
		CompletionRate: r.CompletionRate,
	}, nil
}

func (t *TableStore) statisticsRow(ctx context.Context, userID, habitID string) (*transform.StatisticsRow, error) {
	var r transform.StatisticsRow
	err := t.from(ctx, viewStatistics).
		Select("*").
		Eq("habit_id", habitID).
		Eq("user_id", userID).
		Single().
		Get(ctx, &r)
	if err != nil {
		if errors.Is(err, tablestore.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get statistics for habit %s: %w", habitID, err)
	}
	return &r, nil
}

// Ping issues a cheap read that matches no rows.
func (t *TableStore) Ping(ctx context.Context) error {
	var rows []transform.HabitRow
	if err := t.from(ctx, tableHabits).Select("id").Eq("id", nilHabitID).Get(ctx, &rows); err != nil {
		return fmt.Errorf("failed to reach table store: %w", err)
	}
	return nil
}

func (t *TableStore) Close() error { return nil }
