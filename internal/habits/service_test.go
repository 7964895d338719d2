package habits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/conorfennell/habbit/internal/domain"
	"github.com/conorfennell/habbit/internal/storage"
)

func strPtr(s string) *string { return &s }

func newService() *Service {
	s := NewService(storage.NewMemoryStore())
	s.now = func() time.Time { return time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC) }
	return s
}

func validInput(name string) domain.HabitInput {
	in := domain.NewHabitInput(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	in.Name = name
	return in
}

func sameViews(got, want []View) bool {
	if len(got) != len(want) {
		return false
	}
	seen := make(map[View]bool, len(got))
	for _, v := range got {
		seen[v] = true
	}
	for _, v := range want {
		if !seen[v] {
			return false
		}
	}
	return true
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	s := newService()

	tests := []struct {
		name  string
		edit  func(in *domain.HabitInput)
		field string
	}{
		{"missing name", func(in *domain.HabitInput) { in.Name = "" }, "name"},
		{"blank name", func(in *domain.HabitInput) { in.Name = "   " }, "name"},
		{"blank icon", func(in *domain.HabitInput) { in.Icon = " \t" }, "icon"},
		{"goal too small", func(in *domain.HabitInput) { in.Goal = 0 }, "goal"},
		{"goal too large", func(in *domain.HabitInput) { in.Goal = 32 }, "goal"},
		{"unknown frequency", func(in *domain.HabitInput) { in.Frequency = "hourly" }, "frequency"},
		{"bad start date", func(in *domain.HabitInput) { in.StartDate = "01/02/2024" }, "startDate"},
		{"bad end date", func(in *domain.HabitInput) { in.EndDate = strPtr("2024-13-01") }, "endDate"},
		{"end before start", func(in *domain.HabitInput) { in.EndDate = strPtr("2023-12-31") }, "endDate"},
		{"bad time of day", func(in *domain.HabitInput) { in.TimeOfDay = strPtr("25:00") }, "timeOfDay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput("Read")
			tt.edit(&in)
			_, err := s.Create(ctx, "u1", in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected *ValidationError, but got %v", err)
			}
			if _, ok := verr.Fields[tt.field]; !ok {
				t.Errorf("Expected field '%s' to be rejected, but got %v", tt.field, verr.Fields)
			}
		})
	}

	habits, _ := s.List(ctx, "u1")
	if len(habits) != 0 {
		t.Errorf("Expected nothing written after validation failures, but got %d habits", len(habits))
	}

	t.Run("empty optionals are accepted", func(t *testing.T) {
		in := validInput("Read")
		in.EndDate = strPtr("")
		in.TimeOfDay = strPtr("")
		if _, err := s.Create(ctx, "u1", in); err != nil {
			t.Errorf("Expected no error, but got %v", err)
		}
	})
}

func TestInvalidationContract(t *testing.T) {
	ctx := context.Background()
	s := newService()

	created, err := s.Create(ctx, "u1", validInput("Read"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !sameViews(created.Invalidates, []View{ViewHabitList, ViewDashboard}) {
		t.Errorf("Create: unexpected invalidations %v", created.Invalidates)
	}
	id := created.Habit.ID

	updated, err := s.Update(ctx, "u1", id, domain.HabitPatch{Name: strPtr("Read more")})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !sameViews(updated.Invalidates, []View{ViewHabit, ViewHabitList, ViewDashboard}) {
		t.Errorf("Update: unexpected invalidations %v", updated.Invalidates)
	}

	toggled, err := s.Toggle(ctx, "u1", id, "2024-01-10")
	if err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if !sameViews(toggled.Invalidates, []View{ViewHabit, ViewProgress, ViewStatistics, ViewDashboard}) {
		t.Errorf("Toggle: unexpected invalidations %v", toggled.Invalidates)
	}
	if !toggled.Invalidated(ViewStatistics) || toggled.Invalidated(ViewHabitList) {
		t.Errorf("Toggle: Invalidated reports wrong views for %v", toggled.Invalidates)
	}

	deleted, err := s.Delete(ctx, "u1", id)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !sameViews(deleted.Invalidates, []View{ViewHabit, ViewHabitList, ViewDashboard, ViewProgress, ViewStatistics}) {
		t.Errorf("Delete: unexpected invalidations %v", deleted.Invalidates)
	}
	if deleted.Habit != nil {
		t.Errorf("Delete: expected no habit, but got %+v", deleted.Habit)
	}
}

func TestToggleCycle(t *testing.T) {
	ctx := context.Background()
	s := newService()
	created, _ := s.Create(ctx, "u1", validInput("Read"))
	id := created.Habit.ID

	expected := []domain.Status{
		domain.StatusCompleted,
		domain.StatusFailed,
		domain.StatusSkipped,
		domain.StatusNone,
		domain.StatusCompleted,
	}
	for i, want := range expected {
		r, err := s.Toggle(ctx, "u1", id, "2024-01-10")
		if err != nil {
			t.Fatalf("Toggle %d failed: %v", i, err)
		}
		if r.Status != want {
			t.Errorf("Toggle %d: expected '%s', but got '%s'", i, want, r.Status)
		}
		if r.Habit.StatusOn("2024-01-10") != want {
			t.Errorf("Toggle %d: expected stored status '%s', but got '%s'", i, want, r.Habit.StatusOn("2024-01-10"))
		}
	}

	if _, err := s.Toggle(ctx, "u1", id, "yesterday"); err == nil {
		t.Error("Expected an invalid date to be rejected")
	}
	if _, err := s.Toggle(ctx, "u1", "missing", "2024-01-10"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, but got %v", err)
	}
}

func TestUpdateDateOrder(t *testing.T) {
	ctx := context.Background()
	s := newService()
	in := validInput("Read")
	in.EndDate = strPtr("2024-02-01")
	created, _ := s.Create(ctx, "u1", in)

	_, err := s.Update(ctx, "u1", created.Habit.ID, domain.HabitPatch{StartDate: strPtr("2024-03-01")})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields["endDate"] == "" {
		t.Errorf("Expected the merged dates to be rejected, but got %v", err)
	}

	r, err := s.Update(ctx, "u1", created.Habit.ID, domain.HabitPatch{StartDate: strPtr("2024-03-01"), EndDate: strPtr("")})
	if err != nil {
		t.Fatalf("Expected clearing the end date to succeed, but got %v", err)
	}
	if r.Habit.EndDate != nil || r.Habit.StartDate != "2024-03-01" {
		t.Errorf("Unexpected habit after update %+v", r.Habit)
	}

	if _, err := s.Update(ctx, "u1", created.Habit.ID, domain.HabitPatch{StartDate: strPtr("")}); err == nil {
		t.Error("Expected a blank start date to be rejected")
	}
}

func TestUpdateRejectsBlankText(t *testing.T) {
	ctx := context.Background()
	s := newService()
	created, err := s.Create(ctx, "u1", validInput("Read"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	id := created.Habit.ID

	tests := []struct {
		name  string
		patch domain.HabitPatch
		field string
	}{
		{"blank name", domain.HabitPatch{Name: strPtr("  ")}, "name"},
		{"empty name", domain.HabitPatch{Name: strPtr("")}, "name"},
		{"blank icon", domain.HabitPatch{Icon: strPtr(" ")}, "icon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Update(ctx, "u1", id, tt.patch)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected *ValidationError, but got %v", err)
			}
			if verr.Fields[tt.field] != "must not be blank" {
				t.Errorf("Expected '%s' to be reported blank, but got %v", tt.field, verr.Fields)
			}
		})
	}

	h, err := s.Get(ctx, "u1", id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if h.Name != "Read" || h.Icon != domain.DefaultIcon {
		t.Errorf("Expected the habit unchanged, but got name %q icon %q", h.Name, h.Icon)
	}
}

func TestSetProgressAndRange(t *testing.T) {
	ctx := context.Background()
	s := newService()
	created, _ := s.Create(ctx, "u1", validInput("Read"))
	id := created.Habit.ID

	for _, step := range []struct {
		date   string
		status domain.Status
	}{
		{"2024-01-09", domain.StatusCompleted},
		{"2024-01-10", domain.StatusCompleted},
		{"2024-01-08", domain.StatusFailed},
	} {
		if _, err := s.SetProgress(ctx, "u1", id, step.date, step.status); err != nil {
			t.Fatalf("SetProgress failed: %v", err)
		}
	}
	if _, err := s.SetProgress(ctx, "u1", id, "2024-01-10", "done"); err == nil {
		t.Error("Expected an unknown status to be rejected")
	}

	entries, err := s.ProgressInRange(ctx, "u1", id, "2024-01-08", "2024-01-09")
	if err != nil {
		t.Fatalf("ProgressInRange failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Date != "2024-01-08" {
		t.Errorf("Unexpected range %v", entries)
	}
	if _, err := s.ProgressInRange(ctx, "u1", id, "2024-01-09", "2024-01-08"); err == nil {
		t.Error("Expected an inverted range to be rejected")
	}

	st, err := s.Statistics(ctx, "u1", id)
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if st.CompletedCount != 2 || st.FailedCount != 1 {
		t.Errorf("Unexpected statistics %+v", st)
	}

	d, err := s.Dashboard(ctx, "u1")
	if err != nil {
		t.Fatalf("Dashboard failed: %v", err)
	}
	if d.Summary.ActiveHabits != 1 || d.Summary.Streak != 2 || d.Summary.CompletionRate != 67 {
		t.Errorf("Unexpected summary %+v", d.Summary)
	}
	if d.Summary.MostConsistent == nil || d.Summary.MostConsistent.ID != id {
		t.Errorf("Expected the only habit to be most consistent, but got %+v", d.Summary.MostConsistent)
	}
}

type failingStore struct {
	storage.Store
}

var errBoom = errors.New("connection reset")

func (failingStore) CreateHabit(context.Context, string, domain.HabitInput) (*domain.Habit, error) {
	return nil, errBoom
}

func (failingStore) ListHabits(context.Context, string) ([]domain.Habit, error) {
	return nil, errBoom
}

func TestStoreFailuresPropagate(t *testing.T) {
	ctx := context.Background()
	s := NewService(failingStore{})

	if _, err := s.Create(ctx, "u1", validInput("Read")); !errors.Is(err, errBoom) {
		t.Errorf("Expected the store error, but got %v", err)
	}
	if _, err := s.Dashboard(ctx, "u1"); !errors.Is(err, errBoom) {
		t.Errorf("Expected the store error, but got %v", err)
	}
}
