package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/habbit/internal/auth"
	"github.com/conorfennell/habbit/internal/domain"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type storeFactory func(t *testing.T, c *clock) Store

func newMemory(t *testing.T, c *clock) Store {
	m := NewMemoryStore()
	m.now = c.now
	return m
}

func newSQLite(t *testing.T, c *clock) Store {
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "habbit.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.now = c.now
	return db
}

func input(name string) domain.HabitInput {
	in := domain.NewHabitInput(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	in.Name = name
	return in
}

func strPtr(s string) *string { return &s }

func TestStores(t *testing.T) {
	factories := map[string]storeFactory{
		"memory": newMemory,
		"sqlite": newSQLite,
	}
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			t.Run("create and get", func(t *testing.T) { testCreateGet(t, factory) })
			t.Run("list order and scoping", func(t *testing.T) { testListScoping(t, factory) })
			t.Run("update", func(t *testing.T) { testUpdate(t, factory) })
			t.Run("progress", func(t *testing.T) { testProgress(t, factory) })
			t.Run("delete cascades", func(t *testing.T) { testDelete(t, factory) })
		})
	}
}

func testCreateGet(t *testing.T, factory storeFactory) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	s := factory(t, c)

	in := input("  Read  ")
	in.Description = strPtr("")
	in.TimeOfDay = strPtr("07:30")
	created, err := s.CreateHabit(ctx, "u1", in)
	if err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}
	if created.ID == "" || created.Name != "Read" {
		t.Errorf("Unexpected created habit %+v", created)
	}
	if created.Progress == nil || len(created.Progress) != 0 {
		t.Errorf("Expected empty progress, but got %v", created.Progress)
	}

	got, err := s.GetHabit(ctx, "u1", created.ID)
	if err != nil {
		t.Fatalf("GetHabit failed: %v", err)
	}
	if got.Description != nil {
		t.Errorf("Expected blank description to be absent, but got %q", *got.Description)
	}
	if got.TimeOfDay == nil || *got.TimeOfDay != "07:30" {
		t.Errorf("Expected time of day 07:30, but got %v", got.TimeOfDay)
	}
	if got.Goal != domain.DefaultGoal || got.Color != domain.DefaultColor || got.Frequency != domain.Daily {
		t.Errorf("Expected form defaults, but got %+v", got)
	}
	if !got.CreatedAt.Equal(c.t) || !got.UpdatedAt.Equal(c.t) {
		t.Errorf("Expected timestamps %v, but got %v and %v", c.t, got.CreatedAt, got.UpdatedAt)
	}

	if _, err := s.GetHabit(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, but got %v", err)
	}
}

func testListScoping(t *testing.T, factory storeFactory) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	s := factory(t, c)

	for _, name := range []string{"first", "second", "third"} {
		if _, err := s.CreateHabit(ctx, "u1", input(name)); err != nil {
			t.Fatalf("CreateHabit failed: %v", err)
		}
		c.advance(time.Minute)
	}
	other, err := s.CreateHabit(ctx, "u2", input("other"))
	if err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}

	habits, err := s.ListHabits(ctx, "u1")
	if err != nil {
		t.Fatalf("ListHabits failed: %v", err)
	}
	var names []string
	for _, h := range habits {
		names = append(names, h.Name)
	}
	if len(names) != 3 || names[0] != "third" || names[2] != "first" {
		t.Errorf("Expected newest first [third second first], but got %v", names)
	}

	if _, err := s.GetHabit(ctx, "u1", other.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected another user's habit to be hidden, but got %v", err)
	}
	if err := s.SetProgress(ctx, "u1", other.ID, "2024-01-10", domain.StatusCompleted); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound writing another user's progress, but got %v", err)
	}
	if err := s.DeleteHabit(ctx, "u1", other.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting another user's habit, but got %v", err)
	}

	none, err := s.ListHabits(ctx, "u3")
	if err != nil || len(none) != 0 {
		t.Errorf("Expected no habits for a new user, but got %v, %v", none, err)
	}
}

func testUpdate(t *testing.T, factory storeFactory) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	s := factory(t, c)

	in := input("Run")
	in.Description = strPtr("5k")
	h, err := s.CreateHabit(ctx, "u1", in)
	if err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}
	if err := s.SetProgress(ctx, "u1", h.ID, "2024-01-10", domain.StatusCompleted); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}

	c.advance(time.Hour)
	goal := 12
	updated, err := s.UpdateHabit(ctx, "u1", h.ID, domain.HabitPatch{
		Name:        strPtr("Run far"),
		Description: strPtr(""),
		Goal:        &goal,
	})
	if err != nil {
		t.Fatalf("UpdateHabit failed: %v", err)
	}
	if updated.Name != "Run far" || updated.Goal != 12 || updated.Description != nil {
		t.Errorf("Unexpected update result %+v", updated)
	}
	if updated.Icon != h.Icon || updated.StartDate != h.StartDate {
		t.Errorf("Expected untouched fields to stay, but got %+v", updated)
	}
	if !updated.CreatedAt.Equal(h.CreatedAt) || !updated.UpdatedAt.Equal(c.t) {
		t.Errorf("Expected createdAt kept and updatedAt %v, but got %v and %v", c.t, updated.CreatedAt, updated.UpdatedAt)
	}
	if len(updated.Progress) != 1 {
		t.Errorf("Expected progress to survive an update, but got %v", updated.Progress)
	}

	// A clock that goes backwards must not move updatedAt back.
	c.advance(-3 * time.Hour)
	again, err := s.UpdateHabit(ctx, "u1", h.ID, domain.HabitPatch{Name: strPtr("Jog")})
	if err != nil {
		t.Fatalf("UpdateHabit failed: %v", err)
	}
	if again.UpdatedAt.Before(updated.UpdatedAt) {
		t.Errorf("Expected updatedAt never to decrease, but got %v after %v", again.UpdatedAt, updated.UpdatedAt)
	}

	if _, err := s.UpdateHabit(ctx, "u1", "missing", domain.HabitPatch{Name: strPtr("x")}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, but got %v", err)
	}
}

func testProgress(t *testing.T, factory storeFactory) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	s := factory(t, c)

	h, err := s.CreateHabit(ctx, "u1", input("Meditate"))
	if err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}

	steps := []struct {
		date   string
		status domain.Status
	}{
		{"2024-01-09", domain.StatusCompleted},
		{"2024-01-07", domain.StatusFailed},
		{"2024-01-08", domain.StatusSkipped},
		{"2024-01-09", domain.StatusFailed},
	}
	for _, step := range steps {
		c.advance(time.Second)
		if err := s.SetProgress(ctx, "u1", h.ID, step.date, step.status); err != nil {
			t.Fatalf("SetProgress(%s, %s) failed: %v", step.date, step.status, err)
		}
	}

	got, err := s.GetHabit(ctx, "u1", h.ID)
	if err != nil {
		t.Fatalf("GetHabit failed: %v", err)
	}
	expected := []domain.ProgressEntry{
		{Date: "2024-01-09", Status: domain.StatusFailed},
		{Date: "2024-01-07", Status: domain.StatusFailed},
		{Date: "2024-01-08", Status: domain.StatusSkipped},
	}
	if len(got.Progress) != len(expected) {
		t.Fatalf("Expected %d entries, but got %v", len(expected), got.Progress)
	}
	for i := range expected {
		if got.Progress[i] != expected[i] {
			t.Errorf("Entry %d: expected %v, but got %v", i, expected[i], got.Progress[i])
		}
	}
	if !got.UpdatedAt.Equal(c.t) {
		t.Errorf("Expected progress writes to touch updatedAt to %v, but got %v", c.t, got.UpdatedAt)
	}

	ranged, err := s.ProgressInRange(ctx, "u1", h.ID, "2024-01-08", "2024-01-09")
	if err != nil {
		t.Fatalf("ProgressInRange failed: %v", err)
	}
	if len(ranged) != 2 || ranged[0].Date != "2024-01-08" || ranged[1].Date != "2024-01-09" {
		t.Errorf("Expected entries for 08 and 09 in date order, but got %v", ranged)
	}

	if err := s.SetProgress(ctx, "u1", h.ID, "2024-01-07", domain.StatusNone); err != nil {
		t.Fatalf("SetProgress(none) failed: %v", err)
	}
	got, _ = s.GetHabit(ctx, "u1", h.ID)
	if got.StatusOn("2024-01-07") != domain.StatusNone || len(got.Progress) != 2 {
		t.Errorf("Expected the 07 entry to be removed, but got %v", got.Progress)
	}

	stats, err := s.Statistics(ctx, "u1", h.ID)
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if _, ok := s.(*MemoryStore); ok {
		if stats != nil {
			t.Errorf("Expected memory mode to have no precomputed statistics, but got %+v", stats)
		}
		return
	}
	if stats == nil {
		t.Fatal("Expected view statistics, but got nil")
	}
	if stats.FailedCount != 1 || stats.SkippedCount != 1 || stats.CompletedCount != 0 || stats.CompletionRate != 0 {
		t.Errorf("Unexpected statistics %+v", stats)
	}
}

func testDelete(t *testing.T, factory storeFactory) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	s := factory(t, c)

	h, err := s.CreateHabit(ctx, "u1", input("Stretch"))
	if err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}
	if err := s.SetProgress(ctx, "u1", h.ID, "2024-01-10", domain.StatusCompleted); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}
	if err := s.DeleteHabit(ctx, "u1", h.ID); err != nil {
		t.Fatalf("DeleteHabit failed: %v", err)
	}
	if _, err := s.GetHabit(ctx, "u1", h.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, but got %v", err)
	}
	if _, err := s.ProgressInRange(ctx, "u1", h.ID, "2024-01-01", "2024-12-31"); !errors.Is(err, ErrNotFound) && err != nil {
		t.Errorf("Expected no error or ErrNotFound for a deleted habit's progress, but got %v", err)
	}
	if err := s.DeleteHabit(ctx, "u1", h.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected a second delete to report ErrNotFound, but got %v", err)
	}
}

func TestSQLiteOrphanProgressIsRemoved(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	db := newSQLite(t, c).(*DB)

	h, err := db.CreateHabit(ctx, "u1", input("Walk"))
	if err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}
	db.SetProgress(ctx, "u1", h.ID, "2024-01-10", domain.StatusCompleted)
	if err := db.DeleteHabit(ctx, "u1", h.ID); err != nil {
		t.Fatalf("DeleteHabit failed: %v", err)
	}

	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM habit_progress WHERE habit_id = ?`, h.ID).Scan(&n); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no orphan progress rows, but got %d", n)
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		driver   string
		expected string
	}{
		{DriverSQLite, "SELECT * FROM habits WHERE id = ? AND user_id = ?"},
		{DriverPostgres, "SELECT * FROM habits WHERE id = $1 AND user_id = $2"},
	}
	for _, tt := range tests {
		db := &DB{driver: tt.driver}
		got := db.rebind("SELECT * FROM habits WHERE id = ? AND user_id = ?")
		if got != tt.expected {
			t.Errorf("%s: expected %q, but got %q", tt.driver, tt.expected, got)
		}
	}
}

func TestUserStores(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	stores := map[string]auth.UserStore{
		"memory": NewMemoryStore(),
		"sqlite": newSQLite(t, c).(*DB),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := auth.UserRecord{ID: "u1", Email: "ann@example.com", PasswordHash: "hash", CreatedAt: c.t}
			if err := s.CreateUser(ctx, u); err != nil {
				t.Fatalf("CreateUser failed: %v", err)
			}
			dup := u
			dup.ID = "u2"
			if err := s.CreateUser(ctx, dup); !errors.Is(err, auth.ErrEmailTaken) {
				t.Errorf("Expected ErrEmailTaken, but got %v", err)
			}

			byEmail, err := s.UserByEmail(ctx, "ann@example.com")
			if err != nil || byEmail == nil || byEmail.ID != "u1" {
				t.Errorf("Expected user u1 by email, but got %v, %v", byEmail, err)
			}
			byID, err := s.UserByID(ctx, "u1")
			if err != nil || byID == nil || byID.PasswordHash != "hash" {
				t.Errorf("Expected user u1 by id, but got %v, %v", byID, err)
			}
			missing, err := s.UserByID(ctx, "nobody")
			if err != nil || missing != nil {
				t.Errorf("Expected nil for an unknown user, but got %v, %v", missing, err)
			}
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	h, _ := m.CreateHabit(ctx, "u1", input("Read"))
	m.SetProgress(ctx, "u1", h.ID, "2024-01-10", domain.StatusCompleted)

	got, _ := m.GetHabit(ctx, "u1", h.ID)
	got.Progress[0].Status = domain.StatusFailed
	got.Name = "changed"

	again, _ := m.GetHabit(ctx, "u1", h.ID)
	if again.Progress[0].Status != domain.StatusCompleted || again.Name != "Read" {
		t.Errorf("Expected the stored habit to be unaffected, but got %+v", again)
	}
}
