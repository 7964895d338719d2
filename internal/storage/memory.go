package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/conorfennell/habbit/internal/auth"
	"github.com/conorfennell/habbit/internal/domain"
	"github.com/conorfennell/habbit/internal/progress"
	"github.com/conorfennell/habbit/internal/transform"
	"github.com/google/uuid"
)

type memHabit struct {
	userID string
	seq    int
	habit  domain.Habit
}

// MemoryStore keeps everything in process memory. It never precomputes
// statistics. It also serves as the local user store.
type MemoryStore struct {
	mu     sync.Mutex
	habits map[string]*memHabit
	users  map[string]auth.UserRecord
	seq    int
	now    func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		habits: make(map[string]*memHabit),
		users:  make(map[string]auth.UserRecord),
		now:    time.Now,
	}
}

func (m *MemoryStore) lookup(userID, id string) (*memHabit, error) {
	h, ok := m.habits[id]
	if !ok || h.userID != userID {
		return nil, fmt.Errorf("habit %s: %w", id, ErrNotFound)
	}
	return h, nil
}

func clone(h domain.Habit) domain.Habit {
	h.Progress = append(make([]domain.ProgressEntry, 0, len(h.Progress)), h.Progress...)
	return h
}

func (m *MemoryStore) ListHabits(ctx context.Context, userID string) ([]domain.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var owned []*memHabit
	for _, h := range m.habits {
		if h.userID == userID {
			owned = append(owned, h)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		a, b := owned[i], owned[j]
		if !a.habit.CreatedAt.Equal(b.habit.CreatedAt) {
			return a.habit.CreatedAt.After(b.habit.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]domain.Habit, 0, len(owned))
	for _, h := range owned {
		out = append(out, clone(h.habit))
	}
	return out, nil
}

func (m *MemoryStore) GetHabit(ctx context.Context, userID, id string) (*domain.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, err := m.lookup(userID, id)
	if err != nil {
		return nil, err
	}
	c := clone(h.habit)
	return &c, nil
}

func (m *MemoryStore) CreateHabit(ctx context.Context, userID string, in domain.HabitInput) (*domain.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := transform.FromInput(uuid.NewString(), userID, in, m.now())
	h := transform.ToHabit(row, nil, nil)
	m.seq++
	m.habits[h.ID] = &memHabit{userID: userID, seq: m.seq, habit: h}
	c := clone(h)
	return &c, nil
}

func (m *MemoryStore) UpdateHabit(ctx context.Context, userID, id string, p domain.HabitPatch) (*domain.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, err := m.lookup(userID, id)
	if err != nil {
		return nil, err
	}
	p.Apply(&h.habit)
	progress.Touch(&h.habit, m.now())
	c := clone(h.habit)
	return &c, nil
}

func (m *MemoryStore) DeleteHabit(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup(userID, id); err != nil {
		return err
	}
	delete(m.habits, id)
	return nil
}

func (m *MemoryStore) SetProgress(ctx context.Context, userID, habitID, date string, status domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, err := m.lookup(userID, habitID)
	if err != nil {
		return err
	}
	progress.Apply(&h.habit, date, status, m.now())
	return nil
}

func (m *MemoryStore) ProgressInRange(ctx context.Context, userID, habitID, start, end string) ([]domain.ProgressEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, err := m.lookup(userID, habitID)
	if err != nil {
		return nil, err
	}
	out := []domain.ProgressEntry{}
	for _, p := range h.habit.Progress {
		if p.Date >= start && p.Date <= end {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Statistics always returns nil: memory mode recomputes on read.
func (m *MemoryStore) Statistics(ctx context.Context, userID, habitID string) (*domain.Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup(userID, habitID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateUser(ctx context.Context, u auth.UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return auth.ErrEmailTaken
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) UserByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) UserByID(ctx context.Context, id string) (*auth.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}
