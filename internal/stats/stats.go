// Package stats derives dashboard numbers from habits and their progress.
// Every function here is pure: it reads the snapshot it is given and
// changes nothing.
package stats

import (
	"math"
	"time"

	"github.com/conorfennell/habbit/internal/domain"
)

const (
	// RateWindowDays is the look-back of the completion rate.
	RateWindowDays = 7
	// MaxStreakDays bounds the backwards walk of Streak.
	MaxStreakDays = 365
)

// Summary is what the dashboard cards show.
type Summary struct {
	ActiveHabits   int           `json:"activeHabits"`
	CompletionRate int           `json:"completionRate"`
	Streak         int           `json:"streak"`
	MostConsistent *domain.Habit `json:"mostConsistent,omitempty"`
}

// Summarize computes every dashboard number for habits as of now.
func Summarize(habits []domain.Habit, now time.Time) Summary {
	s := Summary{
		ActiveHabits:   ActiveCount(habits),
		CompletionRate: CompletionRate(habits, now),
		Streak:         Streak(habits, now),
	}
	if best, ok := MostConsistent(habits); ok {
		s.MostConsistent = &best
	}
	return s
}

// ActiveCount returns the number of habits that are not archived.
func ActiveCount(habits []domain.Habit) int {
	n := 0
	for _, h := range habits {
		if !h.IsArchived {
			n++
		}
	}
	return n
}

// CompletionRate returns the rounded percentage of completed entries among
// all entries, across every habit, dated on or after now minus seven days.
// The cutoff keeps now's time of day; entry dates are midnight in now's
// location. It returns 0 when nothing falls in the window.
func CompletionRate(habits []domain.Habit, now time.Time) int {
	if len(habits) == 0 {
		return 0
	}
	cutoff := now.AddDate(0, 0, -RateWindowDays)

	var total, completed int
	for _, h := range habits {
		for _, p := range h.Progress {
			d, err := time.ParseInLocation(domain.DateLayout, p.Date, now.Location())
			if err != nil || d.Before(cutoff) {
				continue
			}
			total++
			if p.Status == domain.StatusCompleted {
				completed++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// Streak counts consecutive days, starting today and walking backwards, on
// which at least one entry exists and every entry of that day, from any
// habit, is completed.
func Streak(habits []domain.Habit, now time.Time) int {
	if len(habits) == 0 {
		return 0
	}

	byDay := make(map[string][]domain.Status)
	for _, h := range habits {
		for _, p := range h.Progress {
			byDay[p.Date] = append(byDay[p.Date], p.Status)
		}
	}

	streak := 0
	for i := 0; i < MaxStreakDays; i++ {
		day := now.AddDate(0, 0, -i).Format(domain.DateLayout)
		statuses := byDay[day]
		if len(statuses) == 0 || !allCompleted(statuses) {
			break
		}
		streak++
	}
	return streak
}

func allCompleted(statuses []domain.Status) bool {
	for _, s := range statuses {
		if s != domain.StatusCompleted {
			return false
		}
	}
	return true
}

// MostConsistent returns the habit with the most completed entries. Ties go
// to the habit listed first. ok is false when habits is empty.
func MostConsistent(habits []domain.Habit) (best domain.Habit, ok bool) {
	if len(habits) == 0 {
		return domain.Habit{}, false
	}
	best = habits[0]
	bestCount := best.CompletedCount()
	for _, h := range habits[1:] {
		if c := h.CompletedCount(); c > bestCount {
			best, bestCount = h, c
		}
	}
	return best, true
}
