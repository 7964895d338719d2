package progress

import (
	"time"

	"github.com/conorfennell/habbit/internal/domain"
)

// cycle is the fixed order a cell moves through on each click.
var cycle = map[domain.Status]domain.Status{
	domain.StatusNone:      domain.StatusCompleted,
	domain.StatusCompleted: domain.StatusFailed,
	domain.StatusFailed:    domain.StatusSkipped,
	domain.StatusSkipped:   domain.StatusNone,
}

// Next returns the status that follows current:
// none -> completed -> failed -> skipped -> none.
// It depends on nothing but current. Unknown values are treated as none.
func Next(current domain.Status) domain.Status {
	next, ok := cycle[current]
	if !ok {
		return domain.StatusCompleted
	}
	return next
}

// Apply records status for date on h. StatusNone removes the entry for that
// date; any other status overwrites the existing entry in place or appends a
// new one, so insertion order is kept. UpdatedAt always advances.
func Apply(h *domain.Habit, date string, status domain.Status, now time.Time) {
	idx := -1
	for i, p := range h.Progress {
		if p.Date == date {
			idx = i
			break
		}
	}

	switch {
	case status == domain.StatusNone && idx >= 0:
		h.Progress = append(h.Progress[:idx:idx], h.Progress[idx+1:]...)
	case status == domain.StatusNone:
		// nothing recorded for that day
	case idx >= 0:
		h.Progress[idx].Status = status
	default:
		h.Progress = append(h.Progress, domain.ProgressEntry{Date: date, Status: status})
	}
	Touch(h, now)
}

// Toggle advances the status of date on h by one step and returns the new status.
func Toggle(h *domain.Habit, date string, now time.Time) domain.Status {
	next := Next(h.StatusOn(date))
	Apply(h, date, next, now)
	return next
}

// Touch moves UpdatedAt forward to now. It never moves it backwards, and
// never before CreatedAt.
func Touch(h *domain.Habit, now time.Time) {
	if now.After(h.UpdatedAt) {
		h.UpdatedAt = now
	}
	if h.UpdatedAt.Before(h.CreatedAt) {
		h.UpdatedAt = h.CreatedAt
	}
}
