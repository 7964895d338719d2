package stats

import "github.com/conorfennell/habbit/internal/domain"

// Aggregate counts progress by status. CompletionRate is a fraction in [0,1]
// and is 0 when there are no entries.
func Aggregate(progress []domain.ProgressEntry) domain.Statistics {
	var s domain.Statistics
	for _, p := range progress {
		switch p.Status {
		case domain.StatusCompleted:
			s.CompletedCount++
		case domain.StatusFailed:
			s.FailedCount++
		case domain.StatusSkipped:
			s.SkippedCount++
		}
	}
	if len(progress) > 0 {
		s.CompletionRate = float64(s.CompletedCount) / float64(len(progress))
	}
	return s
}

// Resolve returns the statistics to display for h. A precomputed view row
// wins when the store supplied one; otherwise the progress is re-aggregated.
func Resolve(h domain.Habit) domain.Statistics {
	if h.Statistics != nil {
		return *h.Statistics
	}
	return Aggregate(h.Progress)
}
