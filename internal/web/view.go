package web

import (
	"context"
	"html/template"
	"strings"
	"time"

	"github.com/conorfennell/habbit/internal/domain"
	"github.com/conorfennell/habbit/internal/notify"
	"github.com/conorfennell/habbit/internal/stats"
)

const (
	viewCalendar = "calendar"
	viewList     = "list"
)

const monthLayout = "2006-01"

// recentEntries is how many progress entries the list view shows per habit.
const recentEntries = 5

// Cell is one day in a habit's month grid.
type Cell struct {
	Date   string
	Day    int
	Status domain.Status
	Today  bool
}

// HabitView is a habit prepared for rendering in the current view and month.
type HabitView struct {
	Habit     domain.Habit
	Stats     domain.Statistics
	View      string
	Month     string
	Lead      int
	Cells     []Cell
	Recent    []domain.ProgressEntry
	Today     string
	TodayDone domain.Status
}

// Page is the data behind the dashboard and its fragments.
type Page struct {
	User    *domain.User
	View    string
	Month   time.Time
	Habits  []HabitView
	Summary stats.Summary
	Flash   *notify.Notification

	defaults domain.HabitInput
}

// FormView is the create or edit form of a habit.
type FormView struct {
	Action string
	Submit string
	Edit   bool
	Input  domain.HabitInput
}

// MonthParam is the month in query form.
func (p Page) MonthParam() string { return p.Month.Format(monthLayout) }

func (p Page) PrevMonth() string { return p.Month.AddDate(0, -1, 0).Format(monthLayout) }

func (p Page) NextMonth() string { return p.Month.AddDate(0, 1, 0).Format(monthLayout) }

// CreateForm is the empty habit form, pre-filled with the defaults for today.
func (p Page) CreateForm() FormView {
	return FormView{Action: "/habits", Submit: "Create habit", Input: p.defaults}
}

// EditForm is the form for changing hv's habit.
func (hv HabitView) EditForm() FormView {
	h := hv.Habit
	return FormView{
		Action: "/habits/" + h.ID,
		Submit: "Save changes",
		Edit:   true,
		Input: domain.HabitInput{
			Name:        h.Name,
			Description: h.Description,
			Icon:        h.Icon,
			Color:       h.Color,
			Frequency:   h.Frequency,
			StartDate:   h.StartDate,
			EndDate:     h.EndDate,
			TimeOfDay:   h.TimeOfDay,
			Goal:        h.Goal,
			IsArchived:  h.IsArchived,
		},
	}
}

// parseView falls back to the calendar for anything but "list".
func parseView(s string) string {
	if s == viewList {
		return viewList
	}
	return viewCalendar
}

// parseMonth returns the first day of the month named by s, or of now's month.
func parseMonth(s string, now time.Time) time.Time {
	if m, err := time.ParseInLocation(monthLayout, s, now.Location()); err == nil {
		return m
	}
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

func newHabitView(h domain.Habit, view string, month, now time.Time) HabitView {
	today := now.Format(domain.DateLayout)
	hv := HabitView{
		Habit:     h,
		Stats:     stats.Resolve(h),
		View:      view,
		Month:     month.Format(monthLayout),
		Today:     today,
		TodayDone: h.StatusOn(today),
	}
	if view == viewList {
		recent := h.Progress
		if len(recent) > recentEntries {
			recent = recent[len(recent)-recentEntries:]
		}
		hv.Recent = recent
		return hv
	}

	hv.Lead = int(month.Weekday())
	for d := month; d.Month() == month.Month(); d = d.AddDate(0, 0, 1) {
		date := d.Format(domain.DateLayout)
		hv.Cells = append(hv.Cells, Cell{
			Date:   date,
			Day:    d.Day(),
			Status: h.StatusOn(date),
			Today:  date == today,
		})
	}
	return hv
}

// loadPage reads the user's dashboard and lays it out for view and month.
func (s *Server) loadPage(ctx context.Context, user domain.User, view, month string) (*Page, error) {
	d, err := s.habits.Dashboard(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	now := s.habits.Now()
	p := &Page{
		User:     &user,
		View:     parseView(view),
		Month:    parseMonth(month, now),
		Summary:  d.Summary,
		defaults: domain.NewHabitInput(now),
	}
	for _, h := range d.Habits {
		p.Habits = append(p.Habits, newHabitView(h, p.View, p.Month, now))
	}
	return p, nil
}

// row returns the rendered habit with id, if it is on the page.
func (p *Page) row(id string) (HabitView, bool) {
	for _, hv := range p.Habits {
		if hv.Habit.ID == id {
			return hv, true
		}
	}
	return HabitView{}, false
}

func glyph(s domain.Status) string {
	switch s {
	case domain.StatusCompleted:
		return "✓"
	case domain.StatusFailed:
		return "×"
	case domain.StatusSkipped:
		return "-"
	}
	return "○"
}

func statusClass(s domain.Status) string {
	if s == domain.StatusNone {
		return "status-none"
	}
	return "status-" + string(s)
}

func percent(rate float64) int {
	return int(rate*100 + 0.5)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var funcs = template.FuncMap{
	"glyph":       glyph,
	"statusClass": statusClass,
	"percent":     percent,
	"deref":       deref,
	"title":       func(f domain.Frequency) string { return strings.ToUpper(string(f[:1])) + string(f[1:]) },
	"frequencies": func() []domain.Frequency { return []domain.Frequency{domain.Daily, domain.Weekly, domain.Monthly} },
	"weekdays":    func() []string { return []string{"S", "M", "T", "W", "T", "F", "S"} },
	"blanks":      func(n int) []struct{} { return make([]struct{}, n) },
}
