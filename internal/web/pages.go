package web

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/habbit/internal/auth"
	"github.com/conorfennell/habbit/internal/domain"
	"github.com/conorfennell/habbit/internal/habits"
	"github.com/conorfennell/habbit/internal/notify"
)

// User-facing failure messages. Store errors never reach the browser.
const (
	msgCreateFailed   = "Failed to create habit. Please try again."
	msgUpdateFailed   = "Failed to update habit. Please try again."
	msgDeleteFailed   = "Failed to delete habit. Please try again."
	msgProgressFailed = "Failed to update progress. Please try again."
	msgSignInFailed   = "Invalid email or password."
	msgSignOutFailed  = "Failed to sign out. Please try again."
	msgConfirmEmail   = "Please check your email to confirm your account."
)

// authPage is the data behind the landing and auth pages.
type authPage struct {
	Title string
	User  *domain.User
	Flash *notify.Notification
}

func (s *Server) newAuthPage(w http.ResponseWriter, r *http.Request, title string) authPage {
	p := authPage{Title: title}
	if sess, ok := auth.FromContext(r.Context()); ok {
		p.User = &sess.User
	}
	if n, ok := notify.Pop(w, r); ok {
		p.Flash = &n
	}
	return p
}

// handleIndex shows the landing page, or the dashboard once signed in.
func (s *Server) handleIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); ok {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		s.renderPage(w, http.StatusOK, "index", s.newAuthPage(w, r, "Build better habits"))
	}
}

func (s *Server) handleAuthPage(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); ok {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		s.renderPage(w, http.StatusOK, name, s.newAuthPage(w, r, title))
	}
}

func (s *Server) handleSignIn() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.auth.SignIn(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidCredentials) {
				slog.Error("failed to sign in", "err", err)
			}
			s.notifier.Notify(w, r, notify.Failure(msgSignInFailed))
			http.Redirect(w, r, "/auth/sign-in", http.StatusSeeOther)
			return
		}
		s.setSession(w, sess)
		s.notifier.Notify(w, r, notify.Success("You have been signed in."))
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	}
}

func (s *Server) handleSignUp() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.auth.SignUp(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
		if err != nil {
			s.notifier.Notify(w, r, notify.Failure(signUpMessage(err)))
			http.Redirect(w, r, "/auth/sign-up", http.StatusSeeOther)
			return
		}
		if sess == nil {
			s.notifier.Notify(w, r, notify.Success(msgConfirmEmail))
			http.Redirect(w, r, "/auth/sign-in", http.StatusSeeOther)
			return
		}
		s.setSession(w, sess)
		s.notifier.Notify(w, r, notify.Success("Your account has been created."))
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	}
}

func signUpMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		return "An account with this email already exists."
	case errors.Is(err, auth.ErrWeakPassword):
		return fmt.Sprintf("Password must be at least %d characters long.", auth.MinPasswordLength)
	case errors.Is(err, auth.ErrInvalidEmail):
		return "Please enter a valid email address."
	}
	slog.Error("failed to sign up", "err", err)
	return "Something went wrong."
}

// handleSignOut ends the session. On failure the user stays signed in.
func (s *Server) handleSignOut() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sess, ok := auth.FromContext(r.Context()); ok {
			if err := s.auth.SignOut(r.Context(), sess); err != nil {
				slog.Error("failed to sign out", "err", err, "user", sess.User.ID)
				s.notifier.Notify(w, r, notify.Failure(msgSignOutFailed))
				http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
				return
			}
		}
		s.clearSession(w)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// handleDashboard renders the full dashboard for ?view=calendar|list&month=YYYY-MM.
func (s *Server) handleDashboard() userHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		q := r.URL.Query()
		page, err := s.loadPage(r.Context(), user, q.Get("view"), q.Get("month"))
		if err != nil {
			slog.Error("failed to load dashboard", "err", err, "user", user.ID)
			http.Error(w, "Failed to load habits. Please try again.", http.StatusInternalServerError)
			return
		}
		if n, ok := notify.Pop(w, r); ok {
			page.Flash = &n
		}
		s.renderPage(w, http.StatusOK, "dashboard", page)
	}
}

func (s *Server) handleCreateHabit() userHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		in, err := habitInput(r, s.habits.Now())
		if err != nil {
			s.fail(w, r, msgCreateFailed, err)
			return
		}
		res, err := s.habits.Create(r.Context(), user.ID, in)
		if err != nil {
			s.fail(w, r, msgCreateFailed, err)
			return
		}
		s.refresh(w, r, user, res, notify.Success(fmt.Sprintf("Habit %q has been created.", res.Habit.Name)))
	}
}

func (s *Server) handleUpdateHabit() userHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		p, err := habitPatch(r)
		if err != nil {
			s.fail(w, r, msgUpdateFailed, err)
			return
		}
		res, err := s.habits.Update(r.Context(), user.ID, r.PathValue("id"), p)
		if err != nil {
			s.fail(w, r, msgUpdateFailed, err)
			return
		}
		s.refresh(w, r, user, res, notify.Success(fmt.Sprintf("Habit %q has been updated.", res.Habit.Name)))
	}
}

func (s *Server) handleDeleteHabit() userHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		res, err := s.habits.Delete(r.Context(), user.ID, r.PathValue("id"))
		if err != nil {
			s.fail(w, r, msgDeleteFailed, err)
			return
		}
		s.refresh(w, r, user, res, notify.Success("Habit has been deleted."))
	}
}

// handleToggleProgress advances one calendar cell through its status cycle.
func (s *Server) handleToggleProgress() userHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		res, err := s.habits.Toggle(r.Context(), user.ID, r.PathValue("id"), r.PathValue("date"))
		if err != nil {
			s.fail(w, r, msgProgressFailed, err)
			return
		}
		s.refresh(w, r, user, res, notify.Success(fmt.Sprintf("Progress updated for %q.", res.Habit.Name)))
	}
}

// refresh re-reads the store and renders exactly the views res invalidated.
// The habit list is the primary swap target; a single habit row replaces
// itself; the summary cards are swapped out of band.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request, user domain.User, res habits.Result, done notify.Notification) {
	if !isHTMX(r) {
		s.notifier.Notify(w, r, done)
		http.Redirect(w, r, dashboardURL(r), http.StatusSeeOther)
		return
	}

	page, err := s.loadPage(r.Context(), user, r.FormValue("view"), r.FormValue("month"))
	if err != nil {
		// The write went through; only the re-read failed.
		slog.Error("failed to refresh views", "err", err, "user", user.ID)
		s.notifier.Notify(w, r, done)
		w.Header().Set("HX-Refresh", "true")
		w.WriteHeader(http.StatusOK)
		return
	}

	var buf bytes.Buffer
	switch {
	case res.Invalidated(habits.ViewHabitList):
		err = s.templates.ExecuteTemplate(&buf, "habit_list", page)
	case res.Habit != nil && res.Invalidated(habits.ViewHabit):
		if row, ok := page.row(res.Habit.ID); ok {
			err = s.templates.ExecuteTemplate(&buf, "habit_row", row)
		}
	}
	if err == nil && res.Invalidated(habits.ViewDashboard) {
		err = s.templates.ExecuteTemplate(&buf, "summary_oob", page)
	}
	if err != nil {
		slog.Error("failed to render views", "err", err)
		w.Header().Set("HX-Refresh", "true")
	}

	s.notifier.Notify(w, r, done)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err == nil {
		buf.WriteTo(w)
	}
}

// fail reports a failed action. Nothing is swapped, so the page keeps its
// prior state.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var verr *habits.ValidationError
	if errors.As(err, &verr) {
		slog.Warn("rejected habit input", "err", err, "path", r.URL.Path)
		msg = "Please check the habit details: " + describeFields(verr) + "."
	} else {
		slog.Error("habit action failed", "err", err, "path", r.URL.Path)
	}
	s.notifier.Notify(w, r, notify.Failure(msg))

	if !isHTMX(r) {
		http.Redirect(w, r, dashboardURL(r), http.StatusSeeOther)
		return
	}
	w.Header().Set("HX-Reswap", "none")
	w.WriteHeader(http.StatusOK)
}

func describeFields(verr *habits.ValidationError) string {
	parts := make([]string, 0, len(verr.Fields))
	for field, msg := range verr.Fields {
		parts = append(parts, field+" "+msg)
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func dashboardURL(r *http.Request) string {
	q := url.Values{}
	if v := r.FormValue("view"); v != "" {
		q.Set("view", parseView(v))
	}
	if m := r.FormValue("month"); m != "" {
		if _, err := time.Parse(monthLayout, m); err == nil {
			q.Set("month", m)
		}
	}
	if len(q) == 0 {
		return "/dashboard"
	}
	return "/dashboard?" + q.Encode()
}

// habitInput reads the create form. Absent fields keep the form defaults.
func habitInput(r *http.Request, now time.Time) (domain.HabitInput, error) {
	if err := r.ParseForm(); err != nil {
		return domain.HabitInput{}, fmt.Errorf("failed to parse form: %w", err)
	}
	in := domain.NewHabitInput(now)
	in.Name = r.PostFormValue("name")
	in.Description = formField(r, "description")
	if v := r.PostFormValue("icon"); v != "" {
		in.Icon = v
	}
	if v := r.PostFormValue("color"); v != "" {
		in.Color = v
	}
	if v := r.PostFormValue("frequency"); v != "" {
		in.Frequency = domain.Frequency(v)
	}
	if v := r.PostFormValue("startDate"); v != "" {
		in.StartDate = v
	}
	in.EndDate = formField(r, "endDate")
	in.TimeOfDay = formField(r, "timeOfDay")
	if v := r.PostFormValue("goal"); v != "" {
		goal, err := strconv.Atoi(v)
		if err != nil {
			return domain.HabitInput{}, &habits.ValidationError{Fields: map[string]string{"goal": "must be a whole number"}}
		}
		in.Goal = goal
	}
	in.IsArchived = formBool(r, "isArchived")
	return in, nil
}

// habitPatch reads the edit form. Only submitted fields change.
func habitPatch(r *http.Request) (domain.HabitPatch, error) {
	if err := r.ParseForm(); err != nil {
		return domain.HabitPatch{}, fmt.Errorf("failed to parse form: %w", err)
	}
	p := domain.HabitPatch{
		Name:        formField(r, "name"),
		Description: formField(r, "description"),
		Icon:        formField(r, "icon"),
		Color:       formField(r, "color"),
		StartDate:   formField(r, "startDate"),
		EndDate:     formField(r, "endDate"),
		TimeOfDay:   formField(r, "timeOfDay"),
	}
	if v := formField(r, "frequency"); v != nil {
		f := domain.Frequency(*v)
		p.Frequency = &f
	}
	if v := formField(r, "goal"); v != nil {
		goal, err := strconv.Atoi(*v)
		if err != nil {
			return domain.HabitPatch{}, &habits.ValidationError{Fields: map[string]string{"goal": "must be a whole number"}}
		}
		p.Goal = &goal
	}
	if _, ok := r.PostForm["isArchived"]; ok {
		archived := formBool(r, "isArchived")
		p.IsArchived = &archived
	}
	return p, nil
}

// formField returns nil when the field was not submitted at all.
func formField(r *http.Request, name string) *string {
	vs, ok := r.PostForm[name]
	if !ok || len(vs) == 0 {
		return nil
	}
	v := vs[0]
	return &v
}

// formBool reads a checkbox backed by a hidden "false" input; the last value wins.
func formBool(r *http.Request, name string) bool {
	vs := r.PostForm[name]
	if len(vs) == 0 {
		return false
	}
	switch vs[len(vs)-1] {
	case "true", "on", "1":
		return true
	}
	return false
}
