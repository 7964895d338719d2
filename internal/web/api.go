package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/conorfennell/habbit/internal/domain"
	"github.com/conorfennell/habbit/internal/habits"
	"github.com/conorfennell/habbit/internal/storage"
)

const maxBodyBytes = 1 << 20

type apiError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// progressRequest is the body of PUT /api/habits/{id}/progress. A null or
// missing status removes the entry for date.
type progressRequest struct {
	Date   string         `json:"date"`
	Status *domain.Status `json:"status"`
}

type progressResponse struct {
	Habit  *domain.Habit `json:"habit"`
	Status domain.Status `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("failed to decode request body: %w", err)
	}
	return nil
}

// apiFail maps an error to a status. Only validation messages reach the client.
func apiFail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var verr *habits.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid input", Fields: verr.Fields})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, apiError{Error: "habit not found"})
	default:
		slog.Error(msg, "err", err, "method", r.Method, "path", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: msg})
	}
}

func (s *Server) apiListHabits() userHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		list, err := s.habits.List(r.Context(), user.ID)
		if err != nil {
			apiFail(w, r, "failed to list habits", err)
			return
		}
		if list == nil {
			list = []domain.Habit{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (s *Server) apiCreateHabit() userHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		in := domain.NewHabitInput(s.habits.Now())
		if err := decodeJSON(w, r, &in); err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body"})
			return
		}
		res, err := s.habits.Create(r.Context(), user.ID, in)
		if err != nil {
			apiFail(w, r, "failed to create habit", err)
			return
		}
		writeJSON(w, http.StatusCreated, res.Habit)
	}
}

func (s *Server) apiGetHabit() userHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		h, err := s.habits.Get(r.Context(), user.ID, r.PathValue("id"))
		if err != nil {
			apiFail(w, r, "failed to get habit", err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}
}

func (s *Server) apiUpdateHabit() userHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		var p domain.HabitPatch
		if err := decodeJSON(w, r, &p); err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body"})
			return
		}
		res, err := s.habits.Update(r.Context(), user.ID, r.PathValue("id"), p)
		if err != nil {
			apiFail(w, r, "failed to update habit", err)
			return
		}
		writeJSON(w, http.StatusOK, res.Habit)
	}
}

func (s *Server) apiDeleteHabit() userHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if _, err := s.habits.Delete(r.Context(), user.ID, r.PathValue("id")); err != nil {
			apiFail(w, r, "failed to delete habit", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) apiSetProgress() userHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		var req progressRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body"})
			return
		}
		status := domain.StatusNone
		if req.Status != nil {
			status = *req.Status
			if status == domain.StatusNone {
				writeJSON(w, http.StatusBadRequest, apiError{
					Error:  "invalid input",
					Fields: map[string]string{"status": "use null to remove an entry"},
				})
				return
			}
		}
		res, err := s.habits.SetProgress(r.Context(), user.ID, r.PathValue("id"), req.Date, status)
		if err != nil {
			apiFail(w, r, "failed to update progress", err)
			return
		}
		writeJSON(w, http.StatusOK, progressResponse{Habit: res.Habit, Status: res.Status})
	}
}

func (s *Server) apiProgressInRange() userHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		q := r.URL.Query()
		entries, err := s.habits.ProgressInRange(r.Context(), user.ID, r.PathValue("id"), q.Get("start"), q.Get("end"))
		if err != nil {
			apiFail(w, r, "failed to load progress", err)
			return
		}
		if entries == nil {
			entries = []domain.ProgressEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func (s *Server) apiStatistics() userHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		st, err := s.habits.Statistics(r.Context(), user.ID, r.PathValue("id"))
		if err != nil {
			apiFail(w, r, "failed to load statistics", err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func (s *Server) apiDashboard() userHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		d, err := s.habits.Dashboard(r.Context(), user.ID)
		if err != nil {
			apiFail(w, r, "failed to load dashboard", err)
			return
		}
		if d.Habits == nil {
			d.Habits = []domain.Habit{}
		}
		writeJSON(w, http.StatusOK, d)
	}
}
