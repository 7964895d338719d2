package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/conorfennell/habbit/internal/auth"
	"github.com/conorfennell/habbit/internal/domain"
	"github.com/conorfennell/habbit/internal/habits"
	"github.com/conorfennell/habbit/internal/notify"
)

//go:embed all:static
var staticFiles embed.FS

//go:embed all:templates
var templateFiles embed.FS

// SessionCookie holds the access token of a signed-in browser.
const SessionCookie = "habbit_session"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tune the server. The zero value is usable.
type Options struct {
	// SessionTTL is the cookie lifetime when the token carries no expiry.
	SessionTTL   time.Duration
	SecureCookie bool
	Notifier     notify.Notifier
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	habits    *habits.Service
	auth      auth.Provider
	health    Pinger
	notifier  notify.Notifier
	router    *http.ServeMux
	handler   http.Handler
	templates *template.Template
	opts      Options
}

// NewServer creates and configures a new server.
func NewServer(svc *habits.Service, provider auth.Provider, health Pinger, opts Options) (*Server, error) {
	tpl, err := template.New("").Funcs(funcs).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.FlashNotifier{}
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}

	s := &Server{
		habits:    svc,
		auth:      provider,
		health:    health,
		notifier:  opts.Notifier,
		router:    http.NewServeMux(),
		templates: tpl,
		opts:      opts,
	}
	if err := s.routes(); err != nil {
		return nil, err
	}
	s.handler = logRequests(s.withSession(s.router))
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("failed to create sub-filesystem for static assets: %w", err)
	}
	s.router.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	s.router.HandleFunc("GET /health", s.handleHealth())

	// Pages
	s.router.HandleFunc("GET /{$}", s.handleIndex())
	s.router.HandleFunc("GET /auth/sign-in", s.handleAuthPage("sign_in", "Sign in"))
	s.router.HandleFunc("POST /auth/sign-in", s.handleSignIn())
	s.router.HandleFunc("GET /auth/sign-up", s.handleAuthPage("sign_up", "Sign up"))
	s.router.HandleFunc("POST /auth/sign-up", s.handleSignUp())
	s.router.HandleFunc("POST /auth/sign-out", s.handleSignOut())
	s.router.HandleFunc("GET /dashboard", s.requireUser(s.handleDashboard()))

	// HTMX-based routes
	s.router.HandleFunc("POST /habits", s.requireUser(s.handleCreateHabit()))
	s.router.HandleFunc("POST /habits/{id}", s.requireUser(s.handleUpdateHabit()))
	s.router.HandleFunc("DELETE /habits/{id}", s.requireUser(s.handleDeleteHabit()))
	s.router.HandleFunc("POST /habits/{id}/progress/{date}", s.requireUser(s.handleToggleProgress()))

	// JSON API
	s.router.HandleFunc("GET /api/habits", s.requireAPIUser(s.apiListHabits()))
	s.router.HandleFunc("POST /api/habits", s.requireAPIUser(s.apiCreateHabit()))
	s.router.HandleFunc("GET /api/habits/{id}", s.requireAPIUser(s.apiGetHabit()))
	s.router.HandleFunc("PATCH /api/habits/{id}", s.requireAPIUser(s.apiUpdateHabit()))
	s.router.HandleFunc("DELETE /api/habits/{id}", s.requireAPIUser(s.apiDeleteHabit()))
	s.router.HandleFunc("PUT /api/habits/{id}/progress", s.requireAPIUser(s.apiSetProgress()))
	s.router.HandleFunc("GET /api/habits/{id}/progress", s.requireAPIUser(s.apiProgressInRange()))
	s.router.HandleFunc("GET /api/habits/{id}/statistics", s.requireAPIUser(s.apiStatistics()))
	s.router.HandleFunc("GET /api/dashboard", s.requireAPIUser(s.apiDashboard()))
	return nil
}

// userHandler is a handler that runs only for a signed-in user.
type userHandler func(w http.ResponseWriter, r *http.Request, user domain.User)

// requireUser sends anonymous visitors to the sign-in page.
func (s *Server) requireUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := auth.FromContext(r.Context())
		if !ok {
			if isHTMX(r) {
				w.Header().Set("HX-Redirect", "/auth/sign-in")
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/auth/sign-in", http.StatusSeeOther)
			return
		}
		next(w, r, sess.User)
	}
}

func (s *Server) requireAPIUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := auth.FromContext(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, apiError{Error: "authentication required"})
			return
		}
		next(w, r, sess.User)
	}
}

// withSession resolves the request's access token into a session. A bearer
// header wins over the session cookie.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/static/") {
			next.ServeHTTP(w, r)
			return
		}
		token, fromCookie := accessToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		sess, err := s.auth.Current(r.Context(), token)
		switch {
		case errors.Is(err, auth.ErrNoSession):
			if fromCookie {
				s.clearSession(w)
			}
		case err != nil:
			slog.Error("failed to resolve session", "err", err, "path", r.URL.Path)
		default:
			r = r.WithContext(auth.WithSession(r.Context(), sess))
		}
		next.ServeHTTP(w, r)
	})
}

func accessToken(r *http.Request) (token string, fromCookie bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(t), false
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value, true
	}
	return "", false
}

func (s *Server) setSession(w http.ResponseWriter, sess *auth.Session) {
	maxAge := int(s.opts.SessionTTL.Seconds())
	if !sess.Token.Expiry.IsZero() {
		maxAge = int(time.Until(sess.Token.Expiry).Seconds())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token.AccessToken,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// handleHealth reports whether the store answers a ping.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.health.Ping(ctx); err != nil {
			slog.Error("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "down",
				"error":  "store unreachable",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "up"})
	}
}

// renderPage buffers the template so a render error still yields a clean 500.
func (s *Server) renderPage(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("failed to render template", "template", name, "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
