// Package auth signs users in and out and carries the resulting session
// through request contexts.
package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/conorfennell/habbit/internal/domain"
	"golang.org/x/oauth2"
)

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 8

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password must be at least 8 characters long")
	ErrInvalidEmail       = errors.New("invalid email address")
	// ErrNoSession is returned by Current for a missing, expired or revoked token.
	ErrNoSession = errors.New("no active session")
)

// Session is a signed-in user and the token that proves it.
type Session struct {
	User  domain.User
	Token *oauth2.Token
}

// Provider is an identity backend.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SignUp registers a user. A nil session with a nil error means the
	// account exists but must be confirmed before signing in.
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, s *Session) error
	Current(ctx context.Context, accessToken string) (*Session, error)
}

type sessionKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkSignUp(email, password string) error {
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}
