package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/habbit/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

const issuer = "habbit"

// UserRecord is a locally registered account.
type UserRecord struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore persists local accounts. Lookups return nil, nil when no user matches.
type UserStore interface {
	CreateUser(ctx context.Context, u UserRecord) error
	UserByEmail(ctx context.Context, email string) (*UserRecord, error)
	UserByID(ctx context.Context, id string) (*UserRecord, error)
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// LocalProvider authenticates against a UserStore. Sessions are signed
// HS256 tokens, so nothing is stored per session.
type LocalProvider struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	cost   int
}

// NewLocalProvider creates a provider signing sessions with secret.
func NewLocalProvider(users UserStore, secret string, ttl time.Duration) (*LocalProvider, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &LocalProvider{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		cost:   bcrypt.DefaultCost,
	}, nil
}

// SignUp registers email and signs the new user in.
func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if err := checkSignUp(email, password); err != nil {
		return nil, err
	}
	existing, err := p.users.UserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	rec := UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    p.now(),
	}
	if err := p.users.CreateUser(ctx, rec); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return p.issue(rec)
}

// SignIn checks the password and issues a session token.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	rec, err := p.users.UserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if rec == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return p.issue(*rec)
}

// SignOut has nothing to revoke; the caller drops the token.
func (p *LocalProvider) SignOut(ctx context.Context, s *Session) error {
	return nil
}

// Current verifies accessToken and returns its session.
func (p *LocalProvider) Current(ctx context.Context, accessToken string) (*Session, error) {
	var c claims
	_, err := jwt.ParseWithClaims(accessToken, &c, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, ErrNoSession
	}

	rec, err := p.users.UserByID(ctx, c.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if rec == nil {
		return nil, ErrNoSession
	}
	return &Session{
		User: domain.User{ID: rec.ID, Email: rec.Email},
		Token: &oauth2.Token{
			AccessToken: accessToken,
			TokenType:   "Bearer",
			Expiry:      c.ExpiresAt.Time,
		},
	}, nil
}

func (p *LocalProvider) issue(rec UserRecord) (*Session, error) {
	now := p.now()
	exp := now.Add(p.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: rec.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   rec.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(p.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	return &Session{
		User: domain.User{ID: rec.ID, Email: rec.Email},
		Token: &oauth2.Token{
			AccessToken: signed,
			TokenType:   "Bearer",
			Expiry:      exp,
		},
	}, nil
}
