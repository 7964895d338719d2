package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/conorfennell/habbit/internal/domain"
	"golang.org/x/oauth2"
)

// HostedProvider delegates identity to a hosted auth service speaking the
// OAuth2 password grant plus signup, logout and user endpoints.
type HostedProvider struct {
	authURL string
	oauth   oauth2.Config
	http    *http.Client
}

// NewHostedProvider creates a provider for authURL (for example https://example.supabase.co/auth/v1).
func NewHostedProvider(authURL, apiKey string, base *http.Client) *HostedProvider {
	if base == nil {
		base = http.DefaultClient
	}
	authURL = strings.TrimRight(authURL, "/")
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client := &http.Client{
		Transport: &apiKeyTransport{key: apiKey, base: transport},
		Timeout:   base.Timeout,
	}
	return &HostedProvider{
		authURL: authURL,
		oauth: oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  authURL + "/token?grant_type=password",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http: client,
	}
}

type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("apikey", t.key)
	return t.base.RoundTrip(r)
}

type hostedUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SignIn exchanges the credentials for a token.
func (p *HostedProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.http)
	tok, err := p.oauth.PasswordCredentialsToken(ctx, normalizeEmail(email), password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	user, ok := userFromExtra(tok.Extra("user"))
	if !ok {
		s, err := p.Current(ctx, tok.AccessToken)
		if err != nil {
			return nil, err
		}
		s.Token = tok
		return s, nil
	}
	return &Session{User: user, Token: tok}, nil
}

func userFromExtra(v any) (domain.User, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return domain.User{}, false
	}
	id, _ := m["id"].(string)
	email, _ := m["email"].(string)
	return domain.User{ID: id, Email: email}, id != ""
}

type signUpResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	User         *hostedUser `json:"user"`
	// Without a session the service answers with the bare user.
	ID    string `json:"id"`
	Email string `json:"email"`
}

type hostedError struct {
	Code    any    `json:"code"`
	Message string `json:"msg"`
	Error   string `json:"error_description"`
}

// SignUp registers the user. When the service requires email confirmation it
// returns no session.
func (p *HostedProvider) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if err := checkSignUp(email, password); err != nil {
		return nil, err
	}
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sign up: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authURL+"/signup", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create sign up request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var he hostedError
		if err := json.NewDecoder(resp.Body).Decode(&he); err != nil {
			return nil, fmt.Errorf("failed to sign up: status %d", resp.StatusCode)
		}
		msg := strings.ToLower(he.Message + " " + he.Error)
		if strings.Contains(msg, "already") {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to sign up: status %d: %s", resp.StatusCode, strings.TrimSpace(he.Message+" "+he.Error))
	}

	var out signUpResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode sign up response: %w", err)
	}
	if out.AccessToken == "" {
		return nil, nil
	}
	user := domain.User{ID: out.ID, Email: out.Email}
	if out.User != nil {
		user = domain.User{ID: out.User.ID, Email: out.User.Email}
	}
	return &Session{
		User: user,
		Token: &oauth2.Token{
			AccessToken:  out.AccessToken,
			TokenType:    out.TokenType,
			RefreshToken: out.RefreshToken,
			Expiry:       time.Now().Add(time.Duration(out.ExpiresIn) * time.Second),
		},
	}, nil
}

// SignOut revokes the session's token at the service.
func (p *HostedProvider) SignOut(ctx context.Context, s *Session) error {
	if s == nil || s.Token == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("failed to create sign out request: %w", err)
	}
	s.Token.SetAuthHeader(req)
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("failed to sign out: status %d", resp.StatusCode)
	}
	return nil
}

// Current resolves accessToken to its user.
func (p *HostedProvider) Current(ctx context.Context, accessToken string) (*Session, error) {
	if accessToken == "" {
		return nil, ErrNoSession
	}
	tok := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.authURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user request: %w", err)
	}
	tok.SetAuthHeader(req)
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrNoSession
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("failed to fetch user: status %d", resp.StatusCode)
	}

	var u hostedUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	if u.ID == "" {
		return nil, ErrNoSession
	}
	return &Session{User: domain.User{ID: u.ID, Email: u.Email}, Token: tok}, nil
}
