// Package secrets reads credentials from the OS keyring when they are not
// supplied by configuration.
package secrets

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Service is the keyring service name all secrets are stored under.
const Service = "habbit"

// Keyring entries, keyed by the configuration key they stand in for.
const (
	KeyHostedAPIKey = "hosted.api_key"
	KeyJWTSecret    = "auth.jwt_secret"
	KeyDatabaseDSN  = "db.dsn"
)

var (
	// ErrNotFound is returned when no secret is stored for the key.
	ErrNotFound = errors.New("secret not found in keyring")
	// ErrUnavailable is returned when the OS keyring cannot be reached.
	ErrUnavailable = errors.New("OS keyring is not available")
)

// Get returns the secret stored for key.
func Get(key string) (string, error) {
	v, err := keyring.Get(Service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, nil
}

// Set stores value for key.
func Set(key, value string) error {
	if value == "" {
		return fmt.Errorf("secret %s cannot be empty", key)
	}
	if err := keyring.Set(Service, key, value); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", key, err)
	}
	return nil
}

// Delete removes the secret for key.
func Delete(key string) error {
	if err := keyring.Delete(Service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s from keyring: %w", key, err)
	}
	return nil
}

// Fill sets *dst from the keyring when it is empty. A missing entry or an
// unavailable keyring leaves *dst empty and is not an error.
func Fill(dst *string, key string) error {
	if *dst != "" {
		return nil
	}
	v, err := Get(key)
	switch {
	case err == nil:
		*dst = v
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnavailable):
		return nil
	default:
		return err
	}
}
