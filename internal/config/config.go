// Package config loads process configuration from flags, environment
// variables and an optional YAML file.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/conorfennell/habbit/internal/secrets"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read. Nested keys use a
// double underscore: HABBIT_HOSTED__API_KEY sets hosted.api_key.
const EnvPrefix = "HABBIT_"

// Storage and identity modes.
const (
	ModeMemory   = "memory"
	ModeSQLite   = "sqlite"
	ModePostgres = "postgres"
	ModeHosted   = "hosted"
)

type Config struct {
	Addr   string       `koanf:"addr" validate:"required"`
	Mode   string       `koanf:"mode" validate:"required,oneof=memory sqlite postgres hosted"`
	DB     DBConfig     `koanf:"db"`
	Hosted HostedConfig `koanf:"hosted"`
	Auth   AuthConfig   `koanf:"auth"`
	Log    LogConfig    `koanf:"log"`
}

type DBConfig struct {
	DSN string `koanf:"dsn"`
}

type HostedConfig struct {
	URL     string `koanf:"url" validate:"omitempty,url"`
	APIKey  string `koanf:"api_key"`
	AuthURL string `koanf:"auth_url" validate:"omitempty,url"`
}

type AuthConfig struct {
	JWTSecret  string        `koanf:"jwt_secret"`
	SessionTTL time.Duration `koanf:"session_ttl" validate:"gt=0"`
	// SecureCookie marks the session cookie Secure; enable behind TLS.
	SecureCookie bool `koanf:"secure_cookie"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	File  string `koanf:"file"`
}

// Flags returns the command-line flags. Their defaults are the configuration defaults.
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("habbit", pflag.ContinueOnError)
	f.String("config", "", "Path to a YAML configuration file")
	f.String("addr", ":8080", "HTTP listen address")
	f.String("mode", ModeSQLite, "Storage and identity mode: memory, sqlite, postgres or hosted")
	f.String("db.dsn", "habbit.db", "Database file (sqlite) or connection string (postgres)")
	f.String("hosted.url", "", "Hosted table store REST URL")
	f.String("hosted.api_key", "", "Hosted service API key")
	f.String("hosted.auth_url", "", "Hosted auth URL")
	f.String("auth.jwt_secret", "", "Secret used to sign local session tokens")
	f.Duration("auth.session_ttl", 7*24*time.Hour, "Session lifetime")
	f.Bool("auth.secure_cookie", false, "Mark the session cookie Secure")
	f.String("log.level", "info", "Log level: debug, info, warn or error")
	f.String("log.file", "", "Also write logs to this rotating file")
	return f
}

// Load reads configuration. Later sources win: YAML file, then environment
// (after loading .env if present), then explicitly set flags. Secrets still
// missing are looked up in the OS keyring.
func Load(args []string) (*Config, error) {
	flags := Flags()
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")

	path, _ := flags.GetString("config")
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file %s does not exist", path)
			}
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		return strings.ReplaceAll(key, "__", "."), value
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Unset flags only supply defaults for keys no other source set.
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.fillSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) fillSecrets() error {
	switch c.Mode {
	case ModeHosted:
		if err := secrets.Fill(&c.Hosted.APIKey, secrets.KeyHostedAPIKey); err != nil {
			return err
		}
	case ModePostgres:
		if err := secrets.Fill(&c.DB.DSN, secrets.KeyDatabaseDSN); err != nil {
			return err
		}
	}
	if c.Mode != ModeHosted {
		if err := secrets.Fill(&c.Auth.JWTSecret, secrets.KeyJWTSecret); err != nil {
			return err
		}
		// Memory mode loses every account on restart, so a throwaway secret is enough.
		if c.Auth.JWTSecret == "" && c.Mode == ModeMemory {
			buf := make([]byte, 32)
			if _, err := rand.Read(buf); err != nil {
				return fmt.Errorf("failed to generate session secret: %w", err)
			}
			c.Auth.JWTSecret = hex.EncodeToString(buf)
		}
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(modeRules, Config{})
	return v
}

// modeRules requires the keys each mode depends on.
func modeRules(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	switch c.Mode {
	case ModeSQLite, ModePostgres:
		if c.DB.DSN == "" {
			sl.ReportError(c.DB.DSN, "DB.DSN", "DSN", "required_for_mode", c.Mode)
		}
	case ModeHosted:
		if c.Hosted.URL == "" {
			sl.ReportError(c.Hosted.URL, "Hosted.URL", "URL", "required_for_mode", c.Mode)
		}
		if c.Hosted.APIKey == "" {
			sl.ReportError(c.Hosted.APIKey, "Hosted.APIKey", "APIKey", "required_for_mode", c.Mode)
		}
		if c.Hosted.AuthURL == "" {
			sl.ReportError(c.Hosted.AuthURL, "Hosted.AuthURL", "AuthURL", "required_for_mode", c.Mode)
		}
	}
	if c.Mode != ModeHosted && len(c.Auth.JWTSecret) < 16 {
		sl.ReportError(c.Auth.JWTSecret, "Auth.JWTSecret", "JWTSecret", "min_secret", "16")
	}
}

// Validate checks the configuration for the selected mode.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
