package config

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/GregMSThompson/moneyloop/internal/dto"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	GCP      GCPConfig      `koanf:"gcp"`
	Plaid    PlaidConfig    `koanf:"plaid"`
	Supabase SupabaseConfig `koanf:"supabase"`
	Database DatabaseConfig `koanf:"database"`
	Crypto   CryptoConfig   `koanf:"crypto"`
	Cache    CacheConfig    `koanf:"cache"`
}

type ServerConfig struct {
	Port              int           `koanf:"port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type GCPConfig struct {
	ProjectID string `koanf:"project_id"`
	Region    string `koanf:"region"`
}

type PlaidConfig struct {
	ClientID     string               `koanf:"client_id"`
	Secret       string               `koanf:"secret"`
	Environment  dto.PlaidEnvironment `koanf:"environment"`
	ClientName   string               `koanf:"client_name"`
	Language     string               `koanf:"language"`
	CountryCodes []string             `koanf:"country_codes"`
	Products     []string             `koanf:"products"`
	PageSize     int                  `koanf:"page_size"`
	SyncDays     int                  `koanf:"sync_days"`
}

// Configured reports whether both Plaid credentials are present.
func (p PlaidConfig) Configured() bool {
	return p.ClientID != "" && p.Secret != ""
}

type SupabaseConfig struct {
	JWTSecret   string `koanf:"jwt_secret"`
	JWKSURL     string `koanf:"jwks_url"`
	JWTAudience string `koanf:"jwt_audience"`
	CookieName  string `koanf:"cookie_name"`
}

type DatabaseConfig struct {
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"max_conns"`
	Migrate  bool   `koanf:"migrate"`
}

type CryptoConfig struct {
	KMSKeyName string `koanf:"kms_key_name"`
	LocalKey   string `koanf:"local_key"`
}

type CacheConfig struct {
	AccountsTTL time.Duration `koanf:"accounts_ttl"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			ShutdownTimeout:   20 * time.Second,
			CORSOrigins:       []string{"http://localhost:3000"},
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
		},
		Log: LogConfig{Level: "info"},
		Plaid: PlaidConfig{
			Environment:  dto.PlaidSandbox,
			ClientName:   "MoneyLoop",
			Language:     "en",
			CountryCodes: []string{"US"},
			Products:     []string{"transactions", "auth"},
			PageSize:     500,
			SyncDays:     30,
		},
		Supabase: SupabaseConfig{
			JWTAudience: "authenticated",
			CookieName:  "sb-access-token",
		},
		Database: DatabaseConfig{
			MaxConns: 10,
		},
		Cache: CacheConfig{
			AccountsTTL: 30 * time.Second,
		},
	}
}

func (c *Config) Validate() error {
	var problems []error
	if c.Database.URL == "" {
		problems = append(problems, errors.New("database.url is required"))
	}
	if c.Supabase.JWTSecret == "" && c.Supabase.JWKSURL == "" {
		problems = append(problems, errors.New("supabase.jwt_secret or supabase.jwks_url is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	switch c.Plaid.Environment {
	case dto.PlaidSandbox, dto.PlaidDevelopment, dto.PlaidProduction:
	default:
		problems = append(problems, fmt.Errorf("plaid.environment %q must be sandbox, development or production", c.Plaid.Environment))
	}
	if c.Plaid.PageSize < 1 || c.Plaid.PageSize > 500 {
		problems = append(problems, fmt.Errorf("plaid.page_size %d must be between 1 and 500", c.Plaid.PageSize))
	}
	if c.Plaid.SyncDays < 1 {
		problems = append(problems, errors.New("plaid.sync_days must be positive"))
	}
	if c.Server.RateLimitRequests < 1 {
		problems = append(problems, errors.New("server.rate_limit_requests must be positive"))
	}
	return errors.Join(problems...)
}

var secretRef = regexp.MustCompile(`^projects/[^/]+/secrets/[^/]+/versions/[^/]+$`)

// IsSecretRef reports whether v names a Secret Manager secret version.
func IsSecretRef(v string) bool {
	return secretRef.MatchString(v)
}

// SecretAccessor reads the payload of a Secret Manager secret version.
type SecretAccessor interface {
	AccessSecret(ctx context.Context, name string) (string, error)
}

func (c *Config) secretFields() map[string]*string {
	return map[string]*string{
		"plaid.secret":        &c.Plaid.Secret,
		"supabase.jwt_secret": &c.Supabase.JWTSecret,
		"database.url":        &c.Database.URL,
		"crypto.local_key":    &c.Crypto.LocalKey,
	}
}

// HasSecretRefs reports whether any secret-bearing field still holds a
// Secret Manager reference.
func (c *Config) HasSecretRefs() bool {
	for _, v := range c.secretFields() {
		if IsSecretRef(*v) {
			return true
		}
	}
	return false
}

// ResolveSecrets replaces every secret reference with the secret's payload.
func (c *Config) ResolveSecrets(ctx context.Context, accessor SecretAccessor) error {
	for key, v := range c.secretFields() {
		if !IsSecretRef(*v) {
			continue
		}
		payload, err := accessor.AccessSecret(ctx, *v)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", key, err)
		}
		*v = strings.TrimSpace(payload)
	}
	return nil
}
