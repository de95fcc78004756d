package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/GregMSThompson/moneyloop/internal/dto"
)

const ConfigPathEnvVar = "CONFIG_PATH"

var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins). A .env file in
// the working directory is folded into the environment first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.Plaid.Environment = normalizeEnvironment(cfg.Plaid.Environment)
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
	"plaid.country_codes",
	"plaid.products",
}

// processSliceFields splits comma separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"port":                "server.port",
	"read_timeout":        "server.read_timeout",
	"write_timeout":       "server.write_timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",

	"log_level": "log.level",

	"gcp_project_id":       "gcp.project_id",
	"google_cloud_project": "gcp.project_id",
	"gcp_region":           "gcp.region",

	"plaid_client_id":     "plaid.client_id",
	"plaid_secret":        "plaid.secret",
	"plaid_environment":   "plaid.environment",
	"plaid_env":           "plaid.environment",
	"plaid_client_name":   "plaid.client_name",
	"plaid_language":      "plaid.language",
	"plaid_country_codes": "plaid.country_codes",
	"plaid_products":      "plaid.products",
	"plaid_page_size":     "plaid.page_size",
	"plaid_sync_days":     "plaid.sync_days",

	"supabase_jwt_secret":   "supabase.jwt_secret",
	"supabase_jwks_url":     "supabase.jwks_url",
	"supabase_jwt_audience": "supabase.jwt_audience",
	"supabase_cookie_name":  "supabase.cookie_name",

	"database_url":       "database.url",
	"database_max_conns": "database.max_conns",
	"database_migrate":   "database.migrate",

	"kms_key_name":       "crypto.kms_key_name",
	"crypto_local_key":   "crypto.local_key",
	"cache_accounts_ttl": "cache.accounts_ttl",
}

// envTransformFunc maps known variable names to config paths and drops the rest.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

func normalizeEnvironment(e dto.PlaidEnvironment) dto.PlaidEnvironment {
	return dto.PlaidEnvironment(strings.ToLower(strings.TrimSpace(string(e))))
}
