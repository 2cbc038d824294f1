package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string `validate:"required"`

	// Identity provider (Entra ID). Audience defaults to api://<ClientID>.
	TenantID      string `validate:"required"`
	ClientID      string `validate:"required"`
	Authority     string `validate:"required,url"`
	Audience      string `validate:"required"`
	Issuer        string // optional; empty disables the iss check
	JWKSURL       string `validate:"required,url"`
	JWKSCache     string `validate:"oneof=none memory redis"`
	JWKSCacheTTL  time.Duration
	ClockSkew     time.Duration
	ClientTimeout time.Duration

	// Pipeline store
	StoreBackend           string `validate:"oneof=tables postgres memory"`
	StorageAccount         string
	StorageKey             string
	TablesConnectionString string
	TableName              string `validate:"required_if=StoreBackend tables"`
	DatabaseURL            string `validate:"required_if=StoreBackend postgres"`
	PipelineSeedJSON       string
	PipelineSeedFile       string

	RedisURL string `validate:"required_if=JWKSCache redis"`

	// StrictStatus maps credential failures to 401/403/502 instead of a flat 500.
	StrictStatus bool
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                    env("APP_ENV", "dev"),
		HTTPAddr:               env("HTTP_ADDR", ":8080"),
		TenantID:               env("AZURE_TENANT_ID", ""),
		ClientID:               env("AZURE_CLIENT_ID", ""),
		Issuer:                 env("OIDC_ISSUER", ""),
		JWKSCache:              strings.ToLower(env("JWKS_CACHE", "none")),
		JWKSCacheTTL:           envDur("JWKS_CACHE_TTL_SEC", 3600) * time.Second,
		ClockSkew:              envDur("TOKEN_CLOCK_SKEW_SEC", 0) * time.Second,
		ClientTimeout:          envDur("HTTP_CLIENT_TIMEOUT_SEC", 10) * time.Second,
		StorageAccount:         env("AZURE_STORAGE_ACCOUNT", ""),
		StorageKey:             env("AZURE_STORAGE_KEY", ""),
		TablesConnectionString: env("AZURE_TABLES_CONNECTION_STRING", ""),
		TableName:              env("AZURE_TABLE_NAME", ""),
		DatabaseURL:            env("DATABASE_URL", ""),
		PipelineSeedJSON:       env("PIPELINE_SEED_JSON", ""),
		PipelineSeedFile:       env("PIPELINE_SEED_FILE", ""),
		RedisURL:               env("REDIS_URL", ""),
		StrictStatus:           envBool("STRICT_STATUS", false),
	}
	cfg.Authority = strings.TrimRight(env("OIDC_AUTHORITY", "https://login.microsoftonline.com/"+cfg.TenantID), "/")
	cfg.Audience = env("OIDC_AUDIENCE", "api://"+cfg.ClientID)
	cfg.JWKSURL = env("JWKS_URL", cfg.Authority+"/discovery/v2.0/keys")
	cfg.StoreBackend = strings.ToLower(env("STORE_BACKEND", defaultBackend(cfg)))
	if cfg.StoreBackend == "memory" {
		log.Println("[WARN] STORE_BACKEND=memory: pipelines are served from seed data only")
	}
	return cfg
}

// Validate reports the first missing or inconsistent setting.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.StoreBackend == "tables" && c.StorageAccount == "" && c.TablesConnectionString == "" {
		return errors.New("invalid configuration: AZURE_STORAGE_ACCOUNT or AZURE_TABLES_CONNECTION_STRING is required for the tables backend")
	}
	// a zero TTL means "never expire" to both ttlcache and redis
	if c.JWKSCache != "none" && c.JWKSCacheTTL <= 0 {
		return errors.New("invalid configuration: JWKS_CACHE_TTL_SEC must be a positive number of seconds")
	}
	if c.ClockSkew < 0 {
		return errors.New("invalid configuration: TOKEN_CLOCK_SKEW_SEC must not be negative")
	}
	if c.ClientTimeout < 0 {
		return errors.New("invalid configuration: HTTP_CLIENT_TIMEOUT_SEC must not be negative")
	}
	return nil
}

func defaultBackend(cfg Config) string {
	switch {
	case cfg.StorageAccount != "" || cfg.TablesConnectionString != "":
		return "tables"
	case cfg.DatabaseURL != "":
		return "postgres"
	}
	return "memory"
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
// envDur returns -1 for a value that is not an integer so Validate can reject it.
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return -1
		}
		return time.Duration(i)
	}
	return time.Duration(def)
}
