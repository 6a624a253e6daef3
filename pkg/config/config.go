// Package config loads the assessment server configuration from defaults,
// an optional YAML file, an optional .env file, ASSESS_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/governance-platform/assessment/pkg/authz"
	"github.com/governance-platform/assessment/pkg/cache"
	"github.com/governance-platform/assessment/pkg/evaluation"
)

// EnvPrefix prefixes every environment variable, e.g. ASSESS_STORAGE_BACKEND.
const EnvPrefix = "ASSESS"

// Storage backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQL    = "sql"
	BackendRedis  = "redis"
)

type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	Dialect   string `mapstructure:"dialect"`
	DSN       string `mapstructure:"dsn"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisPass string `mapstructure:"redis_password"`
	RedisDB   int    `mapstructure:"redis_db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// AuditConfig places the audit log. An empty DSN reuses the storage
// database when the sql backend is selected.
type AuditConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	RetentionDays int    `mapstructure:"retention_days"`
	LogDenied     bool   `mapstructure:"log_denied"`
	Dialect       string `mapstructure:"dialect"`
	DSN           string `mapstructure:"dsn"`
}

type JWTConfig struct {
	IDClaim       string `mapstructure:"id_claim"`
	EmailClaim    string `mapstructure:"email_claim"`
	NameClaim     string `mapstructure:"name_claim"`
	RoleClaim     string `mapstructure:"role_claim"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	Issuer        string `mapstructure:"issuer"`
	Audience      string `mapstructure:"audience"`
}

type AuthConfig struct {
	Mode string    `mapstructure:"mode"`
	JWT  JWTConfig `mapstructure:"jwt"`
}

type ReviewConfig struct {
	RequireJustification        bool `mapstructure:"require_justification"`
	RequireEvidenceVerification bool `mapstructure:"require_evidence_verification"`
}

type LifecycleConfig struct {
	AllowDeleteAfterSubmit bool `mapstructure:"allow_delete_after_submit"`
}

type EvidenceConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// CatalogConfig selects the criteria catalog. An empty Path uses the
// built-in catalog.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// TelemetryConfig enables OTLP metric export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Insecure    bool          `mapstructure:"insecure"`
	Interval    time.Duration `mapstructure:"interval"`
	ServiceName string        `mapstructure:"service_name"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Review    ReviewConfig    `mapstructure:"review"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Evidence  EvidenceConfig  `mapstructure:"evidence"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Cache     cache.Config    `mapstructure:"cache"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

var defaults = map[string]any{
	"server.listen":           ":8080",
	"server.shutdown_timeout": 30 * time.Second,
	"server.cors_origins":     []string{"*"},

	"storage.backend":        BackendFile,
	"storage.dir":            "data",
	"storage.dialect":        "sqlite",
	"storage.dsn":            "assessment.db",
	"storage.redis_addr":     "localhost:6379",
	"storage.redis_password": "",
	"storage.redis_db":       0,
	"storage.key_prefix":     "evaluation_",

	"audit.enabled":        true,
	"audit.retention_days": 365,
	"audit.log_denied":     true,
	"audit.dialect":        "sqlite",
	"audit.dsn":            "",

	"auth.mode":                string(authz.ModeHeader),
	"auth.jwt.id_claim":        "sub",
	"auth.jwt.email_claim":     "email",
	"auth.jwt.name_claim":      "name",
	"auth.jwt.role_claim":      "role",
	"auth.jwt.public_key_path": "",
	"auth.jwt.issuer":          "",
	"auth.jwt.audience":        "",

	"review.require_justification":         true,
	"review.require_evidence_verification": true,

	"lifecycle.allow_delete_after_submit": true,

	"evidence.max_bytes": evaluation.DefaultEvidenceLimit,

	"catalog.path": "",

	"cache.enabled":  true,
	"cache.ttl":      5 * time.Minute,
	"cache.max_size": 256,

	"telemetry.endpoint":     "",
	"telemetry.insecure":     false,
	"telemetry.interval":     time.Minute,
	"telemetry.service_name": "assessment-server",

	"log.level":  "info",
	"log.format": "text",
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"listen":          "server.listen",
	"storage-backend": "storage.backend",
	"storage-dir":     "storage.dir",
	"db-dialect":      "storage.dialect",
	"db-dsn":          "storage.dsn",
	"redis-addr":      "storage.redis_addr",
	"auth-mode":       "auth.mode",
	"catalog":         "catalog.path",
	"otlp-endpoint":   "telemetry.endpoint",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

// RegisterFlags adds the server flags to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("env-file", ".env", "Path to an optional .env file")
	flags.String("listen", ":8080", "Address to listen on")
	flags.String("storage-backend", BackendFile, "Storage backend (memory, file, sql or redis)")
	flags.String("storage-dir", "data", "Directory for the file backend")
	flags.String("db-dialect", "sqlite", "SQL dialect (sqlite, postgres or mysql)")
	flags.String("db-dsn", "assessment.db", "SQL connection string")
	flags.String("redis-addr", "localhost:6379", "Redis address")
	flags.String("auth-mode", string(authz.ModeHeader), "Identity extraction (header or jwt)")
	flags.String("catalog", "", "Path to a criteria catalog YAML file")
	flags.String("otlp-endpoint", "", "OTLP gRPC endpoint for metrics")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text or json)")
}

// Load resolves the configuration. flags may be nil, in which case only
// defaults, the environment and the default .env file apply.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	envFile := ".env"
	if flags != nil {
		if f := flags.Lookup("env-file"); f != nil {
			envFile = f.Value.String()
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings and ranges.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendMemory, BackendFile, BackendSQL, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend))
	}
	if c.Storage.Backend == BackendFile && c.Storage.Dir == "" {
		errs = append(errs, errors.New("storage.dir: required for the file backend"))
	}
	if c.Storage.KeyPrefix == "" {
		errs = append(errs, errors.New("storage.key_prefix: must not be empty"))
	}
	switch authz.Mode(c.Auth.Mode) {
	case authz.ModeHeader, authz.ModeJWT:
	default:
		errs = append(errs, fmt.Errorf("auth.mode: unknown mode %q", c.Auth.Mode))
	}
	if c.Evidence.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("evidence.max_bytes: must be positive, got %d", c.Evidence.MaxBytes))
	}
	if c.Audit.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("audit.retention_days: must not be negative, got %d", c.Audit.RetentionDays))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout: must be positive"))
	}
	return errors.Join(errs...)
}

// Warnings lists settings that are valid but unsafe outside development.
func (c *Config) Warnings() []string {
	var w []string
	switch authz.Mode(c.Auth.Mode) {
	case authz.ModeHeader:
		w = append(w, "auth.mode=header trusts client-supplied X-User-* headers; "+
			"run behind an authenticating proxy that strips them, or use auth.mode=jwt")
	case authz.ModeJWT:
		if c.Auth.JWT.PublicKeyPath == "" {
			w = append(w, "auth.jwt.public_key_path is empty; bearer token signatures are not verified")
		}
	}
	return w
}

// JWT converts the jwt section for authz.NewJWTExtractor.
func (c *Config) JWT() authz.JWTConfig {
	j := c.Auth.JWT
	return authz.JWTConfig{
		IDClaim:       j.IDClaim,
		EmailClaim:    j.EmailClaim,
		NameClaim:     j.NameClaim,
		RoleClaim:     j.RoleClaim,
		PublicKeyPath: j.PublicKeyPath,
		Issuer:        j.Issuer,
		Audience:      j.Audience,
	}
}
