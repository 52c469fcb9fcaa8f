// ABOUTME: Configuration loading and parsing for safespace-admin
// ABOUTME: Supports YAML or TOML files, .env files and environment-only configuration

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend modes.
const (
	ModeSupabase = "supabase"
	ModeLocal    = "local"
)

// Storage drivers.
const (
	DriverAPI = "api"
	DriverS3  = "s3"
)

const minJWTSecretLength = 32

// Config represents the complete safespace-admin configuration
type Config struct {
	Backend BackendConfig `yaml:"backend" toml:"backend"`
	Local   LocalConfig   `yaml:"local" toml:"local"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Session SessionConfig `yaml:"session" toml:"session"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// BackendConfig selects and addresses the backend
type BackendConfig struct {
	Mode           string `yaml:"mode" toml:"mode"`
	URL            string `yaml:"url" toml:"url"`
	AnonKey        string `yaml:"anon_key" toml:"anon_key"`
	ServiceRoleKey string `yaml:"service_role_key" toml:"service_role_key"` // optional, enables signup rollback

	RequestTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout" toml:"request_timeout"`
}

// LocalConfig holds the embedded backend settings used in local mode
type LocalConfig struct {
	DatabasePath  string `yaml:"database_path" toml:"database_path"`
	StorageDir    string `yaml:"storage_dir" toml:"storage_dir"`
	PublicBaseURL string `yaml:"public_base_url" toml:"public_base_url"`
	JWTSecret     string `yaml:"jwt_secret" toml:"jwt_secret"`

	SessionTTL    time.Duration `yaml:"-" toml:"-"`
	SessionTTLRaw string        `yaml:"session_ttl" toml:"session_ttl"`
}

// StorageConfig selects where content media is stored
type StorageConfig struct {
	Driver string   `yaml:"driver" toml:"driver"`
	S3     S3Config `yaml:"s3" toml:"s3"`
}

// S3Config addresses an S3-compatible bucket endpoint
type S3Config struct {
	Endpoint        string `yaml:"endpoint" toml:"endpoint"`
	Region          string `yaml:"region" toml:"region"`
	AccessKeyID     string `yaml:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" toml:"secret_access_key"`
	PublicBaseURL   string `yaml:"public_base_url" toml:"public_base_url"`
}

// SessionConfig holds where the signed-in session is persisted
type SessionConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(&cfg)
}

// FromEnv builds a Config from SAFESPACE_* environment variables. The
// dashboard's VITE_SUPABASE_URL and VITE_SUPABASE_ANON_KEY are accepted as
// fallbacks.
func FromEnv() (*Config, error) {
	cfg := Config{
		Backend: BackendConfig{
			Mode:              os.Getenv("SAFESPACE_MODE"),
			URL:               firstEnv("SAFESPACE_URL", "VITE_SUPABASE_URL"),
			AnonKey:           firstEnv("SAFESPACE_ANON_KEY", "VITE_SUPABASE_ANON_KEY"),
			ServiceRoleKey:    os.Getenv("SAFESPACE_SERVICE_ROLE_KEY"),
			RequestTimeoutRaw: os.Getenv("SAFESPACE_REQUEST_TIMEOUT"),
		},
		Local: LocalConfig{
			DatabasePath:  os.Getenv("SAFESPACE_DB_PATH"),
			StorageDir:    os.Getenv("SAFESPACE_STORAGE_DIR"),
			PublicBaseURL: os.Getenv("SAFESPACE_PUBLIC_BASE_URL"),
			JWTSecret:     os.Getenv("SAFESPACE_JWT_SECRET"),
			SessionTTLRaw: os.Getenv("SAFESPACE_SESSION_TTL"),
		},
		Storage: StorageConfig{
			Driver: os.Getenv("SAFESPACE_STORAGE_DRIVER"),
			S3: S3Config{
				Endpoint:        os.Getenv("SAFESPACE_S3_ENDPOINT"),
				Region:          os.Getenv("SAFESPACE_S3_REGION"),
				AccessKeyID:     os.Getenv("SAFESPACE_S3_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("SAFESPACE_S3_SECRET_ACCESS_KEY"),
				PublicBaseURL:   os.Getenv("SAFESPACE_S3_PUBLIC_BASE_URL"),
			},
		},
		Session: SessionConfig{Path: os.Getenv("SAFESPACE_SESSION_PATH")},
		Logging: LoggingConfig{
			Level:  os.Getenv("SAFESPACE_LOG_LEVEL"),
			Format: os.Getenv("SAFESPACE_LOG_FORMAT"),
		},
	}
	return finish(&cfg)
}

// LoadDotEnv loads variables from the given .env files into the environment.
// Missing files are skipped and variables already set are kept.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

func finish(cfg *Config) (*Config, error) {
	applyDefaults(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// DefaultSessionPath returns $XDG_CONFIG_HOME/safespace-admin/session.json,
// falling back to ~/.config.
func DefaultSessionPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "safespace-admin", "session.json")
}

func applyDefaults(cfg *Config) {
	if cfg.Backend.Mode == "" {
		cfg.Backend.Mode = ModeSupabase
	}
	if cfg.Backend.RequestTimeoutRaw == "" {
		cfg.Backend.RequestTimeoutRaw = "30s"
	}
	if cfg.Local.SessionTTLRaw == "" {
		cfg.Local.SessionTTLRaw = "24h"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverAPI
	}
	if cfg.Storage.S3.Region == "" {
		cfg.Storage.S3.Region = "us-east-1"
	}
	if cfg.Session.Path == "" {
		cfg.Session.Path = DefaultSessionPath()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Backend.Mode {
	case ModeSupabase:
		if c.Backend.URL == "" {
			return fmt.Errorf("backend.url is required (or set SAFESPACE_URL)")
		}
		u, err := url.Parse(c.Backend.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("backend.url %q is not a valid URL", c.Backend.URL)
		}
		if c.Backend.AnonKey == "" {
			return fmt.Errorf("backend.anon_key is required (or set SAFESPACE_ANON_KEY)")
		}
		if !strings.HasPrefix(c.Backend.AnonKey, "eyJ") {
			return fmt.Errorf("backend.anon_key does not look like a JWT (expected it to start with eyJ)")
		}
	case ModeLocal:
		if c.Local.DatabasePath == "" {
			return fmt.Errorf("local.database_path is required in local mode")
		}
		if c.Local.StorageDir == "" {
			return fmt.Errorf("local.storage_dir is required in local mode")
		}
		if len(c.Local.JWTSecret) < minJWTSecretLength {
			return fmt.Errorf("local.jwt_secret must be at least %d bytes", minJWTSecretLength)
		}
	default:
		return fmt.Errorf("backend.mode must be %q or %q, got %q", ModeSupabase, ModeLocal, c.Backend.Mode)
	}

	switch c.Storage.Driver {
	case DriverAPI:
	case DriverS3:
		if c.Storage.S3.Endpoint == "" {
			return fmt.Errorf("storage.s3.endpoint is required for the s3 driver")
		}
		if c.Storage.S3.AccessKeyID == "" || c.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required for the s3 driver")
		}
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", DriverAPI, DriverS3, c.Storage.Driver)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.RequestTimeoutRaw != "" {
		cfg.Backend.RequestTimeout, err = time.ParseDuration(cfg.Backend.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Backend.RequestTimeoutRaw, err)
		}
	}

	if cfg.Local.SessionTTLRaw != "" {
		cfg.Local.SessionTTL, err = time.ParseDuration(cfg.Local.SessionTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing session_ttl %q: %w", cfg.Local.SessionTTLRaw, err)
		}
	}

	return nil
}
