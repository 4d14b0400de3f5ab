// Package config loads taskboard settings from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageTables = "tables"

	FormatText = "text"
	FormatJSON = "json"

	appDir = "taskboard"
)

// Config is the full application configuration.
type Config struct {
	API  APIConfig  `yaml:"api"`
	Auth AuthConfig `yaml:"auth"`
	Log  LogConfig  `yaml:"log"`
	Mock MockConfig `yaml:"mock"`
}

// APIConfig describes how the client reaches the task API.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	UserID         string        `yaml:"user_id"`
	UserFile       string        `yaml:"user_file"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// AuthConfig holds client credentials.
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
	// DevJWTSecret, when set and no token is configured, is used to sign a
	// development token for the current user.
	DevJWTSecret string        `yaml:"dev_jwt_secret"`
	DevTokenTTL  time.Duration `yaml:"dev_token_ttl"`
}

// LogConfig controls logging and tracing output.
type LogConfig struct {
	Debug   bool   `yaml:"debug"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Tracing bool   `yaml:"tracing"`
}

// MockConfig configures the local mock task API.
type MockConfig struct {
	Addr                    string        `yaml:"addr"`
	Storage                 string        `yaml:"storage"`
	RedisConnectionString   string        `yaml:"redis_connection_string"`
	StorageConnectionString string        `yaml:"storage_connection_string"`
	TasksTable              string        `yaml:"tasks_table"`
	AuthSharedSecret        string        `yaml:"auth_shared_secret"`
	Auth0Domain             string        `yaml:"auth0_domain"`
	Auth0Audience           string        `yaml:"auth0_audience"`
	DeduperTTL              time.Duration `yaml:"deduper_ttl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			UserFile:       defaultPath("user_id"),
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			TokenFile:   defaultPath("token"),
			DevTokenTTL: time.Hour,
		},
		Log: LogConfig{Level: "info", Format: FormatText},
		Mock: MockConfig{
			Addr:       ":8000",
			Storage:    StorageMemory,
			TasksTable: "Tasks",
			DeduperTTL: 24 * time.Hour,
		},
	}
}

func defaultPath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, appDir, name)
}

// Load builds the configuration. path may be empty; otherwise the YAML file
// must exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadYAML(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadYAML decodes the YAML file at path into target.
func LoadYAML(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.API.BaseURL, "NEXT_PUBLIC_API_URL")
	setString(&c.API.BaseURL, "TASKS_API_URL")
	setString(&c.API.UserID, "TASKS_USER_ID")
	setString(&c.API.UserFile, "TASKS_USER_FILE")
	setString(&c.Auth.Token, "TASKS_TOKEN")
	setString(&c.Auth.TokenFile, "TASKS_TOKEN_FILE")
	setString(&c.Auth.DevJWTSecret, "TASKS_DEV_JWT_SECRET")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Mock.Addr, "MOCK_ADDR")
	setString(&c.Mock.Storage, "MOCK_STORAGE")
	setString(&c.Mock.RedisConnectionString, "REDIS_CONNECTION_STRING")
	setString(&c.Mock.StorageConnectionString, "STORAGE_CONNECTION_STRING")
	setString(&c.Mock.TasksTable, "TASKS_TABLE")
	setString(&c.Mock.AuthSharedSecret, "LOCAL_AUTH_SHARED_SECRET")
	setString(&c.Mock.Auth0Domain, "AUTH0_DOMAIN")
	setString(&c.Mock.Auth0Audience, "AUTH0_AUDIENCE")

	if v := os.Getenv("TASKS_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TASKS_MAX_RETRIES: %w", err)
		}
		c.API.MaxRetries = n
	}
	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"TASKS_RETRY_BASE_DELAY", &c.API.RetryBaseDelay},
		{"TASKS_REQUEST_TIMEOUT", &c.API.RequestTimeout},
		{"TASKS_DEV_TOKEN_TTL", &c.Auth.DevTokenTTL},
		{"DEDUPER_TTL", &c.Mock.DeduperTTL},
	}
	for _, d := range durations {
		v := os.Getenv(d.name)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	bools := []struct {
		name string
		dst  *bool
	}{
		{"DEBUG", &c.Log.Debug},
		{"TRACING", &c.Log.Tracing},
	}
	for _, b := range bools {
		v := os.Getenv(b.name)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", b.name, err)
		}
		*b.dst = parsed
	}
	return nil
}

func setString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api base url %q", c.API.BaseURL)
	}
	if c.API.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}
	if c.API.RetryBaseDelay < 0 {
		return errors.New("retry base delay must not be negative")
	}
	if c.API.RequestTimeout <= 0 {
		return errors.New("request timeout must be greater than zero")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	switch c.Log.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("invalid log format %q (want text or json)", c.Log.Format)
	}
	switch c.Mock.Storage {
	case StorageMemory:
	case StorageRedis:
		if c.Mock.RedisConnectionString == "" {
			return errors.New("missing redis config")
		}
	case StorageTables:
		if c.Mock.StorageConnectionString == "" || c.Mock.TasksTable == "" {
			return errors.New("missing storage config")
		}
	default:
		return fmt.Errorf("unknown mock storage %q", c.Mock.Storage)
	}
	if c.Mock.DeduperTTL <= 0 {
		return errors.New("deduper ttl must be greater than zero")
	}
	if (c.Mock.Auth0Domain == "") != (c.Mock.Auth0Audience == "") {
		return errors.New("auth0 domain and audience must be set together")
	}
	return nil
}

// Apply configures l from the log settings.
func (c LogConfig) Apply(l *log.Logger) error {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return err
	}
	if c.Debug {
		level = log.DebugLevel
	}
	l.SetLevel(level)
	if c.Format == FormatJSON {
		l.SetFormatter(&log.JSONFormatter{})
	} else {
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// ResolveUserID returns the configured user id, or the development user id
// stored in UserFile, creating and persisting a new one on first use.
func (c *APIConfig) ResolveUserID() (string, error) {
	if c.UserID != "" {
		return c.UserID, nil
	}
	if c.UserFile == "" {
		c.UserID = uuid.NewString()
		return c.UserID, nil
	}
	data, err := os.ReadFile(c.UserFile)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(data)); id != "" {
			c.UserID = id
			return id, nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("read user file: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(c.UserFile), 0o700); err != nil {
		return "", fmt.Errorf("create user file dir: %w", err)
	}
	if err := os.WriteFile(c.UserFile, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write user file: %w", err)
	}
	log.WithField("user_id", id).Info("created development user id")
	c.UserID = id
	return id, nil
}
