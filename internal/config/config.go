package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the workspace.
const FileName = "sprintbook.yml"

// Config models sprintbook.yml.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Database DatabaseConfig  `yaml:"database"`
	Booking  BookingConfig   `yaml:"booking"`
	Notify   NotifyConfig    `yaml:"notify"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Archive  ArchiveConfig   `yaml:"archive"`
	Log      LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
	// JWTSecretEnv names the environment variable holding the HS256 secret.
	// Empty disables bearer tokens; the X-Tribe header is used instead.
	JWTSecretEnv string `yaml:"jwt_secret_env"`
}

type DatabaseConfig struct {
	Driver        string `yaml:"driver"`
	DSN           string `yaml:"dsn"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
}

type BookingConfig struct {
	MaxSprints int `yaml:"max_sprints"`
	// AvailabilityMaxAge is the Cache-Control max-age of availability responses.
	AvailabilityMaxAge int `yaml:"availability_max_age"`
}

type NotifyConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Channel       string `yaml:"channel"`
}

// Enabled reports whether change notifications go to Redis.
func (n NotifyConfig) Enabled() bool { return strings.TrimSpace(n.RedisAddr) != "" }

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

type ArchiveConfig struct {
	Driver    string `yaml:"driver"`
	Dir       string `yaml:"dir"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	Prefix    string `yaml:"prefix"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// AvailabilityMaxAge as a duration.
func (c *Config) AvailabilityMaxAge() time.Duration {
	return time.Duration(c.Booking.AvailabilityMaxAge) * time.Second
}

// Load reads and validates config from workspace, falling back to defaults
// when the file is absent.
func Load(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default(), nil
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "", "sqlite", "sqlite3":
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("config.database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config.database.driver %q not supported", c.Database.Driver)
	}
	if c.Booking.MaxSprints != 0 && c.Booking.MaxSprints != 6 {
		return fmt.Errorf("config.booking.max_sprints must be 6")
	}
	if c.Booking.AvailabilityMaxAge < 0 {
		return fmt.Errorf("config.booking.availability_max_age must be >= 0")
	}
	if c.BasePath() != "" && !strings.HasPrefix(c.BasePath(), "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Archive.Driver {
	case "", "fs":
	case "s3":
		if strings.TrimSpace(c.Archive.Bucket) == "" {
			return fmt.Errorf("config.archive.bucket is required for s3")
		}
	default:
		return fmt.Errorf("config.archive.driver %q not supported", c.Archive.Driver)
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d timeout_seconds must be >= 0", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("webhook %d has empty event type", i)
			}
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q not supported", c.Log.Level)
	}
	return nil
}

// BasePath returns the API prefix without a trailing slash.
func (c *Config) BasePath() string {
	return strings.TrimRight(strings.TrimSpace(c.Server.BasePath), "/")
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Unset fields keep
// their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /api
  jwt_secret_env: ""

database:
  driver: sqlite
  dsn: ""
  busy_timeout_ms: 5000

booking:
  max_sprints: 6
  availability_max_age: 5

notify:
  redis_addr: ""
  channel: sprintbook.changes

webhooks: []

archive:
  driver: fs
  dir: .sprintbook/archive
  prefix: quarters

log:
  level: info
  json: false
`
