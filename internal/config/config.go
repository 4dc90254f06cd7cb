package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/geodex/geodex/pkg/errors"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global   GlobalConfig          `yaml:"global"`
	Fetch    FetchConfig           `yaml:"fetch"`
	Database DatabaseConfig        `yaml:"database"`
	Stage    StageConfig           `yaml:"stage"`
	Repos    map[string]RepoConfig `yaml:"repos"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
	Email       string `yaml:"email"`
}

// FetchConfig represents remote-provider fetch settings
type FetchConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// DatabaseConfig represents the optional database inventory backend
type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// StageConfig represents the stage-directory watcher settings
type StageConfig struct {
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// RepoConfig represents per-driver repository settings
type RepoConfig struct {
	// Repository is the archive root directory for this driver
	Repository string `yaml:"repository"`
	// Tiles is the path to the driver's tile-grid vector file (GeoJSON)
	Tiles string `yaml:"tiles"`
	// Source selects which remote source to fetch from when a driver
	// supports more than one
	Source   string `yaml:"source"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Extra holds driver-specific settings not modeled above
	Extra map[string]string `yaml:"extra"`
}

// Setting resolves a per-driver setting by key. Lookup order: the modeled
// fields, then Extra. Returns UNKNOWN_SETTING when nothing applies; callers
// with computed defaults handle that themselves.
func (r RepoConfig) Setting(key string) (string, error) {
	switch key {
	case "repository":
		if r.Repository != "" {
			return r.Repository, nil
		}
	case "tiles":
		if r.Tiles != "" {
			return r.Tiles, nil
		}
	case "source":
		if r.Source != "" {
			return r.Source, nil
		}
	case "username":
		if r.Username != "" {
			return r.Username, nil
		}
	case "password":
		if r.Password != "" {
			return r.Password, nil
		}
	default:
		if v, ok := r.Extra[key]; ok {
			return v, nil
		}
	}
	return "", errors.Newf(errors.ErrCodeUnknownSetting, "%q is not a configured setting", key)
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			LogFormat:   "console",
			MetricsPort: 9110,
		},
		Fetch: FetchConfig{
			Timeout:     60 * time.Second,
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
		},
		Database: DatabaseConfig{
			Enabled: false,
		},
		Stage: StageConfig{
			SettleDelay: 5 * time.Second,
		},
		Repos: map[string]RepoConfig{},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigLoad, "failed to read config file", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(errors.ErrCodeConfigLoad, "failed to parse config file", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("GEODEX_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("GEODEX_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}
	if val := os.Getenv("GEODEX_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Global.MetricsPort = port
		}
	}
	if val := os.Getenv("GEODEX_EMAIL"); val != "" {
		c.Global.Email = val
	}
	if val := os.Getenv("GEODEX_FETCH_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Fetch.Timeout = d
		}
	}
	if val := os.Getenv("GEODEX_DATABASE_DSN"); val != "" {
		c.Database.DSN = val
		c.Database.Enabled = true
	}
	if val := os.Getenv("GEODEX_DATABASE_ENABLED"); val != "" {
		c.Database.Enabled = strings.ToLower(val) == "true"
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigLoad, "failed to marshal config", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return errors.Wrap(errors.ErrCodeConfigLoad, "failed to create config directory", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return errors.Wrap(errors.ErrCodeConfigLoad, "failed to write config file", err)
	}

	return nil
}

// Repo returns the repository settings for a driver. A missing section is an
// error: the archive root cannot be guessed.
func (c *Configuration) Repo(driver string) (RepoConfig, error) {
	rc, ok := c.Repos[driver]
	if !ok {
		return RepoConfig{}, errors.Newf(errors.ErrCodeMissingConfig,
			"no repos section configured for driver %q", driver)
	}
	return rc, nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.EqualFold(c.Global.LogLevel, level) {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return errors.Newf(errors.ErrCodeConfigValidation,
			"invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Global.LogFormat != "console" && c.Global.LogFormat != "json" {
		return errors.Newf(errors.ErrCodeConfigValidation,
			"invalid log_format: %s (must be console or json)", c.Global.LogFormat)
	}

	if c.Fetch.MaxAttempts <= 0 {
		return errors.New(errors.ErrCodeConfigValidation, "fetch.max_attempts must be greater than 0")
	}

	if c.Database.Enabled && c.Database.DSN == "" {
		return errors.New(errors.ErrCodeConfigValidation, "database.enabled requires database.dsn")
	}

	for name, rc := range c.Repos {
		if rc.Repository == "" {
			return errors.Newf(errors.ErrCodeConfigValidation,
				"repos.%s.repository (archive root) is required", name)
		}
		if !filepath.IsAbs(rc.Repository) {
			return errors.Newf(errors.ErrCodeConfigValidation,
				"repos.%s.repository must be an absolute path, got %q", name, rc.Repository)
		}
	}

	return nil
}

// Load builds the effective configuration: defaults, then the file (if any),
// then environment overrides, then validation.
func Load(filename string) (*Configuration, error) {
	cfg := NewDefault()
	if filename != "" {
		if err := cfg.LoadFromFile(filename); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// String renders a redacted one-line summary for logging.
func (c *Configuration) String() string {
	drivers := make([]string, 0, len(c.Repos))
	for name := range c.Repos {
		drivers = append(drivers, name)
	}
	return fmt.Sprintf("Configuration{log=%s/%s, db=%v, repos=%v}",
		c.Global.LogLevel, c.Global.LogFormat, c.Database.Enabled, drivers)
}
