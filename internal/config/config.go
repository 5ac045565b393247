// Package config loads the immutable process configuration from
// config.yaml and DIAG_-prefixed environment variables. Configuration is
// read once at startup.
package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/bayeshealth/diagnosis-api/internal/logging"
	"github.com/bayeshealth/diagnosis-api/internal/validation"
)

type Config struct {
	Server     ServerConfig      `koanf:"server"`
	Logging    logging.Config    `koanf:"logging"`
	RateLimit  RateLimitConfig   `koanf:"ratelimit"`
	Validation validation.Config `koanf:"validation"`
	Storage    StorageConfig     `koanf:"storage"`
	Recommend  RecommendConfig   `koanf:"recommend"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// RequestTimeout is a duration string such as "30s".
	RequestTimeout string `koanf:"request_timeout"`
	// AdminKey, when set, gates the history and stats endpoints.
	AdminKey string `koanf:"admin_key"`
}

// Timeout parses the configured request timeout, defaulting to 30s.
func (s ServerConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(s.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

type RateLimitConfig struct {
	// Classes maps an endpoint class name to its requests-per-minute
	// limit.
	Classes map[string]int `koanf:"classes"`
	// IdleEviction is how long a bucket may sit untouched before the
	// housekeeping pass frees it, as a duration string.
	IdleEviction string `koanf:"idle_eviction"`
	// DenialAlertThreshold is the consecutive-denial count after which a
	// client is flagged with a security log record. Zero disables it.
	DenialAlertThreshold int `koanf:"denial_alert_threshold"`
}

// IdleEvictionWindow parses the eviction window, defaulting to 10m.
func (r RateLimitConfig) IdleEvictionWindow() time.Duration {
	d, err := time.ParseDuration(r.IdleEviction)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

type StorageConfig struct {
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type RecommendConfig struct {
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
	// RPS caps outbound calls to the recommendation service.
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
	// SSRFGuard restricts outbound calls to public addresses.
	SSRFGuard bool `koanf:"ssrf_guard"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func Load() (*Config, error) {
	return LoadFrom("config.yaml")
}

// LoadFrom loads configuration from the given YAML file plus the
// environment. A missing file is fine; env vars and defaults still apply.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider("DIAG_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "DIAG_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	defaults := map[string]any{
		"server.port":                      8080,
		"server.request_timeout":           "30s",
		"logging.dir":                      "logs",
		"ratelimit.classes.default":        100,
		"ratelimit.classes.prediction":     30,
		"ratelimit.classes.ml-analysis":    20,
		"ratelimit.classes.report":         10,
		"ratelimit.idle_eviction":          "10m",
		"ratelimit.denial_alert_threshold": 10,
		"validation.xss":                   true,
		"validation.sql":                   true,
		"storage.sqlite.path":              "diagnosis.db",
		"recommend.rps":                    2.0,
		"recommend.burst":                  2,
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in secrets
	cfg.Recommend.APIKey = substituteEnvVars(cfg.Recommend.APIKey)
	cfg.Server.AdminKey = substituteEnvVars(cfg.Server.AdminKey)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
