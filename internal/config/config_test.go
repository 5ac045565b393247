package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Timeout() != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Server.Timeout())
	}
	if cfg.RateLimit.Classes["prediction"] != 30 {
		t.Errorf("prediction limit = %d, want 30", cfg.RateLimit.Classes["prediction"])
	}
	if cfg.RateLimit.Classes["ml-analysis"] != 20 {
		t.Errorf("ml-analysis limit = %d, want 20", cfg.RateLimit.Classes["ml-analysis"])
	}
	if cfg.RateLimit.DenialAlertThreshold != 10 {
		t.Errorf("denial threshold = %d, want 10", cfg.RateLimit.DenialAlertThreshold)
	}
	if cfg.RateLimit.IdleEvictionWindow() != 10*time.Minute {
		t.Errorf("idle eviction = %v", cfg.RateLimit.IdleEvictionWindow())
	}
	if !cfg.Validation.XSS || !cfg.Validation.SQL {
		t.Error("validation categories must default on")
	}
	if cfg.Storage.SQLite.Path != "diagnosis.db" {
		t.Errorf("sqlite path = %q", cfg.Storage.SQLite.Path)
	}
	if cfg.Recommend.RPS != 2.0 || cfg.Recommend.Burst != 2 {
		t.Errorf("recommend throttle = %g/%d", cfg.Recommend.RPS, cfg.Recommend.Burst)
	}
}

func TestLoadFrom_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  request_timeout: 5s
ratelimit:
  classes:
    prediction: 60
  denial_alert_threshold: 3
validation:
  sql: false
logging:
  dir: /tmp/test-logs
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Timeout() != 5*time.Second {
		t.Errorf("timeout = %v", cfg.Server.Timeout())
	}
	if cfg.RateLimit.Classes["prediction"] != 60 {
		t.Errorf("prediction limit = %d, want 60", cfg.RateLimit.Classes["prediction"])
	}
	// Unset classes still receive defaults.
	if cfg.RateLimit.Classes["report"] != 10 {
		t.Errorf("report limit = %d, want 10", cfg.RateLimit.Classes["report"])
	}
	if cfg.RateLimit.DenialAlertThreshold != 3 {
		t.Errorf("denial threshold = %d, want 3", cfg.RateLimit.DenialAlertThreshold)
	}
	if cfg.Validation.SQL {
		t.Error("sql screening should be off")
	}
	if !cfg.Validation.XSS {
		t.Error("xss screening should stay on by default")
	}
	if cfg.Logging.Dir != "/tmp/test-logs" {
		t.Errorf("logging dir = %q", cfg.Logging.Dir)
	}
}

func TestLoadFrom_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	t.Setenv("DIAG_SERVER__PORT", "7070")
	t.Setenv("DIAG_RECOMMEND__BASE_URL", "http://rec.internal")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Recommend.BaseURL != "http://rec.internal" {
		t.Errorf("base url = %q", cfg.Recommend.BaseURL)
	}
}

func TestLoadFrom_SecretSubstitution(t *testing.T) {
	path := writeConfig(t, `
server:
  admin_key: ${TEST_ADMIN_KEY}
recommend:
  api_key: ${TEST_REC_KEY}
`)
	t.Setenv("TEST_ADMIN_KEY", "hunter2")
	t.Setenv("TEST_REC_KEY", "rec-secret")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.AdminKey != "hunter2" {
		t.Errorf("admin key = %q", cfg.Server.AdminKey)
	}
	if cfg.Recommend.APIKey != "rec-secret" {
		t.Errorf("api key = %q", cfg.Recommend.APIKey)
	}
}

func TestLoadFrom_MalformedFile(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	if _, err := LoadFrom(path); err == nil {
		t.Error("want error for malformed yaml")
	}
}

func TestTimeout_InvalidFallsBack(t *testing.T) {
	s := ServerConfig{RequestTimeout: "bogus"}
	if s.Timeout() != 30*time.Second {
		t.Errorf("timeout = %v, want 30s fallback", s.Timeout())
	}
}
