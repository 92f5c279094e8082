package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "abcdefghijklmnopqrstuvwxyz123456"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file::memory:")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)
	os.Unsetenv("CONFIG_FILE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWTAccessTTL != 24*time.Hour || cfg.JWTRefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected token ttls access=%s refresh=%s", cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	}
	if cfg.BcryptRounds != 12 || cfg.LockoutThreshold != 5 || cfg.LockoutDuration != 30*time.Minute {
		t.Fatalf("unexpected credential defaults: %+v", cfg)
	}
	if cfg.RateLimitWindow != time.Minute || cfg.RateLimitMaxRequests != 120 {
		t.Fatalf("unexpected rate defaults window=%s max=%d", cfg.RateLimitWindow, cfg.RateLimitMaxRequests)
	}
	if cfg.ThreatSweepInterval != 10*time.Minute || cfg.ThreatIdleTTL != time.Hour || cfg.ThreatDedupeWindow != time.Hour {
		t.Fatalf("unexpected threat defaults: %+v", cfg)
	}
	if cfg.StorageTimeout != 3*time.Second {
		t.Fatalf("unexpected storage timeout %s", cfg.StorageTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setBaseEnv(t)
	os.Unsetenv("CONFIG_FILE")
	t.Setenv("JWT_EXPIRES_IN", "7d")
	t.Setenv("BCRYPT_ROUNDS", "10")
	t.Setenv("RATE_LIMIT_WINDOW_MS", "30000")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "50")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("THREAT_DEDUPE_WINDOW", "15m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWTAccessTTL != 7*24*time.Hour {
		t.Fatalf("expected 7d access ttl, got %s", cfg.JWTAccessTTL)
	}
	if cfg.BcryptRounds != 10 || cfg.RateLimitWindow != 30*time.Second || cfg.RateLimitMaxRequests != 50 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.ThreatDedupeWindow != 15*time.Minute {
		t.Fatalf("unexpected dedupe window %s", cfg.ThreatDedupeWindow)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "docshare.yaml")
	content := `
threat:
  brute_force_threshold: 3
  rate_window: 30s
  dedupe_backend: none
lockout:
  duration: 45m
geo:
  prefixes:
    - cidr: 10.0.0.0/8
      country: US
      city: Austin
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RATE_LIMIT_WINDOW_MS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ThreatBruteForceThreshold != 3 || cfg.RateLimitWindow != 30*time.Second {
		t.Fatalf("yaml threat overlay not applied: %+v", cfg)
	}
	if cfg.ThreatDedupeBackend != DedupeBackendNone || cfg.LockoutDuration != 45*time.Minute {
		t.Fatalf("yaml overlay not applied: %+v", cfg)
	}
	if len(cfg.GeoPrefixes) != 1 || cfg.GeoPrefixes[0].Country != "US" {
		t.Fatalf("unexpected geo prefixes %+v", cfg.GeoPrefixes)
	}
}

func TestLoadExplicitMissingConfigFileFails(t *testing.T) {
	setBaseEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected error when CONFIG_FILE points to a missing file")
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "short secret", mutate: func(c *Config) { c.JWTSecret = "short" }, want: "JWT_SECRET"},
		{name: "bcrypt low", mutate: func(c *Config) { c.BcryptRounds = 9 }, want: "BCRYPT_ROUNDS"},
		{name: "bcrypt high", mutate: func(c *Config) { c.BcryptRounds = 16 }, want: "BCRYPT_ROUNDS"},
		{name: "driver", mutate: func(c *Config) { c.DBDriver = "mysql" }, want: "DB_DRIVER"},
		{name: "redis dedupe without redis", mutate: func(c *Config) { c.ThreatDedupeBackend = DedupeBackendRedis }, want: "REDIS_URL"},
		{name: "short refresh secret", mutate: func(c *Config) { c.RefreshTokenSecret = "tiny" }, want: "REFRESH_TOKEN_SECRET"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			cfg.JWTSecret = testSecret
			cfg.DatabaseURL = "file::memory:"
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.HasPrefix(err.Error(), "validate config:") || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("unexpected error %q", err)
			}
			if loadErrorClass(err) != "validation" {
				t.Fatalf("expected validation class for %q", err)
			}
		})
	}
}

func TestParseTTL(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "24h", want: 24 * time.Hour},
		{in: "7d", want: 7 * 24 * time.Hour},
		{in: "90s", want: 90 * time.Second},
		{in: "0d", wantErr: true},
		{in: "-1h", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseTTL(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseTTL(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseTTL(%q)=%s,%v want %s", tc.in, got, err, tc.want)
		}
	}
}

func TestShippedConfigFileParses(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", defaultConfigFile))
	if err != nil {
		t.Fatalf("read shipped config: %v", err)
	}
	cfg := defaults()
	if err := applyFile(cfg, raw); err != nil {
		t.Fatalf("apply shipped config: %v", err)
	}
	if cfg.ThreatDedupeBackend != DedupeBackendRedis {
		t.Fatalf("expected redis dedupe backend, got %q", cfg.ThreatDedupeBackend)
	}
	if cfg.LockoutDuration != 30*time.Minute || cfg.ThreatSweepInterval != 10*time.Minute {
		t.Fatalf("unexpected durations: lockout=%s sweep=%s", cfg.LockoutDuration, cfg.ThreatSweepInterval)
	}
	if len(cfg.GeoPrefixes) != 3 || cfg.GeoPrefixes[1].Country != "US" {
		t.Fatalf("unexpected geo prefixes: %+v", cfg.GeoPrefixes)
	}
}
