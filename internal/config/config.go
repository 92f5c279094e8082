package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	RefreshTokenTTL     = 7 * 24 * time.Hour
	minJWTSecretLength  = 32
	defaultConfigFile   = "configs/docshare.yaml"
	defaultServiceName  = "secure-docshare-go-backend"
	DedupeBackendMemory = "memory"
	DedupeBackendRedis  = "redis"
	DedupeBackendNone   = "none"
)

type GeoPrefix struct {
	CIDR    string `yaml:"cidr"`
	Country string `yaml:"country"`
	Region  string `yaml:"region"`
	City    string `yaml:"city"`
}

type Config struct {
	Env      string
	HTTPAddr string
	LogLevel string

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	DBDriver       string
	DatabaseURL    string
	RedisURL       string
	StorageTimeout time.Duration

	JWTSecret          string
	RefreshTokenSecret string
	JWTIssuer          string
	JWTAudience        string
	JWTAccessTTL       time.Duration
	JWTRefreshTTL      time.Duration
	BcryptRounds       int
	CookieSecure       bool

	LockoutThreshold int
	LockoutDuration  time.Duration

	PrincipalCacheTTL time.Duration

	RateLimitWindow      time.Duration
	RateLimitMaxRequests int
	APIRateLimitRPM      int
	AuthRateLimitRPM     int
	CORSOrigins          []string

	ThreatBruteForceThreshold    int
	ThreatScrapingThreshold      int
	ThreatConcurrentWindow       time.Duration
	ThreatBehaviorWindow         time.Duration
	ThreatBehaviorSampleSize     int
	ThreatUnusualHourShare       float64
	ThreatExcessiveDocumentLimit int
	ThreatIdleTTL                time.Duration
	ThreatSweepInterval          time.Duration
	ThreatDedupeWindow           time.Duration
	ThreatDedupeBackend          string

	AuditQueueSize int
	AuditWorkers   int

	KafkaBrokers       []string
	KafkaSecurityTopic string

	GeoPrefixes []GeoPrefix
	GeoCacheTTL time.Duration

	ReadinessProbeTimeout time.Duration
	ReadinessCacheTTL     time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
}

// configFile mirrors the optional YAML overlay. Env vars still win.
type configFile struct {
	Service struct {
		HTTPAddr string `yaml:"http_addr"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"service"`
	Dependencies struct {
		DBDriver    string   `yaml:"db_driver"`
		DatabaseURL string   `yaml:"database_url"`
		RedisURL    string   `yaml:"redis_url"`
		Kafka       []string `yaml:"kafka_brokers"`
	} `yaml:"dependencies"`
	Threat struct {
		BruteForceThreshold    int           `yaml:"brute_force_threshold"`
		RateWindow             time.Duration `yaml:"rate_window"`
		RateMaxRequests        int           `yaml:"rate_max_requests"`
		ScrapingThreshold      int           `yaml:"scraping_threshold"`
		ConcurrentWindow       time.Duration `yaml:"concurrent_session_window"`
		BehaviorWindow         time.Duration `yaml:"behavior_window"`
		BehaviorSampleSize     int           `yaml:"behavior_sample_size"`
		UnusualHourShare       float64       `yaml:"unusual_hour_share"`
		ExcessiveDocumentLimit int           `yaml:"excessive_document_access"`
		IdleTTL                time.Duration `yaml:"idle_ttl"`
		SweepInterval          time.Duration `yaml:"sweep_interval"`
		DedupeWindow           time.Duration `yaml:"dedupe_window"`
		DedupeBackend          string        `yaml:"dedupe_backend"`
	} `yaml:"threat"`
	Lockout struct {
		Threshold int           `yaml:"threshold"`
		Duration  time.Duration `yaml:"duration"`
	} `yaml:"lockout"`
	Geo struct {
		Prefixes []GeoPrefix   `yaml:"prefixes"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"geo"`
}

func defaults() *Config {
	return &Config{
		Env:                          "development",
		HTTPAddr:                     ":8080",
		LogLevel:                     "info",
		ShutdownTimeout:              20 * time.Second,
		ShutdownHTTPDrainTimeout:     10 * time.Second,
		ShutdownObservabilityTimeout: 5 * time.Second,
		DBDriver:                     "postgres",
		StorageTimeout:               3 * time.Second,
		JWTIssuer:                    defaultServiceName,
		JWTAudience:                  "docshare-api",
		JWTAccessTTL:                 24 * time.Hour,
		JWTRefreshTTL:                RefreshTokenTTL,
		BcryptRounds:                 12,
		LockoutThreshold:             5,
		LockoutDuration:              30 * time.Minute,
		PrincipalCacheTTL:            15 * time.Second,
		RateLimitWindow:              60 * time.Second,
		RateLimitMaxRequests:         120,
		APIRateLimitRPM:              600,
		AuthRateLimitRPM:             20,
		CORSOrigins:                  []string{"http://localhost:3000"},
		ThreatBruteForceThreshold:    5,
		ThreatScrapingThreshold:      2,
		ThreatConcurrentWindow:       24 * time.Hour,
		ThreatBehaviorWindow:         24 * time.Hour,
		ThreatBehaviorSampleSize:     100,
		ThreatUnusualHourShare:       0.2,
		ThreatExcessiveDocumentLimit: 20,
		ThreatIdleTTL:                time.Hour,
		ThreatSweepInterval:          10 * time.Minute,
		ThreatDedupeWindow:           time.Hour,
		ThreatDedupeBackend:          DedupeBackendMemory,
		AuditQueueSize:               1024,
		AuditWorkers:                 4,
		KafkaSecurityTopic:           "docshare.security-events",
		GeoCacheTTL:                  time.Hour,
		ReadinessProbeTimeout:        time.Second,
		ReadinessCacheTTL:            2 * time.Second,
		OTELServiceName:              defaultServiceName,
		OTELEnvironment:              "development",
		OTELExporterOTLPEndpoint:     "localhost:4317",
		OTELExporterOTLPInsecure:     true,
		OTELMetricsExportInterval:    15 * time.Second,
		OTELTraceSamplingRatio:       1.0,
	}
}

// Load resolves configuration as defaults, then the optional YAML file named
// by CONFIG_FILE, then environment variables.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		recordLoadOutcome(context.Background(), nil, os.Getenv("APP_ENV"), err)
		return nil, err
	}
	recordLoadOutcome(context.Background(), cfg, cfg.Env, nil)
	return cfg, nil
}

func load() (*Config, error) {
	cfg := defaults()

	path := getEnv("CONFIG_FILE", defaultConfigFile)
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := applyFile(cfg, raw); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
		if _, set := os.LookupEnv("CONFIG_FILE"); set {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	setString(&cfg.HTTPAddr, f.Service.HTTPAddr)
	setString(&cfg.LogLevel, f.Service.LogLevel)
	setString(&cfg.DBDriver, f.Dependencies.DBDriver)
	setString(&cfg.DatabaseURL, f.Dependencies.DatabaseURL)
	setString(&cfg.RedisURL, f.Dependencies.RedisURL)
	if len(f.Dependencies.Kafka) > 0 {
		cfg.KafkaBrokers = f.Dependencies.Kafka
	}

	t := f.Threat
	setInt(&cfg.ThreatBruteForceThreshold, t.BruteForceThreshold)
	setDuration(&cfg.RateLimitWindow, t.RateWindow)
	setInt(&cfg.RateLimitMaxRequests, t.RateMaxRequests)
	setInt(&cfg.ThreatScrapingThreshold, t.ScrapingThreshold)
	setDuration(&cfg.ThreatConcurrentWindow, t.ConcurrentWindow)
	setDuration(&cfg.ThreatBehaviorWindow, t.BehaviorWindow)
	setInt(&cfg.ThreatBehaviorSampleSize, t.BehaviorSampleSize)
	if t.UnusualHourShare > 0 {
		cfg.ThreatUnusualHourShare = t.UnusualHourShare
	}
	setInt(&cfg.ThreatExcessiveDocumentLimit, t.ExcessiveDocumentLimit)
	setDuration(&cfg.ThreatIdleTTL, t.IdleTTL)
	setDuration(&cfg.ThreatSweepInterval, t.SweepInterval)
	setDuration(&cfg.ThreatDedupeWindow, t.DedupeWindow)
	setString(&cfg.ThreatDedupeBackend, t.DedupeBackend)

	setInt(&cfg.LockoutThreshold, f.Lockout.Threshold)
	setDuration(&cfg.LockoutDuration, f.Lockout.Duration)

	if len(f.Geo.Prefixes) > 0 {
		cfg.GeoPrefixes = f.Geo.Prefixes
	}
	setDuration(&cfg.GeoCacheTTL, f.Geo.CacheTTL)
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DBDriver = strings.ToLower(getEnv("DB_DRIVER", cfg.DBDriver))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.RefreshTokenSecret = os.Getenv("REFRESH_TOKEN_SECRET")
	cfg.JWTIssuer = getEnv("JWT_ISSUER", cfg.JWTIssuer)
	cfg.JWTAudience = getEnv("JWT_AUDIENCE", cfg.JWTAudience)
	cfg.KafkaBrokers = getEnvCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaSecurityTopic = getEnv("KAFKA_SECURITY_TOPIC", cfg.KafkaSecurityTopic)
	cfg.CORSOrigins = getEnvCSV("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.ThreatDedupeBackend = strings.ToLower(getEnv("THREAT_DEDUPE_BACKEND", cfg.ThreatDedupeBackend))
	cfg.OTELServiceName = getEnv("OTEL_SERVICE_NAME", cfg.OTELServiceName)
	cfg.OTELEnvironment = getEnv("OTEL_ENVIRONMENT", cfg.Env)
	cfg.OTELExporterOTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTELExporterOTLPEndpoint)

	var err error
	if raw := os.Getenv("JWT_EXPIRES_IN"); raw != "" {
		if cfg.JWTAccessTTL, err = ParseTTL(raw); err != nil {
			return fmt.Errorf("parse JWT_EXPIRES_IN: %w", err)
		}
	}
	if raw := os.Getenv("RATE_LIMIT_WINDOW_MS"); raw != "" {
		ms, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return fmt.Errorf("parse RATE_LIMIT_WINDOW_MS: %w", convErr)
		}
		cfg.RateLimitWindow = time.Duration(ms) * time.Millisecond
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"BCRYPT_ROUNDS", &cfg.BcryptRounds},
		{"RATE_LIMIT_MAX_REQUESTS", &cfg.RateLimitMaxRequests},
		{"API_RATE_LIMIT_RPM", &cfg.APIRateLimitRPM},
		{"AUTH_RATE_LIMIT_RPM", &cfg.AuthRateLimitRPM},
		{"LOCKOUT_THRESHOLD", &cfg.LockoutThreshold},
		{"AUDIT_QUEUE_SIZE", &cfg.AuditQueueSize},
		{"AUDIT_WORKERS", &cfg.AuditWorkers},
	}
	for _, item := range ints {
		if *item.dst, err = getEnvInt(item.key, *item.dst); err != nil {
			return err
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"STORAGE_TIMEOUT", &cfg.StorageTimeout},
		{"LOCKOUT_DURATION", &cfg.LockoutDuration},
		{"PRINCIPAL_CACHE_TTL", &cfg.PrincipalCacheTTL},
		{"THREAT_SWEEP_INTERVAL", &cfg.ThreatSweepInterval},
		{"THREAT_IDLE_TTL", &cfg.ThreatIdleTTL},
		{"THREAT_DEDUPE_WINDOW", &cfg.ThreatDedupeWindow},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"SHUTDOWN_HTTP_DRAIN_TIMEOUT", &cfg.ShutdownHTTPDrainTimeout},
		{"SHUTDOWN_OBSERVABILITY_TIMEOUT", &cfg.ShutdownObservabilityTimeout},
		{"OTEL_METRICS_EXPORT_INTERVAL", &cfg.OTELMetricsExportInterval},
	}
	for _, item := range durations {
		if *item.dst, err = getEnvDuration(item.key, *item.dst); err != nil {
			return err
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"COOKIE_SECURE", &cfg.CookieSecure},
		{"OTEL_EXPORTER_OTLP_INSECURE", &cfg.OTELExporterOTLPInsecure},
		{"OTEL_METRICS_ENABLED", &cfg.OTELMetricsEnabled},
		{"OTEL_TRACING_ENABLED", &cfg.OTELTracingEnabled},
		{"OTEL_LOGS_ENABLED", &cfg.OTELLogsEnabled},
	}
	for _, item := range bools {
		if *item.dst, err = getEnvBool(item.key, *item.dst); err != nil {
			return err
		}
	}

	if raw := os.Getenv("OTEL_TRACE_SAMPLING_RATIO"); raw != "" {
		if cfg.OTELTraceSamplingRatio, err = strconv.ParseFloat(raw, 64); err != nil {
			return fmt.Errorf("parse OTEL_TRACE_SAMPLING_RATIO: %w", err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	var problems []string
	if len(c.JWTSecret) < minJWTSecretLength {
		problems = append(problems, fmt.Sprintf("JWT_SECRET must be at least %d characters", minJWTSecretLength))
	}
	if c.RefreshTokenSecret != "" && len(c.RefreshTokenSecret) < minJWTSecretLength {
		problems = append(problems, fmt.Sprintf("REFRESH_TOKEN_SECRET must be at least %d characters", minJWTSecretLength))
	}
	if c.BcryptRounds < 10 || c.BcryptRounds > 15 {
		problems = append(problems, "BCRYPT_ROUNDS must be between 10 and 15")
	}
	if c.JWTAccessTTL <= 0 {
		problems = append(problems, "JWT_EXPIRES_IN must be positive")
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, "DB_DRIVER must be postgres or sqlite")
	}
	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.RateLimitWindow <= 0 || c.RateLimitMaxRequests <= 0 {
		problems = append(problems, "RATE_LIMIT_WINDOW_MS and RATE_LIMIT_MAX_REQUESTS must be positive")
	}
	if c.LockoutThreshold <= 0 || c.LockoutDuration <= 0 {
		problems = append(problems, "lockout threshold and duration must be positive")
	}
	if c.StorageTimeout <= 0 {
		problems = append(problems, "STORAGE_TIMEOUT must be positive")
	}
	switch c.ThreatDedupeBackend {
	case DedupeBackendMemory, DedupeBackendNone:
	case DedupeBackendRedis:
		if c.RedisURL == "" {
			problems = append(problems, "THREAT_DEDUPE_BACKEND=redis requires REDIS_URL")
		}
	default:
		problems = append(problems, "THREAT_DEDUPE_BACKEND must be memory, redis or none")
	}
	if c.ThreatUnusualHourShare <= 0 || c.ThreatUnusualHourShare >= 1 {
		problems = append(problems, "threat unusual_hour_share must be in (0,1)")
	}
	if c.AuditQueueSize <= 0 || c.AuditWorkers <= 0 {
		problems = append(problems, "AUDIT_QUEUE_SIZE and AUDIT_WORKERS must be positive")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		problems = append(problems, "OTEL_TRACE_SAMPLING_RATIO must be in [0,1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("validate config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ParseTTL accepts Go durations plus day suffixes such as "7d".
func ParseTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasSuffix(raw, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q", raw)
		}
		if days <= 0 {
			return 0, fmt.Errorf("duration must be positive: %q", raw)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %q", raw)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := ParseTTL(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getEnvCSV(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
