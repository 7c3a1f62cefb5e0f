package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Aggregator AggregatorConfig
	Cron       CronConfig
	Scheduler  SchedulerConfig
	Summary    SummaryConfig
	TLS        TLSConfig
	Firebase   FirebaseConfig
	Telemetry  TelemetryConfig
	Messages   MessagesConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	BaseURL      string
	AllowedHosts []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret string
}

type AggregatorConfig struct {
	BaseURL    string
	SecretID   string
	SecretKey  string
	RateBudget int
}

type CronConfig struct {
	Secret string
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	JobDelay      time.Duration
	RunOnStartup  bool
}

type SummaryConfig struct {
	Currency string
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

type FirebaseConfig struct {
	CredentialsFile string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
}

type MessagesConfig struct {
	File string
}

func Load() (*Config, error) {

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	rateBudget, err := strconv.Atoi(getEnv("AGGREGATOR_RATE_BUDGET", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid AGGREGATOR_RATE_BUDGET: %w", err)
	}

	// Parse scheduler configuration
	schedulerEnabled := getBoolEnv("SCHEDULER_ENABLED", true)
	schedulerTimes := splitList(getEnv("SCHEDULER_TIMES", "06:00"))
	schedulerJobDelay, err := time.ParseDuration(getEnv("SCHEDULER_JOB_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_JOB_DELAY: %w", err)
	}
	schedulerRunOnStartup := getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false)

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			BaseURL:      getEnv("HOST_URL", "http://localhost:8080"),
			AllowedHosts: splitList(getEnv("ALLOWED_HOSTS", "")),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "nestegg"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "nestegg"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Aggregator: AggregatorConfig{
			BaseURL:    getEnv("AGGREGATOR_BASE_URL", ""),
			SecretID:   getEnv("AGGREGATOR_SECRET_ID", ""),
			SecretKey:  getEnv("AGGREGATOR_SECRET_KEY", ""),
			RateBudget: rateBudget,
		},
		Cron: CronConfig{
			Secret: getEnv("CRON_SECRET", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:       schedulerEnabled,
			ScheduleTimes: schedulerTimes,
			JobDelay:      schedulerJobDelay,
			RunOnStartup:  schedulerRunOnStartup,
		},
		Summary: SummaryConfig{
			Currency: getEnv("SUMMARY_CURRENCY", "GBP"),
		},
		TLS: TLSConfig{
			Enabled:      getBoolEnv("TLS_ENABLED", false),
			CertPath:     getEnv("TLS_CERT_PATH", ""),
			KeyPath:      getEnv("TLS_KEY_PATH", ""),
			RedirectHTTP: getBoolEnv("TLS_REDIRECT_HTTP", false),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "nestegg-api"),
			Environment:  getEnv("APP_ENV", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4318"),
			MetricsPort:  getEnv("OTEL_METRICS_PORT", "9090"),
		},
		Messages: MessagesConfig{
			File: getEnv("MESSAGES_FILE", ""),
		},
	}

	// Validate required fields
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Aggregator.SecretID == "" || cfg.Aggregator.SecretKey == "" {
		return nil, fmt.Errorf("AGGREGATOR_SECRET_ID and AGGREGATOR_SECRET_KEY are required")
	}
	if cfg.Cron.Secret == "" && getEnv("APP_ENV", "development") == "production" {
		return nil, fmt.Errorf("CRON_SECRET is required in production")
	}

	// Validate schedule times early so the scheduler never starts half-configured
	for _, t := range cfg.Scheduler.ScheduleTimes {
		if _, err := time.Parse("15:04", t); err != nil {
			return nil, fmt.Errorf("invalid SCHEDULER_TIMES entry %q: %w", t, err)
		}
	}

	// Validate TLS configuration
	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			return nil, fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if cfg.TLS.KeyPath == "" {
			return nil, fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
