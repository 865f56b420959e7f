package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// DefaultPricingAPIURL is the Gumloop interface that publishes the weekly national prices
const DefaultPricingAPIURL = "https://www.gumloop.com/interface/New-Interface-vRoDvMTdG29c2mwqEJNYTX"

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	PricingAPIURL string
	// Timezone and ScheduleEnabled seed the schedule on first boot only. Once a
	// pricing snapshot exists its schedule wins; change it via the admin API.
	Timezone        string
	FetchTimeout    time.Duration
	SnapshotFile    string
	AutoStart       bool
	ScheduleEnabled bool

	AdminJWTSecret   string
	ManualTriggerRPM int
}

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Environment:      getEnv("ENVIRONMENT", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		PricingAPIURL:    getEnv("PRICING_API_URL", DefaultPricingAPIURL),
		Timezone:         getEnv("PRICING_TIMEZONE", "America/Chicago"),
		FetchTimeout:     getEnvDuration("PRICING_FETCH_TIMEOUT", 10*time.Second),
		SnapshotFile:     getEnv("PRICING_SNAPSHOT_FILE", "data/pricing_snapshot.json"),
		AutoStart:        getEnvBool("SCHEDULER_AUTOSTART", true),
		ScheduleEnabled:  getEnvBool("SCHEDULER_ENABLED", true),
		AdminJWTSecret:   os.Getenv("ADMIN_JWT_SECRET"),
		ManualTriggerRPM: getEnvInt("MANUAL_TRIGGER_RPM", 6),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.PricingAPIURL, "http://") && !strings.HasPrefix(c.PricingAPIURL, "https://") {
		return errors.Newf("PRICING_API_URL must be an http(s) URL, got %q", c.PricingAPIURL)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.Wrapf(err, "PRICING_TIMEZONE %q", c.Timezone)
	}
	if c.FetchTimeout <= 0 {
		return errors.New("PRICING_FETCH_TIMEOUT must be positive")
	}
	if c.ManualTriggerRPM < 1 {
		return errors.New("MANUAL_TRIGGER_RPM must be at least 1")
	}
	return nil
}

// IsProduction reports whether the service runs with production defaults
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ConfigureLogging applies level and formatter to the standard logrus logger
func (c *Config) ConfigureLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithField("log_level", c.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if c.IsProduction() {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.WithField("key", key).Warnf("Invalid boolean %q, using default %v", value, defaultValue)
		return defaultValue
	}
	return b
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.WithField("key", key).Warnf("Invalid integer %q, using default %d", value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvDuration accepts Go durations ("15s") or bare seconds ("15")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.WithField("key", key).Warnf("Invalid duration %q, using default %s", value, defaultValue)
	return defaultValue
}
