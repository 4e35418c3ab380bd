package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration, loaded from the environment.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Weather       WeatherConfig
	Cache         CacheConfig
	Archive       ArchiveConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Port               string
	RateLimitPerSecond int
	RateLimitBurst     int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds a Postgres connection string from the parts.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// WeatherConfig covers the metered provider and the outbound call policy.
type WeatherConfig struct {
	APIKey         string
	BaseURL        string
	GeocodeURL     string
	RequestTimeout time.Duration
	MaxConcurrent  int64
	MinInterval    time.Duration
	MaxRetries     uint64
	InitialDelay   time.Duration
	MaxDelay       time.Duration
}

type CacheConfig struct {
	CurrentTTL    time.Duration
	ForecastTTL   time.Duration
	HistoricalTTL time.Duration
	SweepInterval time.Duration
}

// ArchiveConfig bounds the pre-populated observation window. Historical
// requests entirely inside [Start, End] are eligible for zero-cost database
// reads before any provider call is considered.
type ArchiveConfig struct {
	Start time.Time
	End   time.Time
}

type ObservabilityConfig struct {
	MetricsEnabled bool
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			RateLimitPerSecond: getEnvInt("RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 40),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "meteo"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Weather: WeatherConfig{
			APIKey:         os.Getenv("WEATHER_API_KEY"),
			BaseURL:        getEnv("WEATHER_API_BASE_URL", "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"),
			GeocodeURL:     getEnv("REVERSE_GEOCODE_URL", "https://nominatim.openstreetmap.org/reverse"),
			RequestTimeout: getEnvDuration("WEATHER_REQUEST_TIMEOUT", 10*time.Second),
			MaxConcurrent:  int64(getEnvInt("WEATHER_MAX_CONCURRENT", 3)),
			MinInterval:    getEnvDuration("WEATHER_MIN_INTERVAL", 100*time.Millisecond),
			MaxRetries:     uint64(getEnvInt("WEATHER_MAX_RETRIES", 2)),
			InitialDelay:   getEnvDuration("WEATHER_RETRY_INITIAL_DELAY", 1*time.Second),
			MaxDelay:       getEnvDuration("WEATHER_RETRY_MAX_DELAY", 10*time.Second),
		},
		Cache: CacheConfig{
			CurrentTTL:    getEnvDuration("CACHE_CURRENT_TTL", 30*time.Minute),
			ForecastTTL:   getEnvDuration("CACHE_FORECAST_TTL", 1*time.Hour),
			HistoricalTTL: getEnvDuration("CACHE_HISTORICAL_TTL", 24*time.Hour),
			SweepInterval: getEnvDuration("CACHE_SWEEP_INTERVAL", 1*time.Hour),
		},
		Archive: ArchiveConfig{
			Start: getEnvDate("ARCHIVE_START_DATE", time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)),
			End:   getEnvDate("ARCHIVE_END_DATE", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		},
	}

	if cfg.Weather.APIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY is required")
	}
	if cfg.Archive.End.Before(cfg.Archive.Start) {
		return nil, fmt.Errorf("ARCHIVE_END_DATE precedes ARCHIVE_START_DATE")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvDate(key string, fallback time.Time) time.Time {
	if v := os.Getenv(key); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			return t
		}
	}
	return fallback
}
