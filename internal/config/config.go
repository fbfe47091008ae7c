package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Catalyst CatalystConfig
	Extract  ExtractConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds the staging database connection settings.
type DatabaseConfig struct {
	URL string
}

// CatalystConfig holds credentials and endpoints for the Catalyst vendor API.
// Credentials are read once at load time and must never be logged.
type CatalystConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	HTTPTimeout  time.Duration
}

// ExtractConfig holds extraction tuning parameters.
type ExtractConfig struct {
	PageSize          int
	BatchSize         int
	DefaultLocationID string
	RunInterval       time.Duration
	ResourceTimeout   time.Duration
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultBaseURL     = "https://api.qqcatalyst.com/v1"
	defaultTokenURL    = "https://login.qqcatalyst.com/oauth/token"
	defaultHTTPTimeout = 30 * time.Second

	defaultPageSize        = 100
	defaultBatchSize       = 1000
	defaultRunInterval     = 1 * time.Hour
	defaultResourceTimeout = 30 * time.Minute
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided. OAuth credentials are required.
func Load() (Config, error) {
	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Catalyst: CatalystConfig{
			BaseURL:      getEnv("CATALYST_BASE_URL", defaultBaseURL),
			TokenURL:     getEnv("CATALYST_TOKEN_URL", defaultTokenURL),
			ClientID:     os.Getenv("CATALYST_CLIENT_ID"),
			ClientSecret: os.Getenv("CATALYST_CLIENT_SECRET"),
			Username:     os.Getenv("CATALYST_USERNAME"),
			Password:     os.Getenv("CATALYST_PASSWORD"),
			HTTPTimeout:  defaultHTTPTimeout,
		},
		Extract: ExtractConfig{
			PageSize:          defaultPageSize,
			BatchSize:         defaultBatchSize,
			DefaultLocationID: os.Getenv("CATALYST_DEFAULT_LOCATION_ID"),
			RunInterval:       defaultRunInterval,
			ResourceTimeout:   defaultResourceTimeout,
		},
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := os.Getenv("CATALYST_HTTP_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CATALYST_HTTP_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Catalyst.HTTPTimeout = d
	}

	if v := os.Getenv("EXTRACT_PAGE_SIZE"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid EXTRACT_PAGE_SIZE: %w", err)
		}
		cfg.Extract.PageSize = n
	}

	if v := os.Getenv("EXTRACT_BATCH_SIZE"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid EXTRACT_BATCH_SIZE: %w", err)
		}
		cfg.Extract.BatchSize = n
	}

	if v := os.Getenv("EXTRACT_RUN_INTERVAL_MINUTES"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid EXTRACT_RUN_INTERVAL_MINUTES: %w", err)
		}
		cfg.Extract.RunInterval = time.Duration(n) * time.Minute
	}

	if v := os.Getenv("EXTRACT_RESOURCE_TIMEOUT_MINUTES"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid EXTRACT_RESOURCE_TIMEOUT_MINUTES: %w", err)
		}
		cfg.Extract.ResourceTimeout = time.Duration(n) * time.Minute
	}

	if err := cfg.Catalyst.validateCredentials(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c CatalystConfig) validateCredentials() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "CATALYST_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "CATALYST_CLIENT_SECRET")
	}
	if c.Username == "" {
		missing = append(missing, "CATALYST_USERNAME")
	}
	if c.Password == "" {
		missing = append(missing, "CATALYST_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required OAuth credentials: %v", missing)
	}
	return nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
