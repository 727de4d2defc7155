package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// CONFIGURATION
// ============================================================================

// Config carries every knob the subsystem recognizes. Loaded once at
// startup, immutable afterwards.
type Config struct {
	// Remote panel
	PanelURL       string
	AppAPIKey      string // application (administrative) surface, ptla_ prefix
	ClientAPIKey   string // per-tenant surface, ptlc_ prefix
	RequestTimeout time.Duration

	// Admission control (account-wide, shared by both surfaces)
	RateLimitMaxRequests int
	RateLimitWindow      time.Duration

	// Backup retention
	MaxBackupsPerServer int
	BackupNamePrefix    string
	RetentionDays       int

	// Scheduler
	SchedulerEnabled bool
	CleanupSchedule  string
	MonitorSchedule  string
	BackupSchedule   string

	// Outbound notifications
	AdminNotifyAddress string

	// Telemetry history store (optional)
	HistoryEnabled bool
	DB             DBConfig

	// Ops HTTP surface
	APIAddr              string
	APIJWTSecret         string
	APIAdminUser         string
	APIAdminPasswordHash string
}

// DBConfig is the Postgres pool configuration for the history store.
type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig reads the recognized environment keys, falling back to
// development defaults.
func DefaultConfig() *Config {
	return &Config{
		PanelURL:       getEnv("PANEL_URL", ""),
		AppAPIKey:      getEnv("PANEL_APP_API_KEY", ""),
		ClientAPIKey:   getEnv("PANEL_CLIENT_API_KEY", ""),
		RequestTimeout: time.Duration(getEnvInt("PANEL_REQUEST_TIMEOUT_MS", 15000)) * time.Millisecond,

		RateLimitMaxRequests: getEnvInt("RATE_LIMIT_MAX_REQUESTS", 60),
		RateLimitWindow:      time.Duration(getEnvInt("RATE_LIMIT_WINDOW_MS", 60000)) * time.Millisecond,

		MaxBackupsPerServer: getEnvInt("BACKUP_MAX_PER_SERVER", 5),
		BackupNamePrefix:    getEnv("BACKUP_NAME_PREFIX", "auto-backup"),
		RetentionDays:       getEnvInt("BACKUP_RETENTION_DAYS", 30),

		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
		CleanupSchedule:  getEnv("SCHEDULE_CLEANUP", "@daily"),
		MonitorSchedule:  getEnv("SCHEDULE_MONITORING", "@hourly"),
		BackupSchedule:   getEnv("SCHEDULE_BACKUP", "@weekly"),

		AdminNotifyAddress: getEnv("ADMIN_NOTIFY_ADDRESS", ""),

		HistoryEnabled: getEnvBool("HISTORY_DB_ENABLED", false),
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "fleetplane"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "fleetplane_db"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnectTimeout:  getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
		},

		APIAddr:              getEnv("API_ADDR", ":8600"),
		APIJWTSecret:         getEnv("API_JWT_SECRET", ""),
		APIAdminUser:         getEnv("API_ADMIN_USER", "admin"),
		APIAdminPasswordHash: getEnv("API_ADMIN_PASSWORD_HASH", ""),
	}
}

// ============================================================================
// VALIDATION
// ============================================================================

// ValidationError aggregates every violation found, not just the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration invalid: %s", strings.Join(e.Violations, "; "))
}

// Validate checks the panel-facing configuration. Returns a
// *ValidationError listing all violations, or nil.
func (c *Config) Validate() error {
	var violations []string

	if c.PanelURL == "" {
		violations = append(violations, "PANEL_URL is required")
	} else if u, err := url.Parse(c.PanelURL); err != nil || u.Scheme == "" || u.Host == "" {
		violations = append(violations, fmt.Sprintf("PANEL_URL %q is not a valid URL", c.PanelURL))
	}

	if c.AppAPIKey == "" {
		violations = append(violations, "PANEL_APP_API_KEY is required")
	} else if !strings.HasPrefix(c.AppAPIKey, "ptla_") {
		violations = append(violations, "PANEL_APP_API_KEY must start with ptla_")
	}

	if c.ClientAPIKey == "" {
		violations = append(violations, "PANEL_CLIENT_API_KEY is required")
	} else if !strings.HasPrefix(c.ClientAPIKey, "ptlc_") {
		violations = append(violations, "PANEL_CLIENT_API_KEY must start with ptlc_")
	}

	if c.RequestTimeout <= 0 {
		violations = append(violations, "PANEL_REQUEST_TIMEOUT_MS must be positive")
	}
	if c.RateLimitMaxRequests <= 0 {
		violations = append(violations, "RATE_LIMIT_MAX_REQUESTS must be positive")
	}
	if c.RateLimitWindow <= 0 {
		violations = append(violations, "RATE_LIMIT_WINDOW_MS must be positive")
	}
	if c.MaxBackupsPerServer <= 0 {
		violations = append(violations, "BACKUP_MAX_PER_SERVER must be positive")
	}
	if c.RetentionDays <= 0 {
		violations = append(violations, "BACKUP_RETENTION_DAYS must be positive")
	}
	if c.BackupNamePrefix == "" {
		violations = append(violations, "BACKUP_NAME_PREFIX must not be empty")
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// DSN builds the Postgres connection string for the history store.
func (d DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode, int(d.ConnectTimeout.Seconds()))
}

// ============================================================================
// ENV HELPERS
// ============================================================================

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
