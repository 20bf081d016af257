package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Rollbar       RollbarConfig
	Analytics     AnalyticsConfig
	Results       ResultsConfig
	ReportCards   ReportCardsConfig
	Attempts      AttemptsConfig
	Notifications NotificationsConfig
	Exports       ExportsConfig
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	TxRetries    int
}

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// JWTConfig holds the shared secret used to validate tokens issued by the identity service.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RollbarConfig enables error reporting for internal failures.
type RollbarConfig struct {
	Token       string
	Environment string
	CodeVersion string
}

// AnalyticsConfig governs feature flagging and cache behaviour for analytics endpoints.
type AnalyticsConfig struct {
	Enabled      bool
	CacheTTL     time.Duration
	TopPerformer int
}

// ResultsConfig tunes result ingestion.
type ResultsConfig struct {
	BulkDeadline time.Duration
	MaxBatchSize int
}

// ReportCardsConfig tunes report-card generation.
type ReportCardsConfig struct {
	DefaultStatus       string
	LowPerformanceBelow float64
	LowPerformanceFails int
}

// AttemptsConfig tunes the online attempt engine.
type AttemptsConfig struct {
	AutosaveInterval time.Duration
	SweepInterval    time.Duration
}

// NotificationsConfig controls the dispatcher queue and its sinks.
type NotificationsConfig struct {
	Workers        int
	BufferSize     int
	MaxRetries     int
	RetryDelay     time.Duration
	ReminderLead   time.Duration
	OutboxEnabled  bool
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string
	StaffRecipient []string
}

// ExportsConfig configures report-card export storage.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		TxRetries:    v.GetInt("DB_TX_RETRIES"),
	}

	cfg.Redis = RedisConfig{
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: v.GetString("JWT_AUDIENCE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Rollbar = RollbarConfig{
		Token:       v.GetString("ROLLBAR_TOKEN"),
		Environment: v.GetString("ENV"),
		CodeVersion: v.GetString("BUILD_VERSION"),
	}

	cfg.Analytics = AnalyticsConfig{
		Enabled:      v.GetBool("ENABLE_ANALYTICS_CACHE"),
		CacheTTL:     parseDuration(v.GetString("ANALYTICS_CACHE_TTL"), 10*time.Minute),
		TopPerformer: v.GetInt("ANALYTICS_TOP_PERFORMERS"),
	}

	cfg.Results = ResultsConfig{
		BulkDeadline: parseDuration(v.GetString("BULK_DEADLINE"), 30*time.Second),
		MaxBatchSize: v.GetInt("RESULTS_MAX_BATCH"),
	}

	cfg.ReportCards = ReportCardsConfig{
		DefaultStatus:       strings.ToUpper(v.GetString("REPORT_CARD_DEFAULT_STATUS")),
		LowPerformanceBelow: v.GetFloat64("LOW_PERFORMANCE_THRESHOLD"),
		LowPerformanceFails: v.GetInt("LOW_PERFORMANCE_FAIL_COUNT"),
	}

	cfg.Attempts = AttemptsConfig{
		AutosaveInterval: parseDuration(v.GetString("ATTEMPT_AUTOSAVE_INTERVAL"), time.Second),
		SweepInterval:    parseDuration(v.GetString("ATTEMPT_SWEEP_INTERVAL"), 5*time.Minute),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:        v.GetInt("NOTIFY_WORKERS"),
		BufferSize:     v.GetInt("NOTIFY_BUFFER"),
		MaxRetries:     v.GetInt("NOTIFY_MAX_RETRIES"),
		RetryDelay:     parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), time.Second),
		ReminderLead:   parseDuration(v.GetString("REMINDER_LEAD"), 24*time.Hour),
		OutboxEnabled:  v.GetBool("NOTIFY_OUTBOX"),
		SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
		EmailFrom:      v.GetString("EMAIL_FROM"),
		EmailFromName:  v.GetString("EMAIL_FROM_NAME"),
		StaffRecipient: splitAndTrim(v.GetString("STAFF_ALERT_RECIPIENTS")),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_exams")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_TX_RETRIES", 1)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "exams")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ROLLBAR_TOKEN", "")
	v.SetDefault("BUILD_VERSION", "dev")

	v.SetDefault("ENABLE_ANALYTICS_CACHE", true)
	v.SetDefault("ANALYTICS_CACHE_TTL", "10m")
	v.SetDefault("ANALYTICS_TOP_PERFORMERS", 10)

	v.SetDefault("BULK_DEADLINE", "30s")
	v.SetDefault("RESULTS_MAX_BATCH", 500)

	v.SetDefault("REPORT_CARD_DEFAULT_STATUS", "PUBLISHED")
	v.SetDefault("LOW_PERFORMANCE_THRESHOLD", 40)
	v.SetDefault("LOW_PERFORMANCE_FAIL_COUNT", 3)

	v.SetDefault("ATTEMPT_AUTOSAVE_INTERVAL", "1s")
	v.SetDefault("ATTEMPT_SWEEP_INTERVAL", "5m")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_BUFFER", 256)
	v.SetDefault("NOTIFY_MAX_RETRIES", 5)
	v.SetDefault("NOTIFY_RETRY_DELAY", "1s")
	v.SetDefault("REMINDER_LEAD", "24h")
	v.SetDefault("NOTIFY_OUTBOX", true)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("EMAIL_FROM", "no-reply@sma.local")
	v.SetDefault("EMAIL_FROM_NAME", "SMA Exams")
	v.SetDefault("STAFF_ALERT_RECIPIENTS", "")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
