package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Sla          SlaConfig
	Scheduler    SchedulerConfig
	Mailbox      MailboxConfig
	Classifier   ClassifierConfig
	Delivery     DeliveryConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
}

// SlaConfig carries the default per-urgency hour budgets. The live policy is
// read from the settings store; these values seed it on first boot.
type SlaConfig struct {
	HighHours   int
	MediumHours int
	LowHours    int
}

// SchedulerConfig controls the recurring ingestion trigger.
type SchedulerConfig struct {
	Enabled         bool
	IntervalMinutes int
}

// MailboxConfig identifies the inbox the ingest pass pulls from. The
// protocol-level client is a collaborator; the core only needs a stable
// mailbox name for the single-flight marker.
type MailboxConfig struct {
	Name string
}

// ClassifierConfig configures the AI classifier collaborator.
type ClassifierConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	TimeoutSeconds int
}

// DeliveryConfig configures outbound mail via SES.
type DeliveryConfig struct {
	FromAddress string
	FromName    string
	AWSRegion   string
	AWSKey      string
	AWSSecret   string
}

// NotificationConfig holds webhook notification settings.
type NotificationConfig struct {
	WebhookURL     string
	NotifyOnUrgent bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-desk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		Sla: SlaConfig{
			HighHours:   getEnvAsInt("SLA_HOURS_HIGH", 4),
			MediumHours: getEnvAsInt("SLA_HOURS_MEDIUM", 8),
			LowHours:    getEnvAsInt("SLA_HOURS_LOW", 24),
		},
		Scheduler: SchedulerConfig{
			Enabled:         getEnvAsBool("SCHEDULER_ENABLED", false),
			IntervalMinutes: getEnvAsInt("SCHEDULER_INTERVAL_MINUTES", 5),
		},
		Mailbox: MailboxConfig{
			Name: getEnv("MAILBOX_NAME", "support-inbox"),
		},
		Classifier: ClassifierConfig{
			APIKey:         os.Getenv("CLASSIFIER_API_KEY"),
			Model:          getEnv("CLASSIFIER_MODEL", "gpt-4o-mini"),
			BaseURL:        getEnv("CLASSIFIER_BASE_URL", "https://api.openai.com/v1"),
			TimeoutSeconds: getEnvAsInt("CLASSIFIER_TIMEOUT_SECONDS", 60),
		},
		Delivery: DeliveryConfig{
			FromAddress: getEnv("DELIVERY_FROM_ADDRESS", "support@example.com"),
			FromName:    getEnv("DELIVERY_FROM_NAME", "Support Team"),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			AWSKey:      os.Getenv("AWS_ACCESS_KEY_ID"),
			AWSSecret:   os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},
		Notification: NotificationConfig{
			WebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
			NotifyOnUrgent: getEnvAsBool("NOTIFY_ON_URGENT", true),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
