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
	Encryption EncryptionConfig
	Plaid      PlaidConfig
	Sandbox    SandboxConfig
	Sync       SyncConfig
	Scheduler  SchedulerConfig
	Webhook    WebhookConfig
	Kafka      KafkaConfig
	Firebase   FirebaseConfig
	Telemetry  TelemetryConfig
	TLS        TLSConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	APIToken     string
	AllowedHosts []string
}

type DatabaseConfig struct {
	Enabled  bool
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type EncryptionConfig struct {
	Secret string
}

type PlaidConfig struct {
	ClientID    string
	Secret      string
	Environment string
}

// Configured reports whether Plaid credentials are present. An unconfigured
// Plaid is not an error; the provider is simply not registered.
func (c PlaidConfig) Configured() bool {
	return c.ClientID != "" && c.Secret != ""
}

type SandboxConfig struct {
	Enabled bool
}

type SyncConfig struct {
	TransactionDays    int
	BatchSize          int
	MaxPages           int
	ProviderTimeout    time.Duration
	AutoSyncInterval   time.Duration
	IncludeInvestments bool
	IncludeLiabilities bool
	IncludeIncome      bool
	IncludeRecurring   bool
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
}

type WebhookConfig struct {
	Secret string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether event publishing is configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type FirebaseConfig struct {
	CredentialsFile string
	MessagesFile    string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	MetricsPort  string
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

func Load() (*Config, error) {

	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	dbURL := getEnv("DATABASE_URL", "")

	transactionDays, err := getIntEnv("SYNC_TRANSACTION_DAYS", 90)
	if err != nil {
		return nil, err
	}
	batchSize, err := getIntEnv("SYNC_BATCH_SIZE", 3)
	if err != nil {
		return nil, err
	}
	maxPages, err := getIntEnv("SYNC_MAX_PAGES", 25)
	if err != nil {
		return nil, err
	}
	providerTimeoutSecs, err := getIntEnv("PROVIDER_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	autoSyncMinutes, err := getIntEnv("AUTO_SYNC_MINUTES", 0)
	if err != nil {
		return nil, err
	}

	// Parse scheduler configuration
	schedulerEnabled := getBoolEnv("SCHEDULER_ENABLED", false)
	schedulerTimes := splitAndTrim(getEnv("SCHEDULER_TIMES", "05:00,20:00"))
	schedulerWorkers, err := getIntEnv("SCHEDULER_WORKERS", 3)
	if err != nil {
		return nil, err
	}
	schedulerJobDelay, err := time.ParseDuration(getEnv("SCHEDULER_JOB_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_JOB_DELAY: %w", err)
	}
	schedulerQueueSize, err := getIntEnv("SCHEDULER_QUEUE_SIZE", 100)
	if err != nil {
		return nil, err
	}
	schedulerRunOnStartup := getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false)

	// Parse TLS configuration
	tlsEnabled := getBoolEnv("TLS_ENABLED", false)
	tlsCertPath := getEnv("TLS_CERT_PATH", "")
	tlsKeyPath := getEnv("TLS_KEY_PATH", "")
	tlsRedirectHTTP := getBoolEnv("TLS_REDIRECT_HTTP", false)

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			APIToken:     getEnv("API_TOKEN", ""),
			AllowedHosts: splitAndTrim(getEnv("ALLOWED_HOSTS", "")),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolEnv("DB_ENABLED", dbURL != ""),
			URL:      dbURL,
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "fiscus"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "fiscus"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Encryption: EncryptionConfig{
			Secret: getEnv("ENCRYPTION_SECRET", ""),
		},
		Plaid: PlaidConfig{
			ClientID:    getEnv("PLAID_CLIENT_ID", ""),
			Secret:      getEnv("PLAID_SECRET", ""),
			Environment: getEnv("PLAID_ENV", "sandbox"),
		},
		Sandbox: SandboxConfig{
			Enabled: getBoolEnv("SANDBOX_PROVIDER_ENABLED", true),
		},
		Sync: SyncConfig{
			TransactionDays:    transactionDays,
			BatchSize:          batchSize,
			MaxPages:           maxPages,
			ProviderTimeout:    time.Duration(providerTimeoutSecs) * time.Second,
			AutoSyncInterval:   time.Duration(autoSyncMinutes) * time.Minute,
			IncludeInvestments: getBoolEnv("SYNC_INCLUDE_INVESTMENTS", true),
			IncludeLiabilities: getBoolEnv("SYNC_INCLUDE_LIABILITIES", true),
			IncludeIncome:      getBoolEnv("SYNC_INCLUDE_INCOME", false),
			IncludeRecurring:   getBoolEnv("SYNC_INCLUDE_RECURRING", false),
		},
		Scheduler: SchedulerConfig{
			Enabled:       schedulerEnabled,
			ScheduleTimes: schedulerTimes,
			WorkerCount:   schedulerWorkers,
			JobDelay:      schedulerJobDelay,
			QueueSize:     schedulerQueueSize,
			RunOnStartup:  schedulerRunOnStartup,
		},
		Webhook: WebhookConfig{
			Secret: getEnv("WEBHOOK_SECRET", ""),
		},
		Kafka: KafkaConfig{
			Brokers: splitAndTrim(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "fiscus.connections"),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			MessagesFile:    getEnv("MESSAGES_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("TELEMETRY_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "fiscus"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
		},
		TLS: TLSConfig{
			Enabled:      tlsEnabled,
			CertPath:     tlsCertPath,
			KeyPath:      tlsKeyPath,
			RedirectHTTP: tlsRedirectHTTP,
		},
	}

	// Validate required fields
	if cfg.Plaid.Environment != "sandbox" && cfg.Plaid.Environment != "production" {
		return nil, fmt.Errorf("PLAID_ENV must be sandbox or production, got %q", cfg.Plaid.Environment)
	}
	if cfg.Database.Enabled && cfg.Encryption.Secret == "" {
		return nil, fmt.Errorf("ENCRYPTION_SECRET is required when the database is enabled")
	}
	for _, at := range cfg.Scheduler.ScheduleTimes {
		if _, err := time.Parse("15:04", at); err != nil {
			return nil, fmt.Errorf("invalid SCHEDULER_TIMES entry %q: want HH:MM", at)
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

// ConnectionString prefers DATABASE_URL and falls back to the discrete DB_*
// fields.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
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

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
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

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
