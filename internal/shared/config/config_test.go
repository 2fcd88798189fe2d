package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "8080")
	}
	if cfg.Database.Enabled {
		t.Error("Database.Enabled should default to false")
	}
	if cfg.Plaid.Environment != "sandbox" {
		t.Errorf("Plaid.Environment = %q, want sandbox", cfg.Plaid.Environment)
	}
	if !cfg.Sandbox.Enabled {
		t.Error("Sandbox.Enabled should default to true")
	}
	if cfg.Sync.TransactionDays != 90 {
		t.Errorf("Sync.TransactionDays = %d, want 90", cfg.Sync.TransactionDays)
	}
	if cfg.Sync.BatchSize != 3 {
		t.Errorf("Sync.BatchSize = %d, want 3", cfg.Sync.BatchSize)
	}
	if cfg.Sync.ProviderTimeout != 30*time.Second {
		t.Errorf("Sync.ProviderTimeout = %v, want 30s", cfg.Sync.ProviderTimeout)
	}
	if cfg.Sync.AutoSyncInterval != 0 {
		t.Errorf("Sync.AutoSyncInterval = %v, want 0 (off)", cfg.Sync.AutoSyncInterval)
	}
	if cfg.Kafka.Enabled() {
		t.Error("Kafka.Enabled() should be false without brokers")
	}
}

func TestLoad_DatabaseURLEnablesDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://fiscus:pw@localhost:5432/fiscus?sslmode=disable")
	t.Setenv("ENCRYPTION_SECRET", "super-long-encryption-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if !cfg.Database.Enabled {
		t.Error("Database.Enabled should be true when DATABASE_URL is set")
	}
	if cfg.Database.ConnectionString() != "postgres://fiscus:pw@localhost:5432/fiscus?sslmode=disable" {
		t.Errorf("ConnectionString() = %q, want the DATABASE_URL verbatim", cfg.Database.ConnectionString())
	}
}

func TestLoad_DatabaseRequiresEncryptionSecret(t *testing.T) {
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("ENCRYPTION_SECRET", "")
	os.Unsetenv("ENCRYPTION_SECRET")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for enabled database without ENCRYPTION_SECRET, got nil")
	}
}

func TestLoad_InvalidPlaidEnvironment(t *testing.T) {
	t.Setenv("PLAID_ENV", "staging")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid PLAID_ENV, got nil")
	}
}

func TestLoad_PlaidConfigured(t *testing.T) {
	t.Setenv("PLAID_CLIENT_ID", "client-id")
	t.Setenv("PLAID_SECRET", "secret")
	t.Setenv("PLAID_ENV", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if !cfg.Plaid.Configured() {
		t.Error("Plaid.Configured() should be true with both credentials set")
	}
	if cfg.Plaid.Environment != "production" {
		t.Errorf("Plaid.Environment = %q, want production", cfg.Plaid.Environment)
	}
}

func TestLoad_InvalidDBPort(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid DB_PORT, got nil")
	}
}

func TestLoad_InvalidScheduleTime(t *testing.T) {
	t.Setenv("SCHEDULER_TIMES", "05:00,25:61")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for out-of-range SCHEDULER_TIMES, got nil")
	}
}

func TestLoad_SchedulerConfig(t *testing.T) {
	t.Setenv("SCHEDULER_ENABLED", "true")
	t.Setenv("SCHEDULER_TIMES", "06:30, 18:00")
	t.Setenv("SCHEDULER_WORKERS", "5")
	t.Setenv("SCHEDULER_RUN_ON_STARTUP", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if !cfg.Scheduler.Enabled {
		t.Error("Scheduler.Enabled should be true")
	}
	if len(cfg.Scheduler.ScheduleTimes) != 2 || cfg.Scheduler.ScheduleTimes[1] != "18:00" {
		t.Errorf("Scheduler.ScheduleTimes = %v", cfg.Scheduler.ScheduleTimes)
	}
	if cfg.Scheduler.WorkerCount != 5 {
		t.Errorf("Scheduler.WorkerCount = %d, want 5", cfg.Scheduler.WorkerCount)
	}
	if !cfg.Scheduler.RunOnStartup {
		t.Error("Scheduler.RunOnStartup should be true")
	}
}

func TestLoad_KafkaBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if !cfg.Kafka.Enabled() {
		t.Error("Kafka.Enabled() should be true with brokers set")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "broker-2:9092" {
		t.Errorf("Kafka.Brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Topic != "fiscus.connections" {
		t.Errorf("Kafka.Topic = %q", cfg.Kafka.Topic)
	}
}

func TestLoad_SyncIncludes(t *testing.T) {
	t.Setenv("SYNC_INCLUDE_INVESTMENTS", "false")
	t.Setenv("SYNC_INCLUDE_INCOME", "true")
	t.Setenv("AUTO_SYNC_MINUTES", "45")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Sync.IncludeInvestments {
		t.Error("Sync.IncludeInvestments should be false")
	}
	if !cfg.Sync.IncludeIncome {
		t.Error("Sync.IncludeIncome should be true")
	}
	if cfg.Sync.AutoSyncInterval != 45*time.Minute {
		t.Errorf("Sync.AutoSyncInterval = %v, want 45m", cfg.Sync.AutoSyncInterval)
	}
}

func TestLoad_TLSValidation(t *testing.T) {
	t.Setenv("TLS_ENABLED", "true")
	t.Setenv("TLS_CERT_PATH", "")
	t.Setenv("TLS_KEY_PATH", "")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for TLS enabled without cert path, got nil")
	}
}

func TestLoad_AllowedHosts(t *testing.T) {
	t.Setenv("ALLOWED_HOSTS", "example.com, api.example.com, localhost:3000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Server.AllowedHosts) != 3 {
		t.Errorf("AllowedHosts length = %d, want 3", len(cfg.Server.AllowedHosts))
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		value    string
		defVal   bool
		expected bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"invalid", true, true},   // returns default
		{"invalid", false, false}, // returns default
		{"", true, true},          // empty returns default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			key := "TEST_BOOL_ENV"
			if tt.value == "" {
				os.Unsetenv(key)
			} else {
				t.Setenv(key, tt.value)
			}

			got := getBoolEnv(key, tt.defVal)
			if got != tt.expected {
				t.Errorf("getBoolEnv(%q, %v) = %v, want %v", tt.value, tt.defVal, got, tt.expected)
			}
		})
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	got := cfg.ConnectionString()
	if got != expected {
		t.Errorf("ConnectionString() = %q, want %q", got, expected)
	}
}
