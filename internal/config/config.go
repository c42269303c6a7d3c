// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aristath/autotrader/internal/utils"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the ledger database (always absolute)
	LogLevel  string
	LogPretty bool
	Port      int
	DevMode   bool

	Ledger  LedgerConfig
	Risk    RiskConfig
	Signals SignalsConfig
	Jobs    JobsConfig
	Backup  BackupConfig
}

// LedgerConfig configures the SQLite ledger
type LedgerConfig struct {
	Driver         string // "sqlite" (modernc, pure Go) or "sqlite3" (mattn, cgo)
	InitialCapital float64
	MaxRetries     int
}

// RiskConfig holds the risk gate and execution parameters
type RiskConfig struct {
	MaxPositionFraction float64
	CommissionRate      float64
	SymbolLimits        map[string]float64 // Per-symbol max position fraction overrides
}

// SignalsConfig configures signal intake
type SignalsConfig struct {
	WebSocketURL string // Empty disables the websocket consumer
	QueueSize    int
	RecordPrice  bool // Store the signal's current_price as a market tick
}

// JobsConfig holds cron schedules for background jobs
type JobsConfig struct {
	MarkToMarketSchedule string
	PendingRetrySchedule string
	MaintenanceSchedule  string
	WALCheckSchedule     string
}

// BackupConfig configures ledger backups to S3-compatible storage
type BackupConfig struct {
	Schedule        string
	Bucket          string // Empty disables uploads
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Enabled reports whether remote backups are configured
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TRADER_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	symbolLimits, err := parseSymbolLimits(getEnv("RISK_SYMBOL_LIMITS", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:   absDataDir,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),
		Port:      getEnvAsInt("GO_PORT", 8001),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		Ledger: LedgerConfig{
			Driver:         getEnv("DB_DRIVER", "sqlite"),
			InitialCapital: getEnvAsFloat("INITIAL_CAPITAL", 100000),
			MaxRetries:     getEnvAsInt("LEDGER_MAX_RETRIES", 3),
		},
		Risk: RiskConfig{
			MaxPositionFraction: getEnvAsFloat("MAX_POSITION_FRACTION", 0.1),
			CommissionRate:      getEnvAsFloat("COMMISSION_RATE", 0.001),
			SymbolLimits:        symbolLimits,
		},
		Signals: SignalsConfig{
			WebSocketURL: getEnv("SIGNALS_WS_URL", ""),
			QueueSize:    getEnvAsInt("SIGNALS_QUEUE_SIZE", 256),
			RecordPrice:  getEnvAsBool("SIGNALS_RECORD_PRICE", false),
		},
		Jobs: JobsConfig{
			MarkToMarketSchedule: getEnv("MTM_SCHEDULE", "@every 60s"),
			PendingRetrySchedule: getEnv("PENDING_RETRY_SCHEDULE", "@every 30s"),
			MaintenanceSchedule:  getEnv("MAINTENANCE_SCHEDULE", "0 0 2 * * *"),
			WALCheckSchedule:     getEnv("WAL_CHECK_SCHEDULE", "@every 5m"),
		},
		Backup: BackupConfig{
			Schedule:        getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
			Bucket:          getEnv("BACKUP_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
			Region:          getEnv("BACKUP_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// BackupStagingDir returns the scratch directory used while building backups
func (c *Config) BackupStagingDir() string {
	return filepath.Join(c.DataDir, "backup-staging")
}

// LocalBackupDir holds backups when no bucket is configured
func (c *Config) LocalBackupDir() string {
	return filepath.Join(c.DataDir, "backups")
}

// LedgerPath returns the ledger database file path
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid GO_PORT: %d", c.Port)
	}
	if c.Ledger.Driver != "sqlite" && c.Ledger.Driver != "sqlite3" {
		return fmt.Errorf("invalid DB_DRIVER %q: must be sqlite or sqlite3", c.Ledger.Driver)
	}
	if c.Ledger.InitialCapital <= 0 {
		return fmt.Errorf("INITIAL_CAPITAL must be positive, got %v", c.Ledger.InitialCapital)
	}
	if c.Ledger.MaxRetries < 0 {
		return fmt.Errorf("LEDGER_MAX_RETRIES must not be negative")
	}
	if !validFraction(c.Risk.MaxPositionFraction) {
		return fmt.Errorf("MAX_POSITION_FRACTION must be in (0, 1], got %v", c.Risk.MaxPositionFraction)
	}
	if c.Risk.CommissionRate < 0 || c.Risk.CommissionRate >= 1 {
		return fmt.Errorf("COMMISSION_RATE must be in [0, 1), got %v", c.Risk.CommissionRate)
	}
	if c.Signals.QueueSize <= 0 {
		return fmt.Errorf("SIGNALS_QUEUE_SIZE must be positive")
	}
	if c.Backup.Enabled() && (c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "") {
		return fmt.Errorf("BACKUP_BUCKET set without BACKUP_ACCESS_KEY_ID/BACKUP_SECRET_ACCESS_KEY")
	}
	return nil
}

// parseSymbolLimits parses "AAPL:0.2,TSLA:0.05"
func parseSymbolLimits(raw string) (map[string]float64, error) {
	limits := make(map[string]float64)
	for _, part := range utils.ParseCSV(raw) {
		symbol, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid RISK_SYMBOL_LIMITS entry %q: expected SYMBOL:FRACTION", part)
		}
		fraction, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || !validFraction(fraction) {
			return nil, fmt.Errorf("invalid RISK_SYMBOL_LIMITS fraction for %s: %q", symbol, value)
		}
		limits[strings.ToUpper(strings.TrimSpace(symbol))] = fraction
	}
	return limits, nil
}

func validFraction(f float64) bool {
	return f > 0 && f <= 1
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
