package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	App        AppConfig
	Ledger     LedgerConfig
	Scoring    ScoringConfig
	Settlement SettlementConfig
	Redis      RedisConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret string
}

// LedgerConfig holds the pool program and RPC settings
type LedgerConfig struct {
	RPCURL            string
	ProgramID         string
	AuthorityKey      string
	FeeCollector      string
	Decimals          int32
	DefaultFeeBps     uint16
	RequestTimeout    time.Duration
	ConfirmCommitment string
}

// ScoringConfig holds evaluator settings
type ScoringConfig struct {
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	CallInterval  time.Duration
	Timeout       time.Duration
}

// SettlementConfig holds coordinator and job settings
type SettlementConfig struct {
	DiscoveryAttempts    int
	DiscoveryBackoff     time.Duration
	AutoPromoteInterval  time.Duration
	PoolRefreshInterval  time.Duration
	DeadlineScanInterval time.Duration
}

// RedisConfig holds the shared cache settings. An empty URL disables Redis.
type RedisConfig struct {
	URL     string
	PoolTTL time.Duration
	Channel string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "sports_prediction"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: getEnvList("CORS_ORIGINS", []string{
				"http://localhost:3000",
				"http://localhost:5173",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:5173",
			}),
		},
		App: AppConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Ledger: LedgerConfig{
			RPCURL:            getEnv("SOLANA_RPC_URL", "https://api.devnet.solana.com"),
			ProgramID:         getEnv("POOL_PROGRAM_ID", ""),
			AuthorityKey:      getEnv("SOLANA_AUTHORITY_PRIVATE_KEY", ""),
			FeeCollector:      getEnv("PLATFORM_WALLET_PUBLIC_KEY", ""),
			Decimals:          int32(getEnvInt("LEDGER_DECIMALS", 9)),
			DefaultFeeBps:     uint16(getEnvInt("POOL_FEE_BPS", 250)),
			RequestTimeout:    getEnvDuration("LEDGER_TIMEOUT", 30*time.Second),
			ConfirmCommitment: getEnv("LEDGER_COMMITMENT", "confirmed"),
		},
		Scoring: ScoringConfig{
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			CallInterval:  getEnvDuration("SCORING_CALL_INTERVAL", time.Second),
			Timeout:       getEnvDuration("SCORING_TIMEOUT", 30*time.Second),
		},
		Settlement: SettlementConfig{
			DiscoveryAttempts:    getEnvInt("POOL_DISCOVERY_ATTEMPTS", 10),
			DiscoveryBackoff:     getEnvDuration("POOL_DISCOVERY_BACKOFF", 2*time.Second),
			AutoPromoteInterval:  getEnvDuration("AUTO_PROMOTE_INTERVAL", 0),
			PoolRefreshInterval:  getEnvDuration("POOL_REFRESH_INTERVAL", 30*time.Second),
			DeadlineScanInterval: getEnvDuration("DEADLINE_SCAN_INTERVAL", time.Minute),
		},
		Redis: RedisConfig{
			URL:     getEnv("REDIS_URL", ""),
			PoolTTL: getEnvDuration("REDIS_POOL_TTL", 5*time.Minute),
			Channel: getEnv("REDIS_POOL_CHANNEL", "pool_updates"),
		},
	}

	// Validate required fields
	if config.App.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if config.Settlement.DiscoveryAttempts <= 0 {
		return nil, fmt.Errorf("POOL_DISCOVERY_ATTEMPTS must be positive")
	}

	if config.Settlement.PoolRefreshInterval <= 0 || config.Settlement.DeadlineScanInterval <= 0 {
		return nil, fmt.Errorf("POOL_REFRESH_INTERVAL and DEADLINE_SCAN_INTERVAL must be positive")
	}

	return config, nil
}

// GetDSN returns the database connection string. DATABASE_URL wins over the
// individual DB_* settings.
func (c *Config) GetDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// getEnvList splits a comma-separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
