// Package config provides configuration for the liquidation bot. It
// loads runtime settings from environment variables and .env files and
// exposes the static pool description as an immutable value.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Chain    ChainConfig
	Oracle   OracleConfig
	Wallet   WalletConfig
	Indexer  IndexerConfig
	Engine   EngineConfig
	Telegram TelegramConfig
	Logging  LoggingConfig
}

// ServerConfig holds the operational HTTP server configuration.
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration.
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// ChainConfig holds the chain API endpoints.
type ChainConfig struct {
	TonAPIURL       string
	TonAPIKey       string
	ToncenterURL    string
	ToncenterAPIKey string
	// RPCCallInterval spaces consecutive get-method calls.
	RPCCallInterval time.Duration
}

// OracleConfig holds price feed configuration.
type OracleConfig struct {
	Endpoints       []string
	RefreshInterval time.Duration
	// Distinct oracle signatures required per price bundle.
	Quorum int
	// Freshness windows: validation uses the looser one, dispatch the
	// tighter one.
	ValidatorMaxAge  time.Duration
	LiquidatorMaxAge time.Duration
}

// WalletConfig holds the highload wallet configuration.
type WalletConfig struct {
	Address string
	// SecretSeed is the 32-byte ed25519 seed, hex encoded.
	SecretSeed     string
	SubwalletID    uint32
	MessageTimeout time.Duration
}

// IndexerConfig holds transaction scan configuration.
type IndexerConfig struct {
	PageLimit       int
	PageSleep       time.Duration
	TxProcessDelay  time.Duration
	ResyncDelay     time.Duration
	FromScratch     bool
}

// EngineConfig holds the periodic loop intervals.
type EngineConfig struct {
	ValidatorInterval  time.Duration
	LiquidatorInterval time.Duration
	SweeperInterval    time.Duration
}

// TelegramConfig holds the alert side channel configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables.
func LoadConfig() (*Config, error) {
	// .env file is optional, environment variables can be set directly.
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "liquidator"),
				User:           getEnv("POSTGRES_USER", "liquidator"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "liquidator"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:     getEnv("REDIS_HOST", "localhost"),
				Port:     getEnv("REDIS_PORT", "6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvAsInt("REDIS_DB", 0),
			},
		},
		Chain: ChainConfig{
			TonAPIURL:       getEnv("TONAPI_URL", "https://tonapi.io"),
			TonAPIKey:       getEnv("TONAPI_KEY", ""),
			ToncenterURL:    getEnv("TONCENTER_URL", "https://toncenter.com/api/v2/jsonRPC"),
			ToncenterAPIKey: getEnv("TONCENTER_API_KEY", ""),
			RPCCallInterval: getEnvAsDuration("RPC_CALL_INTERVAL", 20*time.Millisecond),
		},
		Oracle: OracleConfig{
			Endpoints:        splitList(getEnv("ORACLE_ENDPOINTS", "https://evaa.space/api/prices")),
			RefreshInterval:  getEnvAsDuration("PRICE_REFRESH_INTERVAL", 15*time.Second),
			Quorum:           getEnvAsInt("ORACLE_QUORUM", 3),
			ValidatorMaxAge:  getEnvAsDuration("PRICE_VALIDATOR_MAX_AGE", 136*time.Second),
			LiquidatorMaxAge: getEnvAsDuration("PRICE_LIQUIDATOR_MAX_AGE", 150*time.Second),
		},
		Wallet: WalletConfig{
			Address:        getEnv("WALLET_ADDRESS", ""),
			SecretSeed:     getEnv("WALLET_SECRET_SEED", ""),
			SubwalletID:    uint32(getEnvAsInt("WALLET_SUBWALLET_ID", 698983191)),
			MessageTimeout: getEnvAsDuration("WALLET_MESSAGE_TIMEOUT", 60*time.Second),
		},
		Indexer: IndexerConfig{
			PageLimit:      getEnvAsInt("INDEXER_PAGE_LIMIT", 1000),
			PageSleep:      getEnvAsDuration("INDEXER_PAGE_SLEEP", 1500*time.Millisecond),
			TxProcessDelay: getEnvAsDuration("INDEXER_TX_PROCESS_DELAY", 40*time.Millisecond),
			ResyncDelay:    getEnvAsDuration("INDEXER_RESYNC_DELAY", 60*time.Second),
			FromScratch:    getEnvAsBool("INDEXER_FROM_SCRATCH", false),
		},
		Engine: EngineConfig{
			ValidatorInterval:  getEnvAsDuration("VALIDATOR_INTERVAL", 5*time.Second),
			LiquidatorInterval: getEnvAsDuration("LIQUIDATOR_INTERVAL", 5*time.Second),
			SweeperInterval:    getEnvAsDuration("SWEEPER_INTERVAL", 10*time.Second),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
