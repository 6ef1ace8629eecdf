package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения.
type Config struct {
	Broker   BrokerConfig
	Store    StoreConfig
	Watch    WatchConfig
	Dispatch DispatchConfig
	Logging  LoggingConfig
	HTTP     HTTPConfig
}

// HTTPConfig - настройки HTTP-сервера (health/metrics/status).
type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// BrokerConfig - настройки подключения к Redis (Broker Client).
type BrokerConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StoreConfig - настройки подключения к Postgres (Rule Store).
type StoreConfig struct {
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN собирает строку подключения lib/pq из полей StoreConfig.
func (s StoreConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		s.Host, s.Port, s.Name, s.User, s.Password, s.SSLMode)
}

// ChainConfig описывает RPC-подключение к одной сети для Wallet Watcher.
type ChainConfig struct {
	Name         string
	ChainID      int64
	RPCURL       string
	NativeSymbol string
	BlockTime    time.Duration
}

// WatchConfig - настройки Watcher Pool и его вотчеров.
type WatchConfig struct {
	// Интервалы опроса по умолчанию для каждого типа вотчера
	TokenPollInterval   time.Duration
	WalletPollInterval  time.Duration
	AirdropPollInterval time.Duration

	// Внешние источники данных
	PriceAPIBaseURL   string
	PriceAPIKey       string
	AlertsAPIBaseURL  string
	AlertsAPIKey      string

	// RPC-подключения по сетям (ethereum/bsc/base/solana)
	Chains map[string]ChainConfig

	// Ограничение параллелизма при опросе кошельков на сеть
	ChainConcurrency int

	// Число блоков "холодного старта" для Wallet Watcher при первом
	// запуске, когда ещё нет сохранённого курсора последнего блока
	ColdStartBlockWindow int64

	// TTL кэшей вотчеров (метаданные токена, дедупликация транзакций)
	TokenMetadataCacheTTL time.Duration
	SeenTxCacheTTL        time.Duration

	MaxRetries   int
	RetryBackoff time.Duration
}

// DispatchConfig - настройки Notification Dispatcher.
type DispatchConfig struct {
	// Окна дедупликации: совпадение условия правила (матчер) и
	// совпадение итогового текста сообщения в канале (диспетчер)
	MatchDedupWindow    time.Duration
	MessageDedupWindow  time.Duration

	// Квоты rate limit по каналам доставки (сообщений в минуту)
	TelegramRateLimit int
	WebRateLimit      int
	DiscordRateLimit  int

	TelegramAPIBaseURL string
	TelegramBotToken   string
	DiscordWebhook     string
	WebCallbackURL     string

	MaxRetries   int
	RetryBackoff time.Duration
}

// LoggingConfig - настройки логирования.
type LoggingConfig struct {
	Level       string
	Format      string
	Output      string
	Development bool
}

// Load загружает конфигурацию из переменных окружения.
func Load() (*Config, error) {
	cfg := &Config{
		Broker: BrokerConfig{
			Addr:         getEnv("BROKER_ADDR", "localhost:6379"),
			Password:     getEnv("BROKER_PASSWORD", ""),
			DB:           getEnvAsInt("BROKER_DB", 0),
			PoolSize:     getEnvAsInt("BROKER_POOL_SIZE", 10),
			DialTimeout:  getEnvAsDuration("BROKER_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("BROKER_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("BROKER_WRITE_TIMEOUT", 3*time.Second),
		},
		Store: StoreConfig{
			Driver:          getEnv("STORE_DRIVER", "postgres"),
			Host:            getEnv("STORE_HOST", "localhost"),
			Port:            getEnvAsInt("STORE_PORT", 5432),
			Name:            getEnv("STORE_NAME", "marketmonitor"),
			User:            getEnv("STORE_USER", "marketmonitor"),
			Password:        getEnv("STORE_PASSWORD", "marketmonitor"),
			SSLMode:         getEnv("STORE_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("STORE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("STORE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("STORE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Watch: WatchConfig{
			TokenPollInterval:   getEnvAsDuration("TOKEN_POLL_INTERVAL", 30*time.Second),
			WalletPollInterval:  getEnvAsDuration("WALLET_POLL_INTERVAL", 15*time.Second),
			AirdropPollInterval: getEnvAsDuration("AIRDROP_POLL_INTERVAL", 5*time.Minute),

			PriceAPIBaseURL:  getEnv("PRICE_API_BASE_URL", "https://api.coingecko.com/api/v3"),
			PriceAPIKey:      getEnv("PRICE_API_KEY", ""),
			AlertsAPIBaseURL: getEnv("ALERTS_API_BASE_URL", ""),
			AlertsAPIKey:     getEnv("ALERTS_API_KEY", ""),

			Chains: map[string]ChainConfig{
				"ethereum": {
					Name:         "ethereum",
					ChainID:      1,
					RPCURL:       getEnv("ETH_RPC_URL", ""),
					NativeSymbol: "ETH",
					BlockTime:    12 * time.Second,
				},
				"bsc": {
					Name:         "bsc",
					ChainID:      56,
					RPCURL:       getEnv("BSC_RPC_URL", ""),
					NativeSymbol: "BNB",
					BlockTime:    3 * time.Second,
				},
				"base": {
					Name:         "base",
					ChainID:      8453,
					RPCURL:       getEnv("BASE_RPC_URL", ""),
					NativeSymbol: "ETH",
					BlockTime:    2 * time.Second,
				},
				"solana": {
					Name:         "solana",
					RPCURL:       getEnv("SOLANA_RPC_URL", ""),
					NativeSymbol: "SOL",
					BlockTime:    400 * time.Millisecond,
				},
			},

			ChainConcurrency:     getEnvAsInt("CHAIN_CONCURRENCY", 10),
			ColdStartBlockWindow: int64(getEnvAsInt("COLD_START_BLOCK_WINDOW", 100)),

			TokenMetadataCacheTTL: getEnvAsDuration("TOKEN_METADATA_CACHE_TTL", 1*time.Hour),
			SeenTxCacheTTL:        getEnvAsDuration("SEEN_TX_CACHE_TTL", 24*time.Hour),

			MaxRetries:   getEnvAsInt("WATCH_MAX_RETRIES", 4),
			RetryBackoff: getEnvAsDuration("WATCH_RETRY_BACKOFF", 500*time.Millisecond),
		},
		Dispatch: DispatchConfig{
			MatchDedupWindow:   getEnvAsDuration("MATCH_DEDUP_WINDOW", 60*time.Second),
			MessageDedupWindow: getEnvAsDuration("MESSAGE_DEDUP_WINDOW", 300*time.Second),

			TelegramRateLimit: getEnvAsInt("TELEGRAM_RATE_LIMIT", 30),
			WebRateLimit:      getEnvAsInt("WEB_RATE_LIMIT", 100),
			DiscordRateLimit:  getEnvAsInt("DISCORD_RATE_LIMIT", 50),

			TelegramAPIBaseURL: getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
			TelegramBotToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
			DiscordWebhook:     getEnv("DISCORD_WEBHOOK", ""),
			WebCallbackURL:     getEnv("WEB_CALLBACK_URL", ""),

			MaxRetries:   getEnvAsInt("DISPATCH_MAX_RETRIES", 3),
			RetryBackoff: getEnvAsDuration("DISPATCH_RETRY_BACKOFF", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "json"),
			Output:      getEnv("LOG_OUTPUT", ""),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		HTTP: HTTPConfig{
			Addr:         getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:  getEnvAsDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvAsDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		},
	}

	if cfg.Store.Name == "" {
		return nil, fmt.Errorf("STORE_NAME is required")
	}

	return cfg, nil
}

// Вспомогательные функции для чтения переменных окружения.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
