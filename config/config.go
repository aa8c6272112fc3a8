package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BinanceConfig      BinanceConfig      `json:"binance"`
	TradingConfig      TradingConfig      `json:"trading"`
	ScannerConfig      ScannerConfig      `json:"scanner"`
	RegimeConfig       RegimeConfig       `json:"regime"`
	FilterConfig       FilterConfig       `json:"filter"`
	RiskConfig         RiskConfig         `json:"risk"`
	NotificationConfig NotificationConfig `json:"notification"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	ServerConfig       ServerConfig       `json:"server"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

type BinanceConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
	WSBaseURL string `json:"ws_base_url"`
	TestNet   bool   `json:"testnet"`
	MockMode  bool   `json:"mock_mode"` // Use simulated data when the exchange API is unavailable
}

type TradingConfig struct {
	DryRun         bool    `json:"dry_run"` // Record orders without sending them
	AccountBalance float64 `json:"account_balance"`
}

type ScannerConfig struct {
	Enabled      bool     `json:"enabled"`
	Symbols      []string `json:"symbols"`
	Timeframes   []string `json:"timeframes"`
	CandleLimit  int      `json:"candle_limit"`
	ScanInterval int      `json:"scan_interval"` // Seconds between scans
	WorkerCount  int      `json:"worker_count"`
	CacheTTL     int      `json:"cache_ttl"` // Candle cache TTL in seconds
}

type RegimeConfig struct {
	Symbol          string `json:"symbol"`    // Reference symbol for classification
	Timeframe       string `json:"timeframe"` // Reference timeframe
	RegimeCron      string `json:"regime_cron"`
	DailyResetCron  string `json:"daily_reset_cron"`
	OverrideProfile string `json:"override_profile"` // Non-empty pins a profile at startup
}

type FilterConfig struct {
	MinRiskReward           float64 `json:"min_risk_reward"`
	WinProbabilityThreshold float64 `json:"win_probability_threshold"`
	DedupWindowHours        int     `json:"dedup_window_hours"`
}

type RiskConfig struct {
	Leverage         float64 `json:"leverage"`
	MinNotional      float64 `json:"min_notional"`
	QuantityStep     float64 `json:"quantity_step"`
	MaxOpenPositions int     `json:"max_open_positions"`
	MaxDailyDrawdown float64 `json:"max_daily_drawdown"` // Percentage
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type DatabaseConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ServerConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	Host           string   `json:"host"`
	ProductionMode bool     `json:"production_mode"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

// Load reads config.json if present, then applies environment variable
// overrides. A .env file is loaded first when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = defaults()
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		BinanceConfig: BinanceConfig{
			BaseURL:   "https://fapi.binance.com",
			WSBaseURL: "wss://fstream.binance.com",
		},
		TradingConfig: TradingConfig{
			DryRun:         true,
			AccountBalance: 1000,
		},
		ScannerConfig: ScannerConfig{
			Enabled:      true,
			Symbols:      []string{"BTCUSDT", "ETHUSDT"},
			Timeframes:   []string{"1h", "4h"},
			CandleLimit:  200,
			ScanInterval: 4 * 3600,
			WorkerCount:  4,
			CacheTTL:     60,
		},
		RegimeConfig: RegimeConfig{
			Symbol:         "BTCUSDT",
			Timeframe:      "1h",
			RegimeCron:     "0 * * * *",
			DailyResetCron: "0 0 * * *",
		},
		FilterConfig: FilterConfig{
			MinRiskReward:           1.5,
			WinProbabilityThreshold: 90,
			DedupWindowHours:        4,
		},
		RiskConfig: RiskConfig{
			Leverage:         20,
			MinNotional:      5,
			QuantityStep:     0.001,
			MaxOpenPositions: 5,
			MaxDailyDrawdown: 10,
		},
		ServerConfig: ServerConfig{
			Enabled: true,
			Port:    8080,
			Host:    "0.0.0.0",
		},
		LoggingConfig: LoggingConfig{
			Level:      "info",
			Output:     "stdout",
			JSONFormat: true,
		},
	}
}

func (c *Config) validate() error {
	if !c.TradingConfig.DryRun && !c.BinanceConfig.MockMode {
		if c.BinanceConfig.APIKey == "" || c.BinanceConfig.SecretKey == "" {
			return fmt.Errorf("live trading requires BINANCE_API_KEY and BINANCE_SECRET_KEY")
		}
	}
	if len(c.ScannerConfig.Symbols) == 0 {
		return fmt.Errorf("scanner requires at least one symbol")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides; they take
// precedence over config.json values
func applyEnvOverrides(cfg *Config) {
	// Binance config
	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.BinanceConfig.SecretKey)
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	cfg.BinanceConfig.WSBaseURL = getEnvOrDefault("BINANCE_WS_BASE_URL", cfg.BinanceConfig.WSBaseURL)
	cfg.BinanceConfig.TestNet = getEnvBoolOrDefault("BINANCE_TESTNET", cfg.BinanceConfig.TestNet)
	cfg.BinanceConfig.MockMode = getEnvBoolOrDefault("MOCK_MODE", cfg.BinanceConfig.MockMode)
	if cfg.BinanceConfig.TestNet {
		cfg.BinanceConfig.BaseURL = "https://testnet.binancefuture.com"
		cfg.BinanceConfig.WSBaseURL = "wss://stream.binancefuture.com"
	}

	// Trading config
	cfg.TradingConfig.DryRun = getEnvBoolOrDefault("TRADING_DRY_RUN", cfg.TradingConfig.DryRun)
	cfg.TradingConfig.AccountBalance = getEnvFloatOrDefault("TRADING_ACCOUNT_BALANCE", cfg.TradingConfig.AccountBalance)

	// Scanner config
	cfg.ScannerConfig.Enabled = getEnvBoolOrDefault("SCANNER_ENABLED", cfg.ScannerConfig.Enabled)
	cfg.ScannerConfig.Symbols = getEnvListOrDefault("SCANNER_SYMBOLS", cfg.ScannerConfig.Symbols)
	cfg.ScannerConfig.Timeframes = getEnvListOrDefault("SCANNER_TIMEFRAMES", cfg.ScannerConfig.Timeframes)
	cfg.ScannerConfig.CandleLimit = getEnvIntOrDefault("SCANNER_CANDLE_LIMIT", cfg.ScannerConfig.CandleLimit)
	cfg.ScannerConfig.ScanInterval = getEnvIntOrDefault("SCANNER_SCAN_INTERVAL", cfg.ScannerConfig.ScanInterval)
	cfg.ScannerConfig.WorkerCount = getEnvIntOrDefault("SCANNER_WORKER_COUNT", cfg.ScannerConfig.WorkerCount)
	cfg.ScannerConfig.CacheTTL = getEnvIntOrDefault("SCANNER_CACHE_TTL", cfg.ScannerConfig.CacheTTL)

	// Regime config
	cfg.RegimeConfig.Symbol = getEnvOrDefault("REGIME_SYMBOL", cfg.RegimeConfig.Symbol)
	cfg.RegimeConfig.Timeframe = getEnvOrDefault("REGIME_TIMEFRAME", cfg.RegimeConfig.Timeframe)
	cfg.RegimeConfig.RegimeCron = getEnvOrDefault("REGIME_CRON", cfg.RegimeConfig.RegimeCron)
	cfg.RegimeConfig.DailyResetCron = getEnvOrDefault("DAILY_RESET_CRON", cfg.RegimeConfig.DailyResetCron)
	cfg.RegimeConfig.OverrideProfile = getEnvOrDefault("REGIME_OVERRIDE_PROFILE", cfg.RegimeConfig.OverrideProfile)

	// Filter config
	cfg.FilterConfig.MinRiskReward = getEnvFloatOrDefault("FILTER_MIN_RISK_REWARD", cfg.FilterConfig.MinRiskReward)
	cfg.FilterConfig.WinProbabilityThreshold = getEnvFloatOrDefault("FILTER_WIN_PROBABILITY_THRESHOLD", cfg.FilterConfig.WinProbabilityThreshold)
	cfg.FilterConfig.DedupWindowHours = getEnvIntOrDefault("FILTER_DEDUP_WINDOW_HOURS", cfg.FilterConfig.DedupWindowHours)

	// Risk config
	cfg.RiskConfig.Leverage = getEnvFloatOrDefault("RISK_LEVERAGE", cfg.RiskConfig.Leverage)
	cfg.RiskConfig.MinNotional = getEnvFloatOrDefault("RISK_MIN_NOTIONAL", cfg.RiskConfig.MinNotional)
	cfg.RiskConfig.QuantityStep = getEnvFloatOrDefault("RISK_QUANTITY_STEP", cfg.RiskConfig.QuantityStep)
	cfg.RiskConfig.MaxOpenPositions = getEnvIntOrDefault("RISK_MAX_OPEN_POSITIONS", cfg.RiskConfig.MaxOpenPositions)
	cfg.RiskConfig.MaxDailyDrawdown = getEnvFloatOrDefault("RISK_MAX_DAILY_DRAWDOWN", cfg.RiskConfig.MaxDailyDrawdown)

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvBoolOrDefault("NOTIFICATIONS_ENABLED", cfg.NotificationConfig.Enabled)
	cfg.NotificationConfig.Telegram.Enabled = getEnvBoolOrDefault("TELEGRAM_ENABLED", cfg.NotificationConfig.Telegram.Enabled)
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvBoolOrDefault("DISCORD_ENABLED", cfg.NotificationConfig.Discord.Enabled)
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DATABASE_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.URL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseConfig.URL)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Server config
	cfg.ServerConfig.Enabled = getEnvBoolOrDefault("WEB_ENABLED", cfg.ServerConfig.Enabled)
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("WEB_PRODUCTION_MODE", cfg.ServerConfig.ProductionMode)
	cfg.ServerConfig.AllowedOrigins = getEnvListOrDefault("WEB_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
}

// ScanInterval returns the scan interval as a duration
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScannerConfig.ScanInterval) * time.Second
}

// CacheTTL returns the candle cache TTL as a duration
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.ScannerConfig.CacheTTL) * time.Second
}

// DedupWindow returns the duplicate-suppression window as a duration
func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.FilterConfig.DedupWindowHours) * time.Hour
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := defaults()
	if err := json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
