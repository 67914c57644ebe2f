package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"transfer-sniper/internal/antiban"
	"transfer-sniper/internal/market"
	"transfer-sniper/internal/pricing"
	"transfer-sniper/internal/scheduler"
	"transfer-sniper/internal/sniper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	AntiBan   AntiBanConfig   `yaml:"anti_ban"`
	Market    MarketConfig    `yaml:"market"`
	Sniper    SniperConfig    `yaml:"sniper"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Accounts  []AccountConfig `yaml:"accounts"`
	Logging   LoggingConfig   `yaml:"logging"`
	Timezone  string          `yaml:"timezone"`
}

// ServerConfig contains admin API settings
type ServerConfig struct {
	Port         int      `yaml:"port"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	MySQL MySQLConfig `yaml:"mysql"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// AntiBanConfig contains the request governance limits
type AntiBanConfig struct {
	SearchDelayMinMs   int `yaml:"search_delay_min_ms"`
	SearchDelayMaxMs   int `yaml:"search_delay_max_ms"`
	PurchaseDelayMinMs int `yaml:"purchase_delay_min_ms"`
	PurchaseDelayMaxMs int `yaml:"purchase_delay_max_ms"`
	ActionDelayMinMs   int `yaml:"action_delay_min_ms"`
	ActionDelayMaxMs   int `yaml:"action_delay_max_ms"`

	MaxSearchesPerHour  int `yaml:"max_searches_per_hour"`
	MaxPurchasesPerHour int `yaml:"max_purchases_per_hour"`
	MaxRequestsPerHour  int `yaml:"max_requests_per_hour"`
	MaxRequestsPerDay   int `yaml:"max_requests_per_day"`

	SessionDurationMinutes      int `yaml:"session_duration_minutes"`
	PauseBetweenSessionsMinutes int `yaml:"pause_between_sessions_minutes"`

	PauseAfterSearches   int `yaml:"pause_after_searches"`
	CyclePauseMinSeconds int `yaml:"cycle_pause_min_seconds"`
	CyclePauseMaxSeconds int `yaml:"cycle_pause_max_seconds"`

	NightMode      *bool `yaml:"night_mode"`
	NightStartHour *int  `yaml:"night_start_hour"`
	NightEndHour   *int  `yaml:"night_end_hour"`

	MaxConsecutiveErrors int `yaml:"max_consecutive_errors"`
}

// MarketConfig contains marketplace HTTP settings
type MarketConfig struct {
	BaseURL               string `yaml:"base_url"`
	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	UserAgent             string `yaml:"user_agent"`
	RateLimitPauseMinutes int    `yaml:"rate_limit_pause_minutes"`
}

// SniperConfig contains per-account trading limits
type SniperConfig struct {
	MaxPurchases   int     `yaml:"max_purchases"`
	MaxActiveSales int     `yaml:"max_active_sales"`
	MinCoinReserve int     `yaml:"min_coin_reserve"`
	AutoSell       *bool   `yaml:"auto_sell"`
	SellMarkup     float64 `yaml:"sell_markup"`
	SellDuration   int     `yaml:"sell_duration"`
}

// SchedulerConfig contains maintenance job intervals
type SchedulerConfig struct {
	SettleIntervalMinutes    int    `yaml:"settle_interval_minutes"`
	KeepaliveIntervalMinutes int    `yaml:"keepalive_interval_minutes"`
	SummaryTime              string `yaml:"summary_time"`
}

// PricingConfig contains price-guide scraper settings
type PricingConfig struct {
	BaseURL             string `yaml:"base_url"`
	RequestDelaySeconds int    `yaml:"request_delay_seconds"`
	CacheTTLMinutes     int    `yaml:"cache_ttl_minutes"`
}

// AccountConfig is one trading account's captured session
type AccountConfig struct {
	Key      string            `yaml:"key"`
	Platform string            `yaml:"platform"`
	SID      string            `yaml:"sid"`
	Cookies  map[string]string `yaml:"cookies"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `yaml:"level"`
	LogVerdicts bool   `yaml:"log_verdicts"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			AllowOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			MySQL: MySQLConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "sniper",
				Database: "transfer_sniper",
			},
		},
		Market: MarketConfig{
			TimeoutSeconds:        30,
			RateLimitPauseMinutes: 1,
		},
		Sniper: SniperConfig{
			MaxPurchases:   100,
			MaxActiveSales: 50,
			MinCoinReserve: 10000,
			SellMarkup:     1.10,
			SellDuration:   market.DurationHour,
		},
		Scheduler: SchedulerConfig{
			SettleIntervalMinutes:    5,
			KeepaliveIntervalMinutes: 10,
			SummaryTime:              "08:00",
		},
		Pricing: PricingConfig{
			RequestDelaySeconds: 3,
			CacheTTLMinutes:     10,
		},
		Logging: LoggingConfig{
			Level:       "info",
			LogVerdicts: false,
		},
		Timezone: "Local",
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	// Read file
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ToPolicy converts the anti-ban section into a guard policy. Zero
// values keep the policy defaults so a sparse config stays safe.
func (c *AntiBanConfig) ToPolicy() antiban.Policy {
	p := antiban.DefaultPolicy()

	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	if c.SearchDelayMinMs > 0 || c.SearchDelayMaxMs > 0 {
		p.SearchDelay = antiban.DelayRange{Min: ms(c.SearchDelayMinMs), Max: ms(c.SearchDelayMaxMs)}
	}
	if c.PurchaseDelayMinMs > 0 || c.PurchaseDelayMaxMs > 0 {
		p.PurchaseDelay = antiban.DelayRange{Min: ms(c.PurchaseDelayMinMs), Max: ms(c.PurchaseDelayMaxMs)}
	}
	if c.ActionDelayMinMs > 0 || c.ActionDelayMaxMs > 0 {
		p.ActionDelay = antiban.DelayRange{Min: ms(c.ActionDelayMinMs), Max: ms(c.ActionDelayMaxMs)}
	}

	if c.MaxSearchesPerHour > 0 {
		p.MaxSearchesPerHour = c.MaxSearchesPerHour
	}
	if c.MaxPurchasesPerHour > 0 {
		p.MaxPurchasesPerHour = c.MaxPurchasesPerHour
	}
	if c.MaxRequestsPerHour > 0 {
		p.MaxRequestsPerHour = c.MaxRequestsPerHour
	}
	if c.MaxRequestsPerDay > 0 {
		p.MaxRequestsPerDay = c.MaxRequestsPerDay
	}

	if c.SessionDurationMinutes > 0 {
		p.SessionDuration = time.Duration(c.SessionDurationMinutes) * time.Minute
	}
	if c.PauseBetweenSessionsMinutes > 0 {
		p.PauseBetweenSessions = time.Duration(c.PauseBetweenSessionsMinutes) * time.Minute
	}

	if c.PauseAfterSearches > 0 {
		p.PauseAfterSearches = c.PauseAfterSearches
	}
	if c.CyclePauseMinSeconds > 0 || c.CyclePauseMaxSeconds > 0 {
		p.CyclePause = antiban.DelayRange{
			Min: time.Duration(c.CyclePauseMinSeconds) * time.Second,
			Max: time.Duration(c.CyclePauseMaxSeconds) * time.Second,
		}
	}

	if c.NightMode != nil {
		p.NightMode = *c.NightMode
	}
	if c.NightStartHour != nil {
		p.NightStartHour = *c.NightStartHour
	}
	if c.NightEndHour != nil {
		p.NightEndHour = *c.NightEndHour
	}

	if c.MaxConsecutiveErrors > 0 {
		p.MaxConsecutiveErrors = c.MaxConsecutiveErrors
	}

	return p
}

// ToClientConfig converts the market section into HTTP client settings
func (c *MarketConfig) ToClientConfig() market.ClientConfig {
	cfg := market.DefaultClientConfig()
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	if c.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(c.TimeoutSeconds) * time.Second
	}
	if c.UserAgent != "" {
		cfg.UserAgent = c.UserAgent
	}
	if c.RateLimitPauseMinutes > 0 {
		cfg.RateLimitPause = time.Duration(c.RateLimitPauseMinutes) * time.Minute
	}
	return cfg
}

// ToSniperConfig converts the sniper section into loop settings
func (c *SniperConfig) ToSniperConfig() sniper.Config {
	cfg := sniper.DefaultConfig()
	if c.MaxPurchases > 0 {
		cfg.MaxPurchases = c.MaxPurchases
	}
	if c.MaxActiveSales > 0 {
		cfg.MaxActiveSales = c.MaxActiveSales
	}
	if c.MinCoinReserve > 0 {
		cfg.MinCoinReserve = c.MinCoinReserve
	}
	if c.AutoSell != nil {
		cfg.AutoSell = *c.AutoSell
	}
	if c.SellMarkup > 0 {
		cfg.SellMarkup = c.SellMarkup
	}
	if c.SellDuration > 0 {
		cfg.SellDuration = c.SellDuration
	}
	return cfg
}

// ToSchedulerConfig converts the scheduler section into job intervals
func (c *SchedulerConfig) ToSchedulerConfig() scheduler.Config {
	cfg := scheduler.DefaultConfig()
	if c.SettleIntervalMinutes > 0 {
		cfg.SettleInterval = time.Duration(c.SettleIntervalMinutes) * time.Minute
	}
	if c.KeepaliveIntervalMinutes > 0 {
		cfg.KeepaliveInterval = time.Duration(c.KeepaliveIntervalMinutes) * time.Minute
	}
	if c.SummaryTime != "" {
		cfg.SummaryTime = c.SummaryTime
	}
	return cfg
}

// ToGuideConfig converts the pricing section into guide settings
func (c *PricingConfig) ToGuideConfig() pricing.GuideConfig {
	cfg := pricing.DefaultGuideConfig()
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	if c.RequestDelaySeconds > 0 {
		cfg.RequestDelay = time.Duration(c.RequestDelaySeconds) * time.Second
	}
	if c.CacheTTLMinutes > 0 {
		cfg.CacheTTL = time.Duration(c.CacheTTLMinutes) * time.Minute
	}
	return cfg
}
