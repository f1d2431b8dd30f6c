// Package config loads recorder settings from YAML, .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfig is returned for missing or invalid configuration.
var ErrConfig = errors.New("config error")

// Journal backends.
const (
	JournalNone       = "none"
	JournalMemory     = "memory"
	JournalPostgres   = "postgres"
	JournalClickhouse = "clickhouse"
)

type Config struct {
	Symbol    SymbolConfig    `yaml:"symbol"`
	Asset     AssetConfig     `yaml:"asset"`
	CoinGecko CoinGeckoConfig `yaml:"coingecko"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Journal   JournalConfig   `yaml:"journal"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type SymbolConfig struct {
	Network           string        `yaml:"network"`
	PrivateKey        string        `yaml:"private_key"`
	NodeURL           string        `yaml:"node_url"`
	FeeMultiplier     uint64        `yaml:"fee_multiplier"`
	Deadline          time.Duration `yaml:"deadline"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	AwaitConfirmation bool          `yaml:"await_confirmation"`
	ConfirmTimeout    time.Duration `yaml:"confirm_timeout"`
}

type AssetConfig struct {
	ID int `yaml:"id"`
}

type CoinGeckoConfig struct {
	BaseURL    string        `yaml:"base_url"`
	CoinID     string        `yaml:"coin_id"`
	VsCurrency string        `yaml:"vs_currency"`
	APIKey     string        `yaml:"api_key"`
	Pro        bool          `yaml:"pro"`
	Timeout    time.Duration `yaml:"timeout"`
}

type ScheduleConfig struct {
	Timezone       string        `yaml:"timezone"`
	SaveInterval   time.Duration `yaml:"save_interval"`
	DeleteInterval time.Duration `yaml:"delete_interval"`
	DeleteDays     int           `yaml:"delete_days"`
}

type JournalConfig struct {
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// Default returns the configuration used when nothing overrides it.
// Network, private key, node URL and coin id have no default.
func Default() Config {
	return Config{
		Symbol: SymbolConfig{
			FeeMultiplier:  100,
			Deadline:       2 * time.Hour,
			RequestTimeout: 30 * time.Second,
			ConfirmTimeout: 3 * time.Minute,
		},
		Asset: AssetConfig{ID: 1},
		CoinGecko: CoinGeckoConfig{
			BaseURL:    "https://api.coingecko.com/api/v3",
			VsCurrency: "jpy",
			Timeout:    30 * time.Second,
		},
		Schedule: ScheduleConfig{
			Timezone:       "Asia/Tokyo",
			SaveInterval:   30 * time.Second,
			DeleteInterval: time.Second,
			DeleteDays:     3,
		},
		Journal: JournalConfig{Backend: JournalNone},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Metrics: MetricsConfig{Job: "symbol_price_recorder"},
	}
}

// LoadDotEnv loads variables from .env files that exist; missing files are skipped.
// Variables already set in the environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("%w: load %s: %v", ErrConfig, f, err)
		}
	}
	return nil
}

// Load reads path (optional), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without Validate, for commands that never sign or fetch.
func Read(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read config file: %v", ErrConfig, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config file: %v", ErrConfig, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Symbol.Network, "SYMBOL_NETWORK")
	setString(&cfg.Symbol.PrivateKey, "SYMBOL_PRIVATE_KEY")
	setString(&cfg.Symbol.NodeURL, "SYMBOL_NODE_URL")
	setString(&cfg.CoinGecko.CoinID, "COINGECKO_COIN_ID")
	setString(&cfg.CoinGecko.VsCurrency, "COINGECKO_VS_CURRENCY")
	setString(&cfg.CoinGecko.APIKey, "COINGECKO_API_KEY")
	setString(&cfg.Schedule.Timezone, "TIMEZONE")
	setString(&cfg.Journal.Backend, "JOURNAL_BACKEND")
	setString(&cfg.Journal.DSN, "JOURNAL_DSN")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Metrics.PushgatewayURL, "PUSHGATEWAY_URL")

	if v, ok := lookupEnv("ASSET_ID"); ok {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: ASSET_ID %q is not an integer", ErrConfig, v)
		}
		cfg.Asset.ID = id
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := lookupEnv(key); ok {
		*dst = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

var privateKeyRegexp = regexp.MustCompile(`^[0-9A-Fa-f]{64}$`)

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Symbol.Network) {
	case "mainnet", "testnet":
	case "":
		return fmt.Errorf("%w: symbol.network (SYMBOL_NETWORK) is required", ErrConfig)
	default:
		return fmt.Errorf("%w: symbol.network %q must be mainnet or testnet", ErrConfig, c.Symbol.Network)
	}

	if c.Symbol.PrivateKey == "" {
		return fmt.Errorf("%w: symbol.private_key (SYMBOL_PRIVATE_KEY) is required", ErrConfig)
	}
	if !privateKeyRegexp.MatchString(c.Symbol.PrivateKey) {
		return fmt.Errorf("%w: symbol.private_key must be 64 hex characters", ErrConfig)
	}

	if c.Symbol.NodeURL == "" {
		return fmt.Errorf("%w: symbol.node_url (SYMBOL_NODE_URL) is required", ErrConfig)
	}
	if err := validateHTTPURL(c.Symbol.NodeURL); err != nil {
		return fmt.Errorf("%w: symbol.node_url: %v", ErrConfig, err)
	}
	if c.Symbol.FeeMultiplier == 0 {
		return fmt.Errorf("%w: symbol.fee_multiplier must be greater than 0", ErrConfig)
	}
	if c.Symbol.AwaitConfirmation && c.Symbol.ConfirmTimeout <= 0 {
		return fmt.Errorf("%w: symbol.confirm_timeout must be greater than 0", ErrConfig)
	}

	if c.Asset.ID < 0 || c.Asset.ID > 999_999 {
		return fmt.Errorf("%w: asset.id %d must be in [0, 999999]", ErrConfig, c.Asset.ID)
	}

	if c.CoinGecko.CoinID == "" {
		return fmt.Errorf("%w: coingecko.coin_id (COINGECKO_COIN_ID) is required", ErrConfig)
	}
	if err := validateHTTPURL(c.CoinGecko.BaseURL); err != nil {
		return fmt.Errorf("%w: coingecko.base_url: %v", ErrConfig, err)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Schedule.SaveInterval < 0 || c.Schedule.DeleteInterval < 0 {
		return fmt.Errorf("%w: schedule intervals must not be negative", ErrConfig)
	}
	if c.Schedule.DeleteDays <= 0 {
		return fmt.Errorf("%w: schedule.delete_days must be greater than 0", ErrConfig)
	}

	switch c.Journal.Backend {
	case "", JournalNone, JournalMemory:
	case JournalPostgres, JournalClickhouse:
		if c.Journal.DSN == "" {
			return fmt.Errorf("%w: journal.dsn (JOURNAL_DSN) is required for %s", ErrConfig, c.Journal.Backend)
		}
	default:
		return fmt.Errorf("%w: journal.backend %q is not supported", ErrConfig, c.Journal.Backend)
	}

	if c.Metrics.PushgatewayURL != "" {
		if err := validateHTTPURL(c.Metrics.PushgatewayURL); err != nil {
			return fmt.Errorf("%w: metrics.pushgateway_url: %v", ErrConfig, err)
		}
	}

	return nil
}

// Location returns the timezone days are counted in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule.timezone %q: %v", ErrConfig, c.Schedule.Timezone, err)
	}
	return loc, nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
