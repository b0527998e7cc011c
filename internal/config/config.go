package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const maxPageSize = 500

type Config struct {
	AlpacaKeyID     string
	AlpacaSecretKey string
	AlpacaEnv       string // "paper" or "live"
	AlpacaBaseURL   string // overrides the env-derived REST URL when set
	LookbackDays    int    // default 7
	PageSize        int    // default 500
	DBPath          string // default "data/tradelog.db"
	AuditDir        string // empty disables the audit log
	Ledgers         []LedgerTarget
}

// LedgerTarget is one CSV ledger file and the column projection it carries.
type LedgerTarget struct {
	Path    string `yaml:"path"`
	Variant string `yaml:"variant"` // "detailed" or "public"
}

type ledgerFile struct {
	Ledgers []LedgerTarget `yaml:"ledgers"`
}

func (c *Config) BaseURL() string {
	if c.AlpacaBaseURL != "" {
		return c.AlpacaBaseURL
	}
	if c.AlpacaEnv == "live" {
		return "https://api.alpaca.markets"
	}
	return "https://paper-api.alpaca.markets"
}

func (c *Config) StreamURL() string {
	if c.AlpacaEnv == "live" {
		return "wss://api.alpaca.markets/stream"
	}
	return "wss://paper-api.alpaca.markets/stream"
}

// Load reads the environment (and .env) and validates everything, broker
// credentials included.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLocal is Load for commands that only read local files and never talk to
// the broker.
func LoadLocal() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateLocal(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AlpacaKeyID:     os.Getenv("APCA_API_KEY_ID"),
		AlpacaSecretKey: os.Getenv("APCA_API_SECRET_KEY"),
		AlpacaEnv:       getEnvDefault("ALPACA_ENV", "paper"),
		AlpacaBaseURL:   os.Getenv("APCA_API_BASE_URL"),
		DBPath:          getEnvDefault("TRADELOG_DB", "data/tradelog.db"),
		AuditDir:        os.Getenv("AUDIT_DIR"),
	}

	var err error
	if cfg.LookbackDays, err = getEnvInt("LOOKBACK_DAYS", 7); err != nil {
		return nil, err
	}
	if cfg.PageSize, err = getEnvInt("PAGE_SIZE", maxPageSize); err != nil {
		return nil, err
	}

	if path := os.Getenv("LEDGER_CONFIG"); path != "" {
		if cfg.Ledgers, err = LoadLedgers(path); err != nil {
			return nil, err
		}
	} else {
		cfg.Ledgers = []LedgerTarget{
			{Path: getEnvDefault("TRADES_CSV", "data/trades.csv"), Variant: "detailed"},
			{Path: getEnvDefault("PUBLIC_TRADES_CSV", "data/public_trades.csv"), Variant: "public"},
		}
	}
	return cfg, nil
}

// Validate checks everything Load reads; credentials are required for any
// command that talks to the broker.
func (c *Config) Validate() error {
	if c.AlpacaKeyID == "" {
		return fmt.Errorf("APCA_API_KEY_ID is required")
	}
	if c.AlpacaSecretKey == "" {
		return fmt.Errorf("APCA_API_SECRET_KEY is required")
	}
	return c.validateLocal()
}

func (c *Config) validateLocal() error {
	if c.AlpacaEnv != "paper" && c.AlpacaEnv != "live" {
		return fmt.Errorf("ALPACA_ENV must be 'paper' or 'live', got %q", c.AlpacaEnv)
	}
	if c.LookbackDays < 1 {
		return fmt.Errorf("LOOKBACK_DAYS must be positive, got %d", c.LookbackDays)
	}
	if c.PageSize < 1 || c.PageSize > maxPageSize {
		return fmt.Errorf("PAGE_SIZE must be between 1 and %d, got %d", maxPageSize, c.PageSize)
	}
	return validateLedgers(c.Ledgers)
}

// LoadLedgers reads a YAML file of the form
//
//	ledgers:
//	  - path: data/trades.csv
//	    variant: detailed
func LoadLedgers(path string) ([]LedgerTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ledger config: %w", err)
	}
	var lf ledgerFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse ledger config: %w", err)
	}
	if err := validateLedgers(lf.Ledgers); err != nil {
		return nil, fmt.Errorf("invalid ledger config: %w", err)
	}
	return lf.Ledgers, nil
}

func validateLedgers(ls []LedgerTarget) error {
	if len(ls) == 0 {
		return fmt.Errorf("at least one ledger is required")
	}
	seen := make(map[string]bool, len(ls))
	for _, l := range ls {
		if l.Path == "" {
			return fmt.Errorf("ledger path is required")
		}
		if l.Variant != "detailed" && l.Variant != "public" {
			return fmt.Errorf("ledger %s: variant must be 'detailed' or 'public', got %q", l.Path, l.Variant)
		}
		if seen[l.Path] {
			return fmt.Errorf("ledger %s listed twice", l.Path)
		}
		seen[l.Path] = true
	}
	return nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}
