// Package config assembles the run configuration: CLI flags layered over
// environment variables and an optional YAML file.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/sklarsa/bitcoin-gains/internal/clock"
	"github.com/sklarsa/bitcoin-gains/internal/inventory"
)

// Config bundles every recognized option.
type Config struct {
	Method              string   `yaml:"method" envconfig:"METHOD"`
	TransferWindowHours int      `yaml:"transferWindowHours" envconfig:"TRANSFER_WINDOW_HOURS"`
	NoWash              bool     `yaml:"nowash" envconfig:"NOWASH"`
	BuyInSellMonth      bool     `yaml:"buyInSellMonth" envconfig:"BUY_IN_SELL_MONTH"`
	CostBasis           bool     `yaml:"costBasis" envconfig:"COST_BASIS"`
	EndDate             string   `yaml:"endDate" envconfig:"END_DATE"`
	NonInteractive      bool     `yaml:"nonInteractive" envconfig:"NON_INTERACTIVE"`
	ConsolidateBitcoind bool     `yaml:"consolidateBitcoind" envconfig:"CONSOLIDATE_BITCOIND"`
	ConsolidateCoinbase bool     `yaml:"consolidateCoinbase" envconfig:"CONSOLIDATE_COINBASE"`
	IgnoreOldCoinbase   string   `yaml:"ignoreOldCoinbase" envconfig:"IGNORE_OLD_COINBASE"`
	ListPurchases       bool     `yaml:"listPurchases" envconfig:"LIST_PURCHASES"`
	ListGifts           bool     `yaml:"listGifts" envconfig:"LIST_GIFTS"`
	AllowShort          []string `yaml:"allowShort" envconfig:"ALLOW_SHORT"`
	ClassifyPath        string   `yaml:"classifyPath" envconfig:"CLASSIFY_PATH"`
	FMVCacheDir         string   `yaml:"fmvCacheDir" envconfig:"FMV_CACHE_DIR"`
	Verbose             bool     `yaml:"verbose" envconfig:"VERBOSE"`

	// populated by Validate, not read directly from flags/env/yaml
	Policy        inventory.Policy `yaml:"-" ignored:"true"`
	EndTimestamp  *clock.Timestamp `yaml:"-" ignored:"true"`
	AllowShortSet map[string]bool  `yaml:"-" ignored:"true"`
}

// defaults is the base layer: a single struct literal of defaults,
// overlaid by YAML then environment.
func defaults() *Config {
	return &Config{
		Method:              "fifo",
		TransferWindowHours: 24,
		IgnoreOldCoinbase:   "auto",
		ClassifyPath:        "classifications.json",
		FMVCacheDir:         "./.fmv-cache",
	}
}

// RegisterFlags binds fs to cfg's fields, so CLI flags are the final,
// highest-priority override on top of YAML and environment.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Method, "method", c.Method, "lot selection policy: fifo, lifo, oldest, newest")
	fs.IntVar(&c.TransferWindowHours, "transfer-window-hours", c.TransferWindowHours, "max |delta t| in hours for amount-based transfer matching")
	fs.BoolVar(&c.NoWash, "nowash", c.NoWash, "disable wash-sale processing")
	fs.BoolVar(&c.BuyInSellMonth, "buy-in-sell-month", c.BuyInSellMonth, "report cost basis in the disposal month")
	fs.BoolVar(&c.CostBasis, "cost-basis", c.CostBasis, "switch report columns to a cost-basis-oriented layout")
	fs.StringVar(&c.EndDate, "end-date", c.EndDate, "stop replay strictly after this date (YYYY-MM-DD)")
	fs.BoolVar(&c.NonInteractive, "non-interactive", c.NonInteractive, "never prompt; never persist new classifications")
	fs.BoolVar(&c.ConsolidateBitcoind, "consolidate-bitcoind", c.ConsolidateBitcoind, "treat all bitcoind sub-accounts as one")
	fs.BoolVar(&c.ConsolidateCoinbase, "consolidate-coinbase", c.ConsolidateCoinbase, "treat all Coinbase sub-accounts as one")
	fs.StringVar(&c.IgnoreOldCoinbase, "ignore-old-coinbase", c.IgnoreOldCoinbase, "auto, true, or false")
	fs.BoolVar(&c.ListPurchases, "list-purchases", c.ListPurchases, "print the list-purchases report section")
	fs.BoolVar(&c.ListGifts, "list-gifts", c.ListGifts, "print the list-gifts report section")
	fs.StringVar(&c.ClassifyPath, "classify-path", c.ClassifyPath, "path to the external classification JSON store")
	fs.StringVar(&c.FMVCacheDir, "fmv-cache-dir", c.FMVCacheDir, "directory for the on-disk FMV oracle cache")
	fs.BoolVar(&c.Verbose, "v", c.Verbose, "turns on debug logging")
}

// Load builds a Config from defaults, an optional YAML file, and the
// environment, in that order. Callers then bind a flag.FlagSet via
// RegisterFlags so CLI flags win last.
func Load(yamlPath string) (*Config, error) {
	cfg := defaults()

	if yamlPath != "" {
		buf, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", yamlPath, err)
		}
	}

	if err := envconfig.Process("btctax", cfg); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}

	return cfg, nil
}

// Validate checks field values, derives the lot-selection Policy and parsed
// EndTimestamp, and builds the AllowShortSet lookup map engine.Config
// consumes.
func (c *Config) Validate() error {
	policy := inventory.Policy(c.Method)
	if !policy.Valid() {
		return fmt.Errorf("config: unrecognized method %q", c.Method)
	}
	c.Policy = policy

	switch c.IgnoreOldCoinbase {
	case "auto", "true", "false":
	default:
		return fmt.Errorf("config: ignore-old-coinbase must be auto, true, or false, got %q", c.IgnoreOldCoinbase)
	}

	if c.EndDate != "" {
		t, err := time.Parse("2006-01-02", c.EndDate)
		if err != nil {
			return fmt.Errorf("config: invalid end-date %q: %w", c.EndDate, err)
		}
		// The end date itself is included: replay stops after its last second.
		ts := clock.New(t.Add(24*time.Hour - time.Second))
		c.EndTimestamp = &ts
	}

	c.AllowShortSet = make(map[string]bool, len(c.AllowShort))
	for _, account := range c.AllowShort {
		c.AllowShortSet[account] = true
	}

	return nil
}
