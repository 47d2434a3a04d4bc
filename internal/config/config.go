package config

import (
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"` // Listen address, e.g. ":8080"
}

// LotteryConfig is the deployment configuration of the lottery.
type LotteryConfig struct {
	Owner           string        `mapstructure:"owner" yaml:"owner"`                         // Hex address of the owner. Empty means dev account 0.
	USDEntryFee     string        `mapstructure:"usd_entry_fee" yaml:"usd_entry_fee"`         // Entrance fee in USD, e.g. "50"
	PriceStaleAfter time.Duration `mapstructure:"price_stale_after" yaml:"price_stale_after"` // Reject price answers older than this. 0 disables.
}

// PriceFeedConfig configures the local USD price aggregator.
type PriceFeedConfig struct {
	Decimals      uint8  `mapstructure:"decimals" yaml:"decimals"`
	InitialAnswer string `mapstructure:"initial_answer" yaml:"initial_answer"` // Raw answer with Decimals decimals
}

// VRFConfig configures the randomness coordinator.
type VRFConfig struct {
	KeyHash         string        `mapstructure:"key_hash" yaml:"key_hash"`
	Fee             string        `mapstructure:"fee" yaml:"fee"`                   // LINK per request, smallest unit
	AutoFulfill     bool          `mapstructure:"auto_fulfill" yaml:"auto_fulfill"` // Answer pending requests from a local random source
	FulfillInterval time.Duration `mapstructure:"fulfill_interval" yaml:"fulfill_interval"`
	StuckAfter      time.Duration `mapstructure:"stuck_after" yaml:"stuck_after"` // Report requests pending longer than this
}

// AccountsConfig configures the funded development accounts.
type AccountsConfig struct {
	Count        int    `mapstructure:"count" yaml:"count"`
	BalanceEther string `mapstructure:"balance_ether" yaml:"balance_ether"`
}

// LinkConfig configures LINK funding of the lottery.
type LinkConfig struct {
	FundAmount string `mapstructure:"fund_amount" yaml:"fund_amount"` // LINK minted to the lottery at deploy, smallest unit
}

// Config wraps the entire configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Lottery   LotteryConfig   `mapstructure:"lottery" yaml:"lottery"`
	PriceFeed PriceFeedConfig `mapstructure:"price_feed" yaml:"price_feed"`
	VRF       VRFConfig       `mapstructure:"vrf" yaml:"vrf"`
	Accounts  AccountsConfig  `mapstructure:"accounts" yaml:"accounts"`
	Link      LinkConfig      `mapstructure:"link" yaml:"link"`
}

var (
	defaults = map[string]any{
		"server.addr":               ":8080",
		"lottery.usd_entry_fee":     "50",
		"lottery.price_stale_after": "0s",
		"price_feed.decimals":       8,
		"price_feed.initial_answer": "200000000000",
		"vrf.key_hash":              "0x2ed0feb3e7fd2022120aa84fab1945545a9f2ffc9076fd6156fa96eaff4c1311",
		"vrf.fee":                   "100000000000000000",
		"vrf.auto_fulfill":          false,
		"vrf.fulfill_interval":      "2s",
		"vrf.stuck_after":           "10m",
		"accounts.count":            10,
		"accounts.balance_ether":    "100",
		"link.fund_amount":          "0",
	}

	// envBindings maps config keys to the environment variables that can set them.
	envBindings = map[string][]string{
		"server.addr":               {"LOTTERY_SERVER_ADDR"},
		"lottery.owner":             {"LOTTERY_OWNER"},
		"lottery.usd_entry_fee":     {"LOTTERY_USD_ENTRY_FEE"},
		"lottery.price_stale_after": {"LOTTERY_PRICE_STALE_AFTER"},
		"price_feed.decimals":       {"LOTTERY_PRICE_FEED_DECIMALS"},
		"price_feed.initial_answer": {"LOTTERY_PRICE_FEED_INITIAL_ANSWER"},
		"vrf.key_hash":              {"LOTTERY_VRF_KEY_HASH"},
		"vrf.fee":                   {"LOTTERY_VRF_FEE"},
		"vrf.auto_fulfill":          {"LOTTERY_VRF_AUTO_FULFILL"},
		"vrf.fulfill_interval":      {"LOTTERY_VRF_FULFILL_INTERVAL"},
		"vrf.stuck_after":           {"LOTTERY_VRF_STUCK_AFTER"},
		"accounts.count":            {"LOTTERY_ACCOUNTS_COUNT"},
		"accounts.balance_ether":    {"LOTTERY_ACCOUNTS_BALANCE_ETHER"},
		"link.fund_amount":          {"LOTTERY_LINK_FUND_AMOUNT"},
	}
)

// Load loads the config from the file path, falling back to defaults and env vars if
// the file does not exist. Env vars that are set override values loaded from the file.
func Load(filePath string) (*Config, error) {
	v := newViper()

	if filePath != "" {
		v.SetConfigFile(filePath)
		if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
			if err := v.ReadInConfig(); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail at run time. Amounts and
// addresses are parsed, and checked, at deploy.
func (c *Config) Validate() error {
	switch {
	case c.VRF.AutoFulfill && c.VRF.FulfillInterval <= 0:
		return errors.Errorf("vrf.fulfill_interval must be positive when auto_fulfill is on, got %s", c.VRF.FulfillInterval)
	case c.VRF.StuckAfter < 0:
		return errors.Errorf("vrf.stuck_after must not be negative, got %s", c.VRF.StuckAfter)
	case c.Lottery.PriceStaleAfter < 0:
		return errors.Errorf("lottery.price_stale_after must not be negative, got %s", c.Lottery.PriceStaleAfter)
	case c.Accounts.Count < 0:
		return errors.Errorf("accounts.count must not be negative, got %d", c.Accounts.Count)
	}
	return nil
}

// Default returns the configuration with only defaults and env vars applied.
func Default() (*Config, error) {
	return Load("")
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, envs := range envBindings {
		// BindEnv only fails when called without a key
		_ = v.BindEnv(slices.Insert(envs, 0, key)...)
	}
	return v
}
