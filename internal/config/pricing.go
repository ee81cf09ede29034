package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BaseUnitsPerToken is the fixed-point scale for token amounts (6 decimals,
// USDC-style). All persisted amounts are int64 base units.
const BaseUnitsPerToken int64 = 1_000_000

// TierPricing describes one subscription tier. A zero limit means unlimited.
type TierPricing struct {
	Tier           string `mapstructure:"tier"`
	PriceTokens    int64  `mapstructure:"priceTokens"`
	DeployLimit    int64  `mapstructure:"deployLimit"`
	BandwidthLimit int64  `mapstructure:"bandwidthLimit"`
}

type PaymentPricing struct {
	MinimumPaymentTokens    int64 `mapstructure:"minimumPaymentTokens"`
	UnitRateUnits           int64 `mapstructure:"unitRateUnits"`
	AutoSwapThresholdTokens int64 `mapstructure:"autoSwapThresholdTokens"`
	SwapFeePpm              int64 `mapstructure:"swapFeePpm"`
	SwapRate                int64 `mapstructure:"swapRate"`
}

type PricingConfig struct {
	Tiers    []TierPricing  `mapstructure:"tiers"`
	Payments PaymentPricing `mapstructure:"payments"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		Tiers: []TierPricing{
			{Tier: "free", PriceTokens: 0, DeployLimit: 3, BandwidthLimit: 100},
			{Tier: "starter", PriceTokens: 10, DeployLimit: 10, BandwidthLimit: 1000},
			{Tier: "growth", PriceTokens: 50, DeployLimit: 100, BandwidthLimit: 10000},
			{Tier: "enterprise", PriceTokens: 200, DeployLimit: 0, BandwidthLimit: 0},
		},
		Payments: PaymentPricing{
			MinimumPaymentTokens:    5,
			UnitRateUnits:           10_000,
			AutoSwapThresholdTokens: 100,
			SwapFeePpm:              3_000,
			SwapRate:                100,
		},
	}
}

// PricingHolder keeps the active pricing table and hot-reloads it when the
// mounted pricing file changes. Invalid updates are ignored.
type PricingHolder struct {
	current atomic.Value // holds PricingConfig
}

func NewPricingHolder() (*PricingHolder, error) {
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/shiplet/config")
	v.AddConfigPath("/etc/shiplet")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SHIPLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &PricingHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultPricingConfig())
		return holder, nil
	}

	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return nil, err
	}
	if err := validatePricingConfig(cfg); err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingConfig
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Printf("[pricing-config] reload failed: %v", err)
			return
		}
		if err := validatePricingConfig(updated); err != nil {
			log.Printf("[pricing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pricing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPricingHolder wraps a fixed pricing table, for tests.
func NewStaticPricingHolder(cfg PricingConfig) *PricingHolder {
	holder := &PricingHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PricingHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

func validatePricingConfig(cfg PricingConfig) error {
	if len(cfg.Tiers) == 0 {
		return errors.New("pricing.tiers cannot be empty")
	}
	if cfg.Payments.MinimumPaymentTokens <= 0 {
		return errors.New("pricing.payments.minimumPaymentTokens must be positive")
	}
	if cfg.Payments.SwapRate <= 0 {
		return errors.New("pricing.payments.swapRate must be positive")
	}
	return nil
}
