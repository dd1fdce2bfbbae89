package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// StorefrontConfig carries the operator-editable checkout settings.
type StorefrontConfig struct {
	Title                string   `mapstructure:"title"`
	StatementDescriptor  string   `mapstructure:"statementDescriptor"`
	Currency             string   `mapstructure:"currency"`
	MinimumAmount        string   `mapstructure:"minimumAmount"`
	PixMinimumAmount     string   `mapstructure:"pixMinimumAmount"`
	DefaultCategory      string   `mapstructure:"defaultCategory"`
	DefaultPaymentMethod string   `mapstructure:"defaultPaymentMethod"`
	ExcludedPaymentTypes []string `mapstructure:"excludedPaymentTypes"`
}

func DefaultStorefrontConfig() StorefrontConfig {
	return StorefrontConfig{
		Title:                "Banca",
		StatementDescriptor:  "BANCA",
		Currency:             "BRL",
		MinimumAmount:        "0.01",
		PixMinimumAmount:     "1.00",
		DefaultCategory:      "Outros",
		DefaultPaymentMethod: "Mercado Pago",
		ExcludedPaymentTypes: []string{"credit_card", "debit_card", "ticket", "atm", "account_money", "digital_currency"},
	}
}

// MinimumAmountDecimal is the smallest order total accepted for checkout.
func (c StorefrontConfig) MinimumAmountDecimal() decimal.Decimal {
	return parseAmount(c.MinimumAmount, "0.01")
}

// PixMinimumAmountDecimal is the floor applied to PIX charges.
func (c StorefrontConfig) PixMinimumAmountDecimal() decimal.Decimal {
	return parseAmount(c.PixMinimumAmount, "1.00")
}

func parseAmount(raw, fallback string) decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.RequireFromString(fallback)
	}
	return value
}

type StorefrontConfigHolder struct {
	current atomic.Value // holds StorefrontConfig
}

// NewStaticStorefrontConfigHolder returns a holder that never reloads.
func NewStaticStorefrontConfigHolder(cfg StorefrontConfig) *StorefrontConfigHolder {
	holder := &StorefrontConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewStorefrontConfigHolder(log *zap.Logger) (*StorefrontConfigHolder, error) {
	log = log.Named("config.storefront")
	v := viper.New()

	v.SetConfigName("storefront")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/banca")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BANCA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultStorefrontConfig()
	v.SetDefault("storefront.title", defaults.Title)
	v.SetDefault("storefront.statementDescriptor", defaults.StatementDescriptor)
	v.SetDefault("storefront.currency", defaults.Currency)
	v.SetDefault("storefront.minimumAmount", defaults.MinimumAmount)
	v.SetDefault("storefront.pixMinimumAmount", defaults.PixMinimumAmount)
	v.SetDefault("storefront.defaultCategory", defaults.DefaultCategory)
	v.SetDefault("storefront.defaultPaymentMethod", defaults.DefaultPaymentMethod)
	v.SetDefault("storefront.excludedPaymentTypes", defaults.ExcludedPaymentTypes)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg StorefrontConfig
	if err := v.UnmarshalKey("storefront", &cfg); err != nil {
		return nil, err
	}
	if err := validateStorefrontConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticStorefrontConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated StorefrontConfig
		if err := v.UnmarshalKey("storefront", &updated); err != nil {
			log.Warn("storefront config reload failed", zap.Error(err))
			return
		}
		if err := validateStorefrontConfig(updated); err != nil {
			log.Warn("invalid storefront config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("storefront config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *StorefrontConfigHolder) Get() StorefrontConfig {
	return h.current.Load().(StorefrontConfig)
}

func validateStorefrontConfig(cfg StorefrontConfig) error {
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("storefront.currency cannot be empty")
	}
	for _, raw := range []string{cfg.MinimumAmount, cfg.PixMinimumAmount} {
		amount, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return errors.New("storefront amounts must be decimal strings")
		}
		if amount.IsNegative() {
			return errors.New("storefront amounts cannot be negative")
		}
	}
	return nil
}
