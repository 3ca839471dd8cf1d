package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChapaConfig holds the Chapa provider credentials and endpoints.
type ChapaConfig struct {
	BaseURL        string `yaml:"base_url"`
	SecretKey      string `yaml:"secret_key"`
	WebhookSecret  string `yaml:"webhook_secret"`
	CallbackURL    string `yaml:"callback_url"`
	ReturnURL      string `yaml:"return_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	TestMode       bool   `yaml:"test_mode"`
}

// PricingConfig carries the externally configured totals inputs. Decimal
// values are strings so they are parsed with exact precision, never floats.
type PricingConfig struct {
	DefaultCurrency  string `yaml:"default_currency"`
	TaxRate          string `yaml:"tax_rate"`
	ShippingFlat     string `yaml:"shipping_flat"`
	FreeShippingOver string `yaml:"free_shipping_over"`
	CurrencyDecimals int32  `yaml:"currency_decimals"`
}

type Config struct {
	App struct {
		Env string `yaml:"env"`
	} `yaml:"app"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
	Kafka struct {
		BootstrapServers string `yaml:"bootstrap_servers"`
		Topic            string `yaml:"topic"`
	} `yaml:"kafka"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	Jaeger struct {
		Port string `yaml:"port"`
	} `yaml:"jaeger"`
	JWT struct {
		Secret string `yaml:"secret"`
	} `yaml:"jwt"`
	Catalog struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"catalog"`
	Chapa     ChapaConfig   `yaml:"chapa"`
	Pricing   PricingConfig `yaml:"pricing"`
	RateLimit struct {
		Requests      int `yaml:"requests"`
		WindowSeconds int `yaml:"window_seconds"`
	} `yaml:"rate_limit"`
}

// Load reads the YAML config, expanding environment variables in the raw
// file first so secrets can come from the environment.
func Load(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	expandedFile := os.ExpandEnv(string(file))

	if err := yaml.Unmarshal([]byte(expandedFile), config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}
