package config

import (
	"fmt"
	"strings"

	"github.com/fitaria/scale-api/internal/codec"
	"github.com/spf13/viper"
)

const (
	envPrefix           = "ARIA"
	defaultHTTPAddress  = ":80"
	defaultDatabaseURL  = "scale-api.db"
	defaultWeightUnit   = "kg"
	defaultLogLevel     = "info"
)

// AppConfig captures runtime configuration for the scale server.
type AppConfig struct {
	HTTPAddress string
	DatabaseURL string
	WeightUnit  codec.WeightUnit
	LogLevel    string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided
// viper instance. The spec's environment options (DATABASE_URL,
// WEIGHT_UNIT, LOG_LEVEL) are recognized bare, in addition to the
// ARIA-prefixed form the rest of the config surface uses.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	_ = configViper.BindEnv("http.address", "ARIA_HTTP_ADDRESS", "HTTP_ADDRESS")
	_ = configViper.BindEnv("database.url", "ARIA_DATABASE_URL", "DATABASE_URL")
	_ = configViper.BindEnv("weight.unit", "ARIA_WEIGHT_UNIT", "WEIGHT_UNIT")
	_ = configViper.BindEnv("log.level", "ARIA_LOG_LEVEL", "LOG_LEVEL")

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.url", defaultDatabaseURL)
	configViper.SetDefault("weight.unit", defaultWeightUnit)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	weightUnit, err := codec.ParseWeightUnit(configViper.GetString("weight.unit"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("weight.unit: %w", err)
	}

	cfg := AppConfig{
		HTTPAddress: configViper.GetString("http.address"),
		DatabaseURL: configViper.GetString("database.url"),
		WeightUnit:  weightUnit,
		LogLevel:    configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("database.url is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "info", "warning", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warning, error")
	}
	return nil
}
