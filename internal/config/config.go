// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig       `yaml:"store" mapstructure:"store"`
	Server    ServerConfig      `yaml:"server" mapstructure:"server"`
	Log       LogConfig         `yaml:"log" mapstructure:"log"`
	FTP       FTPConfig         `yaml:"ftp" mapstructure:"ftp"`
	Scoring   ScoringConfig     `yaml:"scoring" mapstructure:"scoring"`
	Providers map[string]string `yaml:"providers" mapstructure:"providers"` // provider name -> format label
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port              int `yaml:"port" mapstructure:"port"`
	MaxUploadMB       int `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// FTPConfig configures provider rate sheet retrieval over FTP.
type FTPConfig struct {
	Host        string `yaml:"host" mapstructure:"host"`
	User        string `yaml:"user" mapstructure:"user"`
	Password    string `yaml:"password" mapstructure:"password"`
	Dir         string `yaml:"dir" mapstructure:"dir"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ScoringConfig holds the per-run scoring assumptions and weight mode. It is
// read once at startup and threaded through the pipeline as an immutable
// value; nothing mutates it after load.
type ScoringConfig struct {
	Mode            string  `yaml:"mode" mapstructure:"mode"`
	InsuranceWeight float64 `yaml:"insurance_weight" mapstructure:"insurance_weight"`

	// Assumptions.
	DefaultTermMonths      float64 `yaml:"default_term_months" mapstructure:"default_term_months"`
	DefaultAnnualMileage   float64 `yaml:"default_annual_mileage" mapstructure:"default_annual_mileage"`
	ReferenceAnnualMileage float64 `yaml:"reference_annual_mileage" mapstructure:"reference_annual_mileage"`
	PetrolPricePerLitre    float64 `yaml:"petrol_price_per_litre" mapstructure:"petrol_price_per_litre"`
	DieselPricePerLitre    float64 `yaml:"diesel_price_per_litre" mapstructure:"diesel_price_per_litre"`
	ElectricityPricePerKWh float64 `yaml:"electricity_price_per_kwh" mapstructure:"electricity_price_per_kwh"`
	FallbackEVCostPerMile  float64 `yaml:"fallback_ev_cost_per_mile" mapstructure:"fallback_ev_cost_per_mile"`

	// Result set capacities.
	TopDeals    int `yaml:"top_deals" mapstructure:"top_deals"`
	TopVehicles int `yaml:"top_vehicles" mapstructure:"top_vehicles"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RATESHEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ratesheet.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 256)
	v.SetDefault("server.requests_per_minute", 30)
	v.SetDefault("ftp.timeout_secs", 30)
	v.SetDefault("scoring.mode", "standard")
	v.SetDefault("scoring.insurance_weight", 0.0)
	v.SetDefault("scoring.default_term_months", 36)
	v.SetDefault("scoring.default_annual_mileage", 10000)
	v.SetDefault("scoring.reference_annual_mileage", 15000)
	v.SetDefault("scoring.petrol_price_per_litre", 1.45)
	v.SetDefault("scoring.diesel_price_per_litre", 1.53)
	v.SetDefault("scoring.electricity_price_per_kwh", 0.30)
	v.SetDefault("scoring.fallback_ev_cost_per_mile", 0.12)
	v.SetDefault("scoring.top_deals", 100)
	v.SetDefault("scoring.top_vehicles", 1000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// FormatFor returns the configured format label for a provider, or
// "generic" when the provider is unknown.
func (c *Config) FormatFor(provider string) string {
	if f, ok := c.Providers[strings.ToLower(strings.TrimSpace(provider))]; ok && f != "" {
		return f
	}
	return "generic"
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
