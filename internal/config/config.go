package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/awaistahir/smart-tariff/internal/engine"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the application configuration read from file and SMARTTARIFF_* environment variables
type Config struct {
	DBPath   string        `mapstructure:"db_path"`
	Port     int           `mapstructure:"port"`
	LogLevel string        `mapstructure:"log_level"`
	TimeZone string        `mapstructure:"timezone"`
	Defaults Defaults      `mapstructure:"defaults"`
	Octopus  OctopusConfig `mapstructure:"octopus"`
	Glow     GlowConfig    `mapstructure:"glow"`
}

// Defaults seed the settings the first time the database is initialised
type Defaults struct {
	StandardRate            float64        `mapstructure:"standard_rate"`
	StandingCharge          float64        `mapstructure:"standing_charge"`
	RatePeriods             []PeriodConfig `mapstructure:"rate_periods"`
	BatteryCapacityKWh      float64        `mapstructure:"battery_capacity_kwh"`
	MaxChargeRateKW         float64        `mapstructure:"max_charge_rate_kw"`
	MaxDischargeRateKW      float64        `mapstructure:"max_discharge_rate_kw"`
	EfficiencyPercent       float64        `mapstructure:"efficiency_percent"`
	StandardRateBatteryMode string         `mapstructure:"standard_rate_battery_mode"`
}

type OctopusConfig struct {
	APIKey string `mapstructure:"api_key"`
	MPAN   string `mapstructure:"mpan"`
	Serial string `mapstructure:"serial"`
}

type GlowConfig struct {
	ApplicationID string `mapstructure:"application_id"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	ResourceID    string `mapstructure:"resource_id"`
}

// Glowmarkt's published application id for the Bright app
const defaultGlowApplicationID = "b0f1b774-a586-4f72-9edd-27ead8aa7a8d"

// Dir is the directory holding the default config file and database
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".smarttariff"), nil
}

// Load reads cfgFile, or config.yaml from Dir when cfgFile is empty. A missing
// default config file is not an error.
func Load(cfgFile string) (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, dir)

	v.SetEnvPrefix("SMARTTARIFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("db_path", filepath.Join(dir, "smarttariff.db"))
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("timezone", "Europe/London")

	v.SetDefault("defaults.standard_rate", 0)
	v.SetDefault("defaults.standing_charge", 0)
	v.SetDefault("defaults.battery_capacity_kwh", 0)
	v.SetDefault("defaults.max_charge_rate_kw", 0)
	v.SetDefault("defaults.max_discharge_rate_kw", 0)
	v.SetDefault("defaults.efficiency_percent", 90)
	v.SetDefault("defaults.standard_rate_battery_mode", string(engine.BatteryNone))

	// bound so environment variables can supply them without a config file
	v.SetDefault("octopus.api_key", "")
	v.SetDefault("octopus.mpan", "")
	v.SetDefault("octopus.serial", "")
	v.SetDefault("glow.application_id", defaultGlowApplicationID)
	v.SetDefault("glow.username", "")
	v.SetDefault("glow.password", "")
	v.SetDefault("glow.resource_id", "")
}

// Location loads the configured time zone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// Settings converts the configured defaults
func (c *Config) Settings() engine.Settings {
	d := c.Defaults
	periods := make([]engine.RatePeriod, 0, len(d.RatePeriods))
	for _, p := range d.RatePeriods {
		periods = append(periods, p.ratePeriod())
	}
	return engine.Settings{
		StandardRate:            decimal.NewFromFloat(d.StandardRate),
		StandingCharge:          decimal.NewFromFloat(d.StandingCharge),
		RatePeriods:             periods,
		BatteryCapacityKWh:      decimal.NewFromFloat(d.BatteryCapacityKWh),
		MaxChargeRateKW:         decimal.NewFromFloat(d.MaxChargeRateKW),
		MaxDischargeRateKW:      decimal.NewFromFloat(d.MaxDischargeRateKW),
		EfficiencyPercent:       decimal.NewFromFloat(d.EfficiencyPercent),
		StandardRateBatteryMode: engine.BatteryMode(d.StandardRateBatteryMode),
	}
}
