/*
config.go - Server configuration

PURPOSE:
  Collects every server setting in one struct. Values come from, in
  increasing priority: built-in defaults, an optional YAML file passed with
  -config, and ENGINE_* environment variables.

KEYS:
  http.addr                  Listen address (ENGINE_HTTP_ADDR)
  db.driver                  sqlite | postgres
  db.dsn                     SQLite path (":memory:" allowed) or Postgres DSN
  tariffs.seed_file          YAML tariff seed; empty uses the embedded default
  tariffs.cache_ttl          Tariff cache TTL; 0 caches until invalidated
  tariffs.reload_interval    Periodic seed reload; 0 disables
  estimates.electricity_annual, estimates.gas_annual
                             Grootverbruik network fee estimates (EUR/year)
  auth.jwt_secret            HS256 secret for admin routes; empty disables them
  log.level, log.format      zerolog level; "console" or "json"
  cors.allowed_origins       Allowed CORS origins

SEE ALSO:
  - cmd/server/main.go: Consumes Config
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/warp/energy-engine/calculator"
)

const envPrefix = "ENGINE"

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	SeedFile       string
	CacheTTL       time.Duration
	ReloadInterval time.Duration

	Estimates calculator.Estimates

	JWTSecret string

	LogLevel  string
	LogFormat string

	AllowedOrigins []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "energy.db")
	v.SetDefault("tariffs.seed_file", "")
	v.SetDefault("tariffs.cache_ttl", "10m")
	v.SetDefault("tariffs.reload_interval", "0")
	v.SetDefault("estimates.electricity_annual", calculator.DefaultEstimates.Electricity.String())
	v.SetDefault("estimates.gas_annual", calculator.DefaultEstimates.Gas.String())
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("cors.allowed_origins", []string{"*"})
}

// Load reads the configuration. path may be empty.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		HTTPAddr:       v.GetString("http.addr"),
		DBDriver:       strings.ToLower(v.GetString("db.driver")),
		DBDSN:          v.GetString("db.dsn"),
		SeedFile:       v.GetString("tariffs.seed_file"),
		CacheTTL:       v.GetDuration("tariffs.cache_ttl"),
		ReloadInterval: v.GetDuration("tariffs.reload_interval"),
		JWTSecret:      v.GetString("auth.jwt_secret"),
		LogLevel:       v.GetString("log.level"),
		LogFormat:      v.GetString("log.format"),
		AllowedOrigins: splitList(v.GetStringSlice("cors.allowed_origins")),
	}

	var err error
	if cfg.Estimates.Electricity, err = decimal.NewFromString(v.GetString("estimates.electricity_annual")); err != nil {
		return Config{}, fmt.Errorf("estimates.electricity_annual: %w", err)
	}
	if cfg.Estimates.Gas, err = decimal.NewFromString(v.GetString("estimates.gas_annual")); err != nil {
		return Config{}, fmt.Errorf("estimates.gas_annual: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail late at startup.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("db.driver: unsupported driver %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("db.dsn: required")
	}
	if c.CacheTTL < 0 || c.ReloadInterval < 0 {
		return fmt.Errorf("tariffs: durations must not be negative")
	}
	if c.Estimates.Electricity.IsNegative() || c.Estimates.Gas.IsNegative() {
		return fmt.Errorf("estimates: must not be negative")
	}
	return nil
}

// splitList accepts both YAML lists and a comma-separated env value.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
