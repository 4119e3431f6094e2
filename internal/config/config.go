package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
	AutoMigrate     bool
	Seed            bool
}

type AuthConfig struct {
	AccessSecret       string
	AllowProfileHeader bool
}

type SettlementConfig struct {
	DepositCapRatio    decimal.Decimal
	RequireClientPayer bool
}

type ReportsConfig struct {
	DefaultLimit int
	MaxLimit     int
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Settlement  SettlementConfig
	Reports     ReportsConfig
	RateLimit   RateLimitConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AutomaticEnv()

	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("AUTH_ALLOW_PROFILE_HEADER", true)
	v.SetDefault("SETTLEMENT_DEPOSIT_CAP_RATIO", "0.25")

	_ = v.ReadInConfig()

	ratio, err := decimal.NewFromString(strings.TrimSpace(v.GetString("SETTLEMENT_DEPOSIT_CAP_RATIO")))
	if err != nil {
		return nil, fmt.Errorf("SETTLEMENT_DEPOSIT_CAP_RATIO: %w", err)
	}

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host:           v.GetString("HTTP_HOST"),
			Port:           v.GetInt("HTTP_PORT"),
			ReadTimeout:    v.GetDuration("HTTP_READ_TIMEOUT"),
			WriteTimeout:   v.GetDuration("HTTP_WRITE_TIMEOUT"),
			AllowedOrigins: parseList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetString("DB_CONN_MAX_LIFETIME"),
			AutoMigrate:     v.GetBool("DB_AUTO_MIGRATE"),
			Seed:            v.GetBool("DB_SEED"),
		},
		Auth: AuthConfig{
			AccessSecret:       v.GetString("JWT_ACCESS_SECRET"),
			AllowProfileHeader: v.GetBool("AUTH_ALLOW_PROFILE_HEADER"),
		},
		Settlement: SettlementConfig{
			DepositCapRatio:    ratio,
			RequireClientPayer: v.GetBool("SETTLEMENT_REQUIRE_CLIENT_PAYER"),
		},
		Reports: ReportsConfig{
			DefaultLimit: v.GetInt("REPORTS_DEFAULT_LIMIT"),
			MaxLimit:     v.GetInt("REPORTS_MAX_LIMIT"),
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetFloat64("RATE_LIMIT_RPS"),
			Burst: v.GetInt("RATE_LIMIT_BURST"),
		},
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 7090
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.Reports.DefaultLimit == 0 {
		cfg.Reports.DefaultLimit = 2
	}
	if cfg.Reports.MaxLimit == 0 {
		cfg.Reports.MaxLimit = 100
	}
	if cfg.RateLimit.RPS == 0 {
		cfg.RateLimit.RPS = 20
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 40
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if !cfg.Auth.AllowProfileHeader && cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required when AUTH_ALLOW_PROFILE_HEADER is false")
	}
	if !cfg.Settlement.DepositCapRatio.IsPositive() || cfg.Settlement.DepositCapRatio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("SETTLEMENT_DEPOSIT_CAP_RATIO must be in (0, 1]")
	}
	if cfg.Reports.DefaultLimit < 1 || cfg.Reports.DefaultLimit > cfg.Reports.MaxLimit {
		return fmt.Errorf("REPORTS_DEFAULT_LIMIT must be between 1 and REPORTS_MAX_LIMIT")
	}
	return nil
}

func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	items := strings.Split(raw, ",")
	result := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
