package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	JWTSecret   string   `mapstructure:"JWT_SECRET"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Scheduling policy knobs. Defaults mirror the reference
	// deployment; tune per site, they are not load-bearing constants.
	NoShowGraceMinutes    int     `mapstructure:"NOSHOW_GRACE_MINUTES"`
	LoadBalanceThreshold  int     `mapstructure:"LOAD_BALANCE_THRESHOLD"`
	LoadBalanceBatch      int     `mapstructure:"LOAD_BALANCE_BATCH"`
	ConflictWindowMinutes int     `mapstructure:"CONFLICT_WINDOW_MINUTES"`
	WaitWeightEmergency   float64 `mapstructure:"WAIT_WEIGHT_EMERGENCY"`
	WaitWeightAppointment float64 `mapstructure:"WAIT_WEIGHT_APPOINTMENT"`
	WaitWeightWalkIn      float64 `mapstructure:"WAIT_WEIGHT_WALKIN"`
	UrgentLeadHours       int     `mapstructure:"URGENT_LEAD_HOURS"`
	RoutineLeadHours      int     `mapstructure:"ROUTINE_LEAD_HOURS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("NOSHOW_GRACE_MINUTES", 10)
	v.SetDefault("LOAD_BALANCE_THRESHOLD", 5)
	v.SetDefault("LOAD_BALANCE_BATCH", 2)
	v.SetDefault("CONFLICT_WINDOW_MINUTES", 60)
	v.SetDefault("WAIT_WEIGHT_EMERGENCY", 0.7)
	v.SetDefault("WAIT_WEIGHT_APPOINTMENT", 1.0)
	v.SetDefault("WAIT_WEIGHT_WALKIN", 1.2)
	v.SetDefault("URGENT_LEAD_HOURS", 2)
	v.SetDefault("ROUTINE_LEAD_HOURS", 4)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("NOSHOW_GRACE_MINUTES")
	v.BindEnv("LOAD_BALANCE_THRESHOLD")
	v.BindEnv("LOAD_BALANCE_BATCH")
	v.BindEnv("CONFLICT_WINDOW_MINUTES")
	v.BindEnv("WAIT_WEIGHT_EMERGENCY")
	v.BindEnv("WAIT_WEIGHT_APPOINTMENT")
	v.BindEnv("WAIT_WEIGHT_WALKIN")
	v.BindEnv("URGENT_LEAD_HOURS")
	v.BindEnv("ROUTINE_LEAD_HOURS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if !cfg.IsDev() && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required when ENV=production")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}
