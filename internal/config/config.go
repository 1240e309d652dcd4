// Package config loads settings from config.yaml, .env and EQUITEE_*
// environment variables, and builds the global logger.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/equitee/equitee-api/internal/accessibility"
	"github.com/equitee/equitee-api/internal/api"
	"github.com/equitee/equitee-api/internal/batch"
	"github.com/equitee/equitee-api/internal/matching"
	"github.com/equitee/equitee-api/internal/model"
	"github.com/equitee/equitee-api/internal/resilience"
	"github.com/equitee/equitee-api/internal/service"
	"github.com/equitee/equitee-api/internal/store"
)

// Config is the root configuration.
type Config struct {
	Store    store.Config           `yaml:"store" mapstructure:"store"`
	Server   ServerConfig           `yaml:"server" mapstructure:"server"`
	Log      LogConfig              `yaml:"log" mapstructure:"log"`
	Scoring  accessibility.Params   `yaml:"scoring" mapstructure:"scoring"`
	Matching matching.Settings      `yaml:"matching" mapstructure:"matching"`
	Service  service.Config         `yaml:"service" mapstructure:"service"`
	Batch    batch.Config           `yaml:"batch" mapstructure:"batch"`
	Cache    CacheConfig            `yaml:"cache" mapstructure:"cache"`
	Retry    resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port" mapstructure:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	api.Config      `yaml:",inline" mapstructure:",squash"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CacheConfig configures the request-time caches.
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl" mapstructure:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// Load reads configuration from file and environment. A .env file in the
// working directory is loaded first; variables already set win over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.L().Debug("config: no .env file loaded", zap.Error(err))
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EQUITEE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "equitee.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.request_timeout", "15s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	p := accessibility.DefaultParams()
	v.SetDefault("scoring.rounds_per_year", p.RoundsPerYear)
	v.SetDefault("scoring.equipment_allowance", p.EquipmentAllowance)
	v.SetDefault("scoring.instruction_allowance", p.InstructionAllowance)
	v.SetDefault("scoring.distance_decay_miles", p.DistanceDecayMiles)
	v.SetDefault("scoring.distance_floor", p.DistanceFloor)
	v.SetDefault("scoring.youth_bonus", p.YouthBonus)
	v.SetDefault("scoring.equipment_bonus", p.EquipmentBonus)
	v.SetDefault("scoring.affordable_price_ceiling", p.AffordablePriceCeiling)
	v.SetDefault("scoring.affordable_bonus", p.AffordableBonus)
	v.SetDefault("scoring.scale_factor", p.ScaleFactor)
	v.SetDefault("scoring.max_score", p.MaxScore)
	v.SetDefault("scoring.request_youth_bonus", p.RequestYouthBonus)
	v.SetDefault("scoring.default_transportation_score", p.DefaultTransportationScore)
	v.SetDefault("scoring.transport_bands", p.TransportBands[:])

	m := matching.DefaultSettings()
	v.SetDefault("matching.course_radius_miles", m.CourseRadiusMiles)
	v.SetDefault("matching.mentor_radius_miles", m.MentorRadiusMiles)
	v.SetDefault("matching.mentor_budget", m.MentorBudget)
	v.SetDefault("matching.youth_radius_miles", m.YouthRadiusMiles)
	v.SetDefault("matching.youth_budget", m.YouthBudget)
	v.SetDefault("matching.youth_min_age", m.YouthMinAge)
	v.SetDefault("matching.youth_max_age", m.YouthMaxAge)

	v.SetDefault("service.location_radius_miles", 25.0)
	v.SetDefault("service.affordable_price", 100.0)

	v.SetDefault("batch.max_distance_miles", 50.0)
	v.SetDefault("batch.batch_size", 500)
	v.SetDefault("batch.progress_every", 100)
	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.kinds", []string{string(model.KindCourse)})
	v.SetDefault("batch.breaker.failure_threshold", 5)
	v.SetDefault("batch.breaker.reset_timeout", "30s")

	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.cleanup_interval", "10m")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", "200ms")
	v.SetDefault("retry.max_backoff", "5s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)

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

	for i, k := range cfg.Batch.Kinds {
		if kind, ok := model.ParseKind(string(k)); ok {
			cfg.Batch.Kinds[i] = kind
		}
	}
	cfg.Batch.Retry = cfg.Retry
	cfg.Service.CacheTTL = cfg.Cache.TTL
	cfg.Service.CacheCleanup = cfg.Cache.CleanupInterval

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of serve,
// batch, migrate, seed, or cli.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	case "sqlite", "":
	case "memory":
		if mode == "migrate" || mode == "seed" {
			errs = append(errs, fmt.Sprintf("store.driver memory does not persist; %s would have no effect", mode))
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of postgres, sqlite, memory", c.Store.Driver))
	}

	if err := c.Scoring.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	switch mode {
	case "serve":
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server.rate_limit must be >= 0")
		}
	case "batch":
		if c.Batch.Workers < 1 || c.Batch.Workers > 64 {
			errs = append(errs, fmt.Sprintf("batch.workers must be between 1 and 64, got %d", c.Batch.Workers))
		}
		if c.Batch.BatchSize < 1 {
			errs = append(errs, "batch.batch_size must be >= 1")
		}
		if c.Batch.MaxDistanceMiles <= 0 {
			errs = append(errs, "batch.max_distance_miles must be > 0")
		}
		for _, k := range c.Batch.Kinds {
			if _, ok := model.ParseKind(string(k)); !ok {
				errs = append(errs, fmt.Sprintf("batch.kinds: unknown kind %q", k))
			}
		}
	case "migrate", "seed", "cli":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
