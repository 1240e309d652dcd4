package store

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Config selects and configures the store driver.
type Config struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"` // postgres, sqlite, or memory
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string     `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open returns the Store selected by cfg.Driver and applies its schema.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, &cfg.Pool)
	case "sqlite", "":
		st, err = NewSQLite(cfg.SQLitePath)
	case "memory":
		st = NewMemory()
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	zap.L().Debug("store opened", zap.String("driver", cfg.Driver))
	return st, nil
}
