package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/equitee/equitee-api/internal/accessibility"
	"github.com/equitee/equitee-api/internal/config"
	"github.com/equitee/equitee-api/internal/geo"
	"github.com/equitee/equitee-api/internal/service"
	"github.com/equitee/equitee-api/internal/store"
)

// appEnv holds the store and scoring collaborators shared by every command.
type appEnv struct {
	Config   *config.Config
	Store    store.Store
	Model    *accessibility.Model
	Resolver *geo.Resolver
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// Service builds the request-time service over the environment.
func (e *appEnv) Service() *service.Service {
	return service.New(e.Store, e.Model, e.Resolver, e.Config.Matching, e.Config.Service)
}

// initEnv validates c for mode, opens and migrates the store, and builds the
// scoring model. Callers should defer env.Close().
func initEnv(ctx context.Context, c *config.Config, mode string) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	m, err := accessibility.New(c.Scoring)
	if err != nil {
		return nil, eris.Wrap(err, "init scoring model")
	}

	st, err := store.Open(ctx, c.Store)
	if err != nil {
		return nil, err
	}

	return &appEnv{
		Config:   c,
		Store:    st,
		Model:    m,
		Resolver: geo.DefaultResolver(),
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
