package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/equitee/equitee-api/internal/api"
	"github.com/equitee/equitee-api/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildHandler(env, monitoring.NewMetrics()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		return runServer(ctx, srv, cfg.Server.ShutdownTimeout)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func buildHandler(env *appEnv, metrics *monitoring.Metrics) http.Handler {
	return api.NewRouter(env.Service(), metrics, env.Config.Server.Config)
}

// runServer serves until ctx is cancelled, then drains in-flight requests for
// at most shutdownTimeout.
func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- eris.Wrap(err, "server listen")
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return <-errCh
}
