package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/resolution-cli/internal/api"
)

var (
	servePort     int
	serveReadOnly bool
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for run history, live state and match status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := newRunContext(cmd.Context())
		defer stop()

		env, err := initResolve(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		var factory api.OrchestratorFactory
		if !serveReadOnly {
			factory = env.NewOrchestrator
		}
		apiSrv := api.NewServer(env.Store, factory, api.WithDefaults(defaultJob()))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           apiSrv.Router(cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Bool("read_only", factory == nil),
			zap.Bool("history", env.Store != nil),
		)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				_ = apiSrv.Shutdown(context.Background())
				return eris.Wrap(err, "server listen")
			}
		case <-ctx.Done():
		}

		// Graceful shutdown: stop accepting requests, then cancel and drain
		// background runs before the store closes.
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("http shutdown", zap.Error(err))
		}
		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "background runs did not finish")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveReadOnly, "read-only", false, "disable POST /resolve")
	rootCmd.AddCommand(serveCmd)
}
