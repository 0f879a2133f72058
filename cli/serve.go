package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/warp/ledger-engine/api"
	"go.uber.org/zap"
)

type ServeOptions struct {
	*RootOptions
	Port int
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until SIGINT or SIGTERM.

On shutdown the server stops accepting connections, waits up to
server.shutdownTimeout for in-flight requests, then closes the store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "HTTP port, overrides server.port")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := opts.openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close(context.Background())

	port := e.cfg.Server.Port
	if opts.Port != 0 {
		port = opts.Port
	}

	handler := api.NewHandler(e.ledger, e.rates, e.logger)
	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: e.cfg.Server.AllowedOrigins})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  e.cfg.Server.ReadTimeout,
		WriteTimeout: e.cfg.Server.WriteTimeout,
		IdleTimeout:  e.cfg.Server.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		e.logger.Info("server starting",
			zap.Int("port", port),
			zap.String("store", e.cfg.Store.Driver))
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	e.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "server forced to shutdown", err)
	}
	e.logger.Info("server stopped")
	return nil
}
