package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/itinera"
	"github.com/aretw0/itinera/internal/cli"
	httpadapter "github.com/aretw0/itinera/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Exposes threads over HTTP. Turns stream as Server-Sent Events and
Prometheus metrics are served on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		app, err := openApp(sigCtx, cmd)
		if err != nil {
			return err
		}
		addr := app.Config.HTTPAddr
		if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
			addr = flagAddr
		}

		streams := httpadapter.NewStreamManager(app.Logger)
		handler := httpadapter.NewHandler(app.Engine,
			httpadapter.WithStreams(streams),
			httpadapter.WithLogger(app.Logger),
			httpadapter.WithSources(app.Sources),
			httpadapter.WithMetrics(app.Metrics.Handler()),
			httpadapter.WithVersion(itinera.Version),
		)
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		srv.RegisterOnShutdown(streams.Close)

		serverErrors := make(chan error, 1)
		go func() {
			app.Logger.Info("Starting itinera server", "addr", addr, "store", app.Config.Store, "tools", len(app.Tools.Names()))
			serverErrors <- srv.ListenAndServe()
		}()

		var runErr error
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				runErr = fmt.Errorf("server error: %w", err)
			}
		case <-sigCtx.Done():
			app.Logger.Info("Start shutdown", "signal", sigCtx.Signal())
		}

		// Give outstanding requests and running turns a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			app.Logger.Warn("Graceful shutdown did not complete", "err", err)
			_ = srv.Close()
		}
		if err := app.Close(ctx); err != nil {
			app.Logger.Warn("Engine shutdown incomplete", "err", err)
		}
		app.Logger.Info("Itinera server stopped")
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides ITINERA_HTTP_ADDR)")
}
