package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aretw0/llmfsm/internal/cli"
	httpadapter "github.com/aretw0/llmfsm/pkg/adapters/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Hosts the selected agent over a JSON API. Sessions live in the configured store, so replicas can share Redis or SQLite.`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetString("port")
		textLogs, _ := cmd.Flags().GetBool("text-logs")

		app, err := bootstrap(cmd, cli.Options{JSONLogs: !textLogs}, nil)
		if err != nil {
			fail("Error initializing agent: %v", err)
		}
		defer app.Close()
		logger := app.Logger

		if _, err := httpadapter.LoadSpec(cmd.Context()); err != nil {
			logger.Error("API document is broken", "err", err)
			os.Exit(1)
		}

		handler := httpadapter.NewHandler(app.Sessions, app.Agent,
			httpadapter.WithMetrics(app.Registry),
			httpadapter.WithLogger(logger),
		)
		srv := &http.Server{
			Addr:              ":" + port,
			Handler:           otelhttp.NewHandler(handler, "llmfsm-http"),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Server listening",
				"address", srv.Addr,
				"agent", app.Spec.Name,
				"store", app.Config.Store.Kind,
			)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Server error", "err", err)
				os.Exit(1)
			}
		case sig := <-shutdown:
			logger.Info("Start shutdown", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("Graceful shutdown did not complete", "timeout", 5*time.Second, "err", err)
				if err := srv.Close(); err != nil {
					logger.Error("Error killing server", "err", err)
				}
			}
			logger.Info("Server stopped gracefully")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().Bool("text-logs", false, "Log as text instead of JSON")
}
