package cmd

import (
	"errors"
	"log/slog"
	"net/http"

	httprouter "vidfetch/internal/infrastructure/delivery/http"
	httpserver "vidfetch/pkg/http/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the HTTP API on VIDFETCH_HTTP_PORT.

Downloads run on VIDFETCH_JOB_WORKERS workers and their progress is
available as server-sent events under /v1/downloads/{id}/events.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, log, cfg)
	if err != nil {
		return err
	}

	router := httprouter.New(log, cfg, a.svc, a.metrics, a.deps)

	httpSrv := httpserver.New(router, httpserver.Options{
		Addr:            cfg.HTTP.Port,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})

	log.InfoContext(ctx, "vidfetch started", slog.String("port", cfg.HTTP.Port))

	// Waiting for shutdown signal
	select {
	case <-ctx.Done():
	case err = <-httpSrv.Notify():
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorContext(ctx, "http server stopped", slog.Any("error", err))

			return err
		}
	}

	if err := httpSrv.Shutdown(); err != nil {
		log.Error(err.Error())
	}

	a.svc.Wait()

	log.InfoContext(ctx, "vidfetch shut down gracefully")

	return nil
}
