// Package cmd is the vidfetch command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"vidfetch/internal/config"
	"vidfetch/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	logLevel string
	cfg      *config.Config
	log      *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vidfetch",
	Short: "Pick a quality and download YouTube videos",
	Long: `vidfetch lists the qualities a video is offered in and downloads the one you pick.

Video-only qualities are either merged with the best audio into one file
(auto-merge) or saved as separate video and audio files (keep-separate).

Example:
  vidfetch formats https://www.youtube.com/watch?v=dQw4w9WgXcQ
  vidfetch download https://youtu.be/dQw4w9WgXcQ --format 137 --merge keep-separate`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute runs the command tree until it returns or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (default from VIDFETCH_APP_LOG_LEVEL)")
}

func initConfig(cmd *cobra.Command, _ []string) error {
	var err error

	cfg, err = config.New()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if logLevel != "" {
		cfg.App.LogLevel = logLevel
	}

	opts := &logger.Options{
		AddSource: true,
		Level:     cfg.App.LogLevel,
		Format:    cfg.App.LogFormat,
	}

	// only the server logs to stdout, everything else keeps stdout for its output
	if cmd.Name() != "serve" {
		opts.AddSource = false
		opts.Format = logger.FormatText
		opts.Writer = os.Stderr
	}

	log, err = logger.New(opts)
	if err != nil {
		log.WarnContext(cmd.Context(), "logger level invalid; defaulting to info", slog.Any("error", err))
	}

	return nil
}
