package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/url"
	"os"
	"slices"
	"text/tabwriter"

	"vidfetch/internal/depmanager"
	"vidfetch/internal/errs"
	"vidfetch/internal/mergetool"
	"vidfetch/internal/proxymgr"
	"vidfetch/internal/service"

	"github.com/spf13/cobra"
)

// BinaryLister reports the external tools the process resolved.
type BinaryLister interface {
	Binaries() []depmanager.Binary
}

// ProxyChecker probes the configured proxies and reports their state.
type ProxyChecker interface {
	HealthCheck(ctx context.Context, proxyURL string) error
	GetStats() map[string]proxymgr.ProxyStats
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that yt-dlp and ffmpeg can be found",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		deps := depmanager.New(log, cfg)
		if err := deps.Start(ctx); err != nil {
			log.WarnContext(ctx, "resolve tools", slog.Any("error", err))
		}

		ffmpegPath := cfg.Merge.FFmpegPath
		if ffmpegPath == "" {
			ffmpegPath = deps.GetInstalledPath(depmanager.BinaryFFmpeg)
		}

		mergeTool := mergetool.New(log, mergetool.WithPath(ffmpegPath))

		var proxies ProxyChecker
		if len(cfg.Proxy.Proxies) > 0 {
			proxies = proxymgr.New(log, cfg, nil)
		}

		return RunDoctor(ctx, deps, mergeTool, proxies, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// RunDoctor prints where every tool was found and, when proxies is not nil,
// whether each proxy answers. It fails when a required tool is missing.
func RunDoctor(ctx context.Context, bins BinaryLister, mergeTool service.MergeTool, proxies ProxyChecker, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tREQUIRED\tPATH")

	var missing []string

	for _, b := range bins.Binaries() {
		path := b.Path
		if !b.Found() {
			path = "not found"

			if b.Required {
				missing = append(missing, string(b.Name))
			}
		}

		fmt.Fprintf(tw, "%s\t%t\t%s\n", b.Name, b.Required, path)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	ok, status := mergeTool.IsAvailable(ctx)
	if ok {
		fmt.Fprintf(out, "\nMerge tool: %s\n", status)
	} else {
		fmt.Fprintf(out, "\nMerge tool unavailable (%s): video-only qualities will be kept as separate files.\n", status)
	}

	if proxies != nil {
		if err := writeProxies(ctx, proxies, out); err != nil {
			return err
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", errs.ErrBinaryNotFound, missing)
	}

	return nil
}

// writeProxies checks every proxy once. An unreachable proxy is reported, not fatal.
func writeProxies(ctx context.Context, proxies ProxyChecker, out io.Writer) error {
	urls := slices.Sorted(maps.Keys(proxies.GetStats()))

	// a failed check is recorded in the stats
	for _, u := range urls {
		_ = proxies.HealthCheck(ctx, u)
	}

	stats := proxies.GetStats()

	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROXY\tSTATE\tFAILURES")

	for _, u := range urls {
		st := stats[u]
		fmt.Fprintf(tw, "%s\t%s\t%d\n", redact(u), st.State, st.FailureCount)
	}

	return tw.Flush()
}

// redact hides proxy credentials.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	return u.Redacted()
}
