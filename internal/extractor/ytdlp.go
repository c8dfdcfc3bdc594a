package extractor

import (
	"context"
	"fmt"
	"log/slog"

	"vidfetch/internal/config"
	"vidfetch/internal/consts"
	"vidfetch/internal/entity"
	"vidfetch/internal/observability"
	"vidfetch/internal/proxymgr"

	"github.com/lrstanley/go-ytdlp"
)

// changing this may break ParseFilepaths().
const printAfterMove = "after_move:filepath"

// YTdlp is the extraction service backed by the yt-dlp binary.
type YTdlp struct {
	log      *slog.Logger
	cfg      *config.Config
	proxyMgr *proxymgr.Manager
	metrics  *observability.Metrics
}

// NewYTdlp creates a new YTdlp extractor. proxyMgr may be nil.
func NewYTdlp(log *slog.Logger, cfg *config.Config, proxyMgr *proxymgr.Manager, metrics *observability.Metrics) *YTdlp {
	return &YTdlp{
		log:      log.With(slog.String("package", "extractor"), slog.String("backend", consts.ExtractorYTdlp)),
		cfg:      cfg,
		proxyMgr: proxyMgr,
		metrics:  metrics,
	}
}

// command returns a yt-dlp command carrying the fixed backend configuration.
func (d *YTdlp) command() *ytdlp.Command {
	cmd := ytdlp.New().
		CacheDir(d.cfg.Dir.Cache).
		NoPlaylist().
		NoWarnings()

	if d.cfg.Extractor.Args != "" {
		cmd = cmd.ExtractorArgs(d.cfg.Extractor.Args)
	}

	if d.cfg.Dir.CookieFile != "" {
		cmd = cmd.Cookies(d.cfg.Dir.CookieFile)
	}

	return cmd
}

// run executes cmd through a proxy when one is available and reports the outcome back to the rotation.
func (d *YTdlp) run(ctx context.Context, op string, cmd *ytdlp.Command, url string) (*ytdlp.Result, error) {
	log := d.log.With(slog.String("op", op))

	var proxyURL string
	if d.proxyMgr != nil {
		if p, ok := d.proxyMgr.Pick(); ok {
			proxyURL = p
			cmd = cmd.Proxy(p)

			log.DebugContext(ctx, "using proxy", slog.String("proxy", p))
		}
	}

	res, err := cmd.Run(ctx, url)

	if res != nil {
		log.DebugContext(ctx, "ytdlp run", slog.Any("result", Result{res}))
	}

	// a cancelled call says nothing about the proxy
	if d.proxyMgr != nil && ctx.Err() == nil {
		d.proxyMgr.Report(proxyURL, err)
	}

	if err != nil {
		d.metrics.RecordExtractorRequest(consts.ExtractorYTdlp, op, "error")
		d.metrics.RecordExtractorError(consts.ExtractorYTdlp, classifyRunError(ctx))

		log.ErrorContext(ctx, "ytdlp run failed", slog.Any("error", err), slog.Any("result", Result{res}))

		if res != nil {
			if line := lastErrorLine(res.Stderr); line != "" {
				return res, fmt.Errorf("ytdlp %s: %w: %s", op, err, line)
			}
		}

		return res, fmt.Errorf("ytdlp %s: %w", op, err)
	}

	d.metrics.RecordExtractorRequest(consts.ExtractorYTdlp, op, "ok")

	return res, nil
}

func classifyRunError(ctx context.Context) string {
	switch ctx.Err() {
	case context.Canceled:
		return "canceled"
	case context.DeadlineExceeded:
		return "timeout"
	default:
		return "process"
	}
}

func (d *YTdlp) info(ctx context.Context, op, url string) (*InfoJSON, error) {
	cmd := d.command().
		DumpSingleJSON().
		SkipDownload()

	res, err := d.run(ctx, op, cmd, url)
	if err != nil {
		return nil, err
	}

	info, err := ParseInfo([]byte(res.Stdout))
	if err != nil {
		return nil, fmt.Errorf("ytdlp %s: %w", op, err)
	}

	return info, nil
}

// FetchMetadata returns title, uploader, duration and a description preview of url.
func (d *YTdlp) FetchMetadata(ctx context.Context, url string) (entity.VideoMetadata, error) {
	info, err := d.info(ctx, "metadata", url)
	if err != nil {
		return entity.VideoMetadata{}, err
	}

	return info.Metadata(), nil
}

// ListFormats returns every format yt-dlp reports for url.
func (d *YTdlp) ListFormats(ctx context.Context, url string) ([]entity.RawFormat, error) {
	info, err := d.info(ctx, "formats", url)
	if err != nil {
		return nil, err
	}

	return info.RawFormats(), nil
}

// Download fetches opts.Selector into opts.OutputTemplate.
func (d *YTdlp) Download(ctx context.Context, url string, opts DownloadOptions) (DownloadResult, error) {
	cmd := d.command().
		Format(opts.Selector).
		Output(opts.OutputTemplate).
		ForceOverwrites().
		Print(printAfterMove)

	if opts.Progress != nil {
		cmd = cmd.ProgressFunc(d.cfg.Extractor.ProgressInterval, func(u ytdlp.ProgressUpdate) {
			d.log.DebugContext(ctx, "ytdlp progress", slog.Any("progress_update", ProgressUpdate{&u}))

			opts.Progress(Progress{
				Status:          fmt.Sprint(u.Status),
				Filename:        u.Filename,
				DownloadedBytes: int64(u.DownloadedBytes),
				TotalBytes:      int64(u.TotalBytes),
			})
		})
	}

	for _, pp := range opts.PostProcessors {
		switch pp.Kind {
		case PostProcessorConvert:
			cmd = cmd.MergeOutputFormat(pp.Container).RecodeVideo(pp.Container)
		default:
			d.log.WarnContext(ctx, "unknown post-processor ignored", slog.String("kind", pp.Kind))
		}
	}

	res, err := d.run(ctx, "download", cmd, url)
	if err != nil {
		return DownloadResult{}, err
	}

	return DownloadResult{Files: ParseFilepaths(res.Stdout)}, nil
}
