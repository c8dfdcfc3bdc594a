// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration.
type Config struct {
	HTTP       HTTP
	App        App
	Job        Job
	Dir        Dir
	Storage    Storage
	Extractor  Extractor
	Merge      Merge
	DepManager DepManager
	Proxy      Proxy
}

// App holds application-wide configuration.
type App struct {
	LogLevel  string `env:"VIDFETCH_APP_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"VIDFETCH_APP_LOG_FORMAT" envDefault:"json"`
	// AllowAnyHost disables the YouTube URL pattern check.
	AllowAnyHost bool `env:"VIDFETCH_APP_ALLOW_ANY_HOST" envDefault:"false"`
}

// Job holds job processing configuration.
type Job struct {
	Workers   int           `env:"VIDFETCH_JOB_WORKERS"    envDefault:"2"`
	Timeout   time.Duration `env:"VIDFETCH_JOB_TIMEOUT"    envDefault:"30m"`
	QueueSize int           `env:"VIDFETCH_JOB_QUEUE_SIZE" envDefault:"100"`
}

// Storage holds storage configuration.
type Storage struct {
	TTL             time.Duration `env:"VIDFETCH_STORAGE_TTL"              envDefault:"24h"`
	CleanupInterval time.Duration `env:"VIDFETCH_STORAGE_CLEANUP_INTERVAL" envDefault:"1h"`
}

// HTTP holds HTTP server configuration.
type HTTP struct {
	Port            string        `env:"VIDFETCH_HTTP_PORT"             envDefault:":8080"`
	HandlerTimeout  time.Duration `env:"VIDFETCH_HTTP_HANDLER_TIMEOUT"  envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"VIDFETCH_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Dir holds directory paths for downloads, cache, and cookie file.
type Dir struct {
	// Downloads defaults to $HOME/Downloads/YouTube_Downloads when empty.
	Downloads string `env:"VIDFETCH_DIR_DOWNLOAD" envDefault:""`
	Cache     string `env:"VIDFETCH_DIR_CACHE"    envDefault:"./data/cache"` // yt-dlp cache (meta, sigs)

	// must contain cookies.txt file
	// see: https://github.com/yt-dlp/yt-dlp/wiki/FAQ#how-do-i-pass-cookies-to-yt-dlp
	CookieFile string `env:"VIDFETCH_DIR_COOKIE_FILE" envDefault:""`
}

// DefaultDownloadsDir returns $HOME/Downloads/YouTube_Downloads.
func DefaultDownloadsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("user home dir: %w", err)
	}

	return filepath.Join(home, "Downloads", "YouTube_Downloads"), nil
}

// SetAbsPaths fills in the downloads default and converts all directory paths to absolute paths.
func (c *Dir) SetAbsPaths() error {
	var err error

	if c.Downloads == "" {
		if c.Downloads, err = DefaultDownloadsDir(); err != nil {
			return fmt.Errorf("downloads: %w", err)
		}
	}

	if c.Downloads, err = filepath.Abs(c.Downloads); err != nil {
		return fmt.Errorf("downloads: %w", err)
	}

	if c.Cache, err = filepath.Abs(c.Cache); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	if c.CookieFile != "" {
		if c.CookieFile, err = filepath.Abs(c.CookieFile); err != nil {
			return fmt.Errorf("cookie file: %w", err)
		}
	}

	return nil
}

// Extractor holds extraction backend configuration.
type Extractor struct {
	// Backend is "ytdlp" or "mock".
	Backend string `env:"VIDFETCH_EXTRACTOR_BACKEND" envDefault:"ytdlp"`
	// Args are passed as yt-dlp --extractor-args.
	Args string `env:"VIDFETCH_EXTRACTOR_ARGS" envDefault:"youtube:player_client=web,android;skip=dash,hls"`
	// FormatsCacheTTL is how long a listed set of formats is reused for the same URL.
	FormatsCacheTTL time.Duration `env:"VIDFETCH_EXTRACTOR_FORMATS_CACHE_TTL" envDefault:"10m"`
	// ProgressInterval is the minimum time between two progress callbacks.
	ProgressInterval time.Duration `env:"VIDFETCH_EXTRACTOR_PROGRESS_INTERVAL" envDefault:"250ms"`
}

// Merge holds stream recombination configuration.
type Merge struct {
	// Container is the output container of auto-merged downloads.
	Container string `env:"VIDFETCH_MERGE_CONTAINER" envDefault:"mp4"`
	// FFmpegPath overrides the merge tool binary. Empty uses the one the dependency manager resolved.
	FFmpegPath string `env:"VIDFETCH_MERGE_FFMPEG_PATH"`
	// FallbackSeparate downgrades auto-merge to keep-separate when the merge tool is missing.
	FallbackSeparate bool `env:"VIDFETCH_MERGE_FALLBACK_SEPARATE" envDefault:"true"`
	// ParallelStreams downloads the video and audio streams of keep-separate concurrently.
	ParallelStreams bool `env:"VIDFETCH_MERGE_PARALLEL_STREAMS" envDefault:"false"`
}

// New loads configuration from environment variables.
func New() (*Config, error) {
	cfg := &Config{}

	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	err = cfg.Dir.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set absolute paths: %w", err)
	}

	err = cfg.DepManager.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set dep manager absolute paths: %w", err)
	}

	cfg.Proxy.parseList()

	return cfg, nil
}

// DepManager holds binary dependency management configuration.
type DepManager struct {
	// BinsDir is the directory where binaries are stored
	BinsDir string `env:"VIDFETCH_DEPMANAGER_BINS_DIR" envDefault:"./bins"`
	// UseSystemBinaries indicates whether to use system-installed binaries or download them.
	UseSystemBinaries bool `env:"VIDFETCH_DEPMANAGER_USE_SYSTEM_BINARIES" envDefault:"true"`

	// ffmpeg binary URLs per platform.
	FFmpegLinuxARM64 string `env:"VIDFETCH_DEPMANAGER_FFMPEG_LINUX_ARM64" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linuxarm64-gpl.tar.xz"` //nolint:lll
	FFmpegLinuxAMD64 string `env:"VIDFETCH_DEPMANAGER_FFMPEG_LINUX_AMD64" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linux64-gpl.tar.xz"` //nolint:lll

	// yt-dlp binary URLs per platform.
	YTdlpLinuxARM64 string `env:"VIDFETCH_DEPMANAGER_YTDLP_LINUX_ARM64" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux_aarch64"` //nolint:lll
	YTdlpLinuxAMD64 string `env:"VIDFETCH_DEPMANAGER_YTDLP_LINUX_AMD64" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux"` //nolint:lll

	// deno binary URLs per platform. yt-dlp needs a JS runtime for YouTube signatures.
	DenoLinuxARM64 string `env:"VIDFETCH_DEPMANAGER_DENO_LINUX_ARM64" envDefault:"https://github.com/denoland/deno/releases/latest/download/deno-aarch64-unknown-linux-gnu.zip"` //nolint:lll
	DenoLinuxAMD64 string `env:"VIDFETCH_DEPMANAGER_DENO_LINUX_AMD64" envDefault:"https://github.com/denoland/deno/releases/latest/download/deno-x86_64-unknown-linux-gnu.zip"` //nolint:lll
}

// SetAbsPaths converts the BinsDir path to an absolute path.
func (d *DepManager) SetAbsPaths() error {
	var err error
	if d.BinsDir, err = filepath.Abs(d.BinsDir); err != nil {
		return fmt.Errorf("bins dir: %w", err)
	}

	return nil
}

// Proxy holds proxy configuration for extraction requests.
type Proxy struct {
	// List is a comma-separated list of proxy URLs in socks5h format
	List string `env:"VIDFETCH_PROXY_LIST" envDefault:""`
	// HealthCheckInterval is how often to check proxy health
	HealthCheckInterval time.Duration `env:"VIDFETCH_PROXY_HEALTH_CHECK_INTERVAL" envDefault:"5m"`
	// FailureBackoff is the initial backoff duration for failed proxies
	FailureBackoff time.Duration `env:"VIDFETCH_PROXY_FAILURE_BACKOFF" envDefault:"1m"`
	// MaxFailures is the maximum number of failures before a proxy is temporarily removed
	MaxFailures int `env:"VIDFETCH_PROXY_MAX_FAILURES" envDefault:"3"`

	// Proxies is the parsed list of proxy URLs
	Proxies []string `env:"-"`
}

// parseList parses the comma-separated proxy list.
func (p *Proxy) parseList() {
	p.Proxies = nil

	if p.List == "" {
		return
	}

	for proxy := range strings.SplitSeq(p.List, ",") {
		proxy = strings.TrimSpace(proxy)
		if proxy != "" {
			p.Proxies = append(p.Proxies, proxy)
		}
	}
}
