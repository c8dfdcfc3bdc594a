// Package depmanager locates or installs the external tools downloads rely on:
// yt-dlp for extraction, ffmpeg and ffprobe for recombining streams and deno as
// the JavaScript runtime yt-dlp needs for YouTube.
package depmanager

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/consts"
	"vidfetch/internal/errs"

	"github.com/ulikunitz/xz"
)

// BinaryName represents the name of a binary dependency.
type BinaryName string

// Binary dependency names.
const (
	BinaryYTdlp   BinaryName = "yt-dlp"
	BinaryFFmpeg  BinaryName = "ffmpeg"
	BinaryFFprobe BinaryName = "ffprobe"
	BinaryDeno    BinaryName = "deno"
)

// installable are downloaded one by one; ffprobe ships inside the ffmpeg archive.
var installable = []BinaryName{BinaryFFmpeg, BinaryDeno, BinaryYTdlp}

// Binary is the resolution state of one tool.
type Binary struct {
	Name     BinaryName `json:"name"`
	Path     string     `json:"path,omitempty"`
	Required bool       `json:"required"`
}

// Found reports whether the tool was located.
func (b Binary) Found() bool { return b.Path != "" }

// Platform operating system names and architectures.
const (
	platformLinux   = "linux"
	platformWindows = "windows"
	archARM64       = "arm64"
	archAMD64       = "amd64"
)

// Internal constants for binary management.
const (
	// downloadTimeout is the HTTP client timeout for downloading binaries.
	downloadTimeout = 10 * time.Minute
	// filePermExecutable is the file permission for executable binaries.
	filePermExecutable = 0o755
)

// Platform represents the OS and architecture combination.
type Platform struct {
	OS   string
	Arch string
}

// String returns the platform string in format "os/arch".
func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// Manager manages binary dependencies.
type Manager struct {
	log      *slog.Logger
	cfg      *config.Config
	platform Platform
	client   *http.Client

	mu       sync.RWMutex
	binPaths map[BinaryName]string
}

// New creates a new dependency manager.
func New(log *slog.Logger, cfg *config.Config) *Manager {
	return &Manager{
		log: log.With(slog.String("package", "depmanager")),
		cfg: cfg,
		platform: Platform{
			OS:   runtime.GOOS,
			Arch: runtime.GOARCH,
		},
		client: &http.Client{
			Timeout: downloadTimeout,
		},
		binPaths: make(map[BinaryName]string),
	}
}

// Start resolves every tool, either from PATH or by installing release builds
// into the bins dir.
func (m *Manager) Start(ctx context.Context) error {
	if m.cfg.DepManager.UseSystemBinaries {
		return m.SetSystemBinaries(ctx)
	}

	if m.platform.OS != platformLinux {
		return fmt.Errorf("%w: %s", errs.ErrUnsupportedPlatform, m.platform)
	}

	if err := m.InstallAll(ctx); err != nil {
		return err
	}

	if err := m.PrependPath(); err != nil {
		return err
	}

	return nil
}

// required reports whether a missing tool makes the application unusable.
// Only the extractor is: without ffmpeg downloads fall back to separate streams.
func (m *Manager) required(name BinaryName) bool {
	return name == BinaryYTdlp && m.cfg.Extractor.Backend != consts.ExtractorMock
}

// SetSystemBinaries looks every tool up in the system PATH.
func (m *Manager) SetSystemBinaries(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, binary := range []BinaryName{BinaryYTdlp, BinaryFFmpeg, BinaryFFprobe, BinaryDeno} {
		path, err := exec.LookPath(string(binary))
		if err != nil {
			if m.required(binary) {
				return fmt.Errorf("%w: %s not in PATH: %w", errs.ErrBinaryNotFound, binary, err)
			}

			m.log.WarnContext(ctx, "optional binary not found in PATH", slog.String("binary", string(binary)))

			continue
		}

		m.binPaths[binary] = path
	}

	return nil
}

// Binaries returns the resolution state of every tool, for diagnostics.
func (m *Manager) Binaries() []Binary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := []BinaryName{BinaryYTdlp, BinaryFFmpeg, BinaryFFprobe, BinaryDeno}
	out := make([]Binary, 0, len(names))

	for _, name := range names {
		out = append(out, Binary{Name: name, Path: m.binPaths[name], Required: m.required(name)})
	}

	return out
}

// PrependPath puts the bins dir first in PATH so child processes find the installed tools.
func (m *Manager) PrependPath() error {
	dir := m.cfg.DepManager.BinsDir
	current := os.Getenv("PATH")

	if slices.Contains(filepath.SplitList(current), dir) {
		return nil
	}

	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+current); err != nil {
		return fmt.Errorf("set PATH: %w", err)
	}

	return nil
}

// InstallAll downloads the tools missing from the bins dir.
func (m *Manager) InstallAll(ctx context.Context) error {
	log := m.log

	err := os.MkdirAll(m.cfg.DepManager.BinsDir, filePermExecutable)
	if err != nil {
		return fmt.Errorf("create bins directory: %w", err)
	}

	for _, binary := range installable {
		if m.isBinaryExists(binary) {
			m.setBinaryPath(binary)
			log.DebugContext(ctx, "binary already exists", slog.String("binary", string(binary)))

			continue
		}

		err = m.downloadAndInstall(ctx, binary)
		if err != nil {
			return fmt.Errorf("download and install %s: %w", binary, err)
		}
	}

	if m.isBinaryExists(BinaryFFprobe) {
		m.setBinaryPath(BinaryFFprobe)
	}

	log.InfoContext(ctx, "all binaries are installed", slog.Any("binaries", m.binPaths))

	return nil
}

// GetBinaryPath returns the full path to a binary.
//   - /home/user/ + binary => /home/user/binary
func (m *Manager) GetBinaryPath(name BinaryName) string {
	filename := string(name)
	if m.platform.OS == platformWindows {
		filename += ".exe"
	}

	return filepath.Join(m.cfg.DepManager.BinsDir, filename)
}

// GetInstalledPath returns the installed path for a binary, or empty if not installed.
func (m *Manager) GetInstalledPath(name BinaryName) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.binPaths[name]
}

// isBinaryExists checks if a binary file exists and has non-zero size.
func (m *Manager) isBinaryExists(name BinaryName) bool {
	binPath := m.GetBinaryPath(name)
	info, err := os.Stat(binPath)

	return err == nil && info.Size() > 0
}

func (m *Manager) setBinaryPath(name BinaryName) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.binPaths[name] = m.GetBinaryPath(name)
}

// downloadAndInstall downloads and installs a dependency binary.
func (m *Manager) downloadAndInstall(ctx context.Context, name BinaryName) error {
	log := m.log.With(slog.String("binary", string(name)))

	binPath := m.GetBinaryPath(name)

	url := m.getBinaryURL(name)
	if url == "" {
		return fmt.Errorf("no download URL configured for %s on %s", name, m.platform)
	}

	log.InfoContext(ctx, "downloading binary", slog.String("url", url))

	binPaths, err := m.downloadDependency(ctx, url, name)
	if err != nil {
		return fmt.Errorf("download dependency: %w", err)
	}

	err = m.makeExecutable(binPaths)
	if err != nil {
		return fmt.Errorf("make executable: %w", err)
	}

	// an archive can install several tools, ffmpeg brings ffprobe
	for _, path := range binPaths {
		m.setBinaryPath(BinaryName(strings.TrimSuffix(filepath.Base(path), ".exe")))
	}

	log.InfoContext(ctx, "binary installed successfully", slog.String("path", binPath))

	return nil
}

// makeExecutable sets the executable permission on a binary file.
func (m *Manager) makeExecutable(binPaths []string) error {
	for _, path := range binPaths {
		err := os.Chmod(path, filePermExecutable)
		if err != nil {
			return fmt.Errorf("chmod: %w", err)
		}
	}

	return nil
}

func (m *Manager) getBinaryURL(name BinaryName) string {
	cfg := m.cfg.DepManager

	switch name {
	case BinaryYTdlp:
		return m.selectURL(cfg.YTdlpLinuxARM64, cfg.YTdlpLinuxAMD64)
	case BinaryFFmpeg, BinaryFFprobe:
		return m.selectURL(cfg.FFmpegLinuxARM64, cfg.FFmpegLinuxAMD64)
	case BinaryDeno:
		return m.selectURL(cfg.DenoLinuxARM64, cfg.DenoLinuxAMD64)
	}

	return ""
}

// selectURL picks the release build for the running architecture, amd64 otherwise.
func (m *Manager) selectURL(linuxARM64, linuxAMD64 string) string {
	if m.platform.OS == platformLinux && m.platform.Arch == archARM64 && linuxARM64 != "" {
		return linuxARM64
	}

	return linuxAMD64
}

// downloadDependency downloads and installs a binary dependency from a URL. Returns installed paths.
func (m *Manager) downloadDependency(ctx context.Context, url string, name BinaryName) ([]string, error) {
	binPath := m.GetBinaryPath(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	needsExtraction := strings.HasSuffix(url, ".zip") ||
		strings.HasSuffix(url, ".tar.xz") ||
		strings.HasSuffix(url, ".tar.gz")

	destDir := filepath.Dir(binPath)

	tmpFile, err := os.CreateTemp(destDir, "download-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	tmpPath := tmpFile.Name()

	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	var installedPaths []string

	if needsExtraction {
		targets := m.getFilesNeeded(name)

		err = m.extractFiles(tmpPath, destDir, url, targets)
		if err != nil {
			return nil, fmt.Errorf("extract: %w", err)
		}

		for target := range targets {
			installedPaths = append(installedPaths, filepath.Join(destDir, target))
		}
	}

	if !needsExtraction {
		err = os.Rename(tmpPath, binPath)
		if err != nil {
			return nil, fmt.Errorf("rename: %w", err)
		}

		installedPaths = append(installedPaths, binPath)
	}

	return installedPaths, nil
}

// getFilesNeeded returns the set of files needed from an archive for a given binary.
func (m *Manager) getFilesNeeded(name BinaryName) map[string]struct{} {
	files := make(map[string]struct{})

	switch name {
	case BinaryFFmpeg:
		files["ffmpeg"] = struct{}{}
		files["ffprobe"] = struct{}{}
	case BinaryDeno:
		files["deno"] = struct{}{}
	default:
		files[string(name)] = struct{}{}
	}

	return files
}

func (m *Manager) extractFiles(archivePath, destDir, url string, targets map[string]struct{}) error {
	switch {
	case strings.HasSuffix(url, ".zip"):
		return m.extractFromZip(archivePath, destDir, targets)
	case strings.HasSuffix(url, ".tar.xz"):
		return m.extractFromTarXZ(archivePath, destDir, targets)
	case strings.HasSuffix(url, ".tar.gz"):
		return m.extractFromTarGZ(archivePath, destDir, targets)
	default:
		return errors.New("unsupported archive format")
	}
}

func (m *Manager) extractFromZip(zipPath, destDir string, targets map[string]struct{}) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	extracted := 0

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}

		filename := file.FileInfo().Name()
		if _, ok := targets[filename]; !ok {
			continue
		}

		fileReader, err := file.Open()
		if err != nil {
			return fmt.Errorf("open file in zip: %w", err)
		}

		destPath := filepath.Join(destDir, filename)

		outFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermExecutable)
		if err != nil {
			fileReader.Close()

			return fmt.Errorf("create dest file: %w", err)
		}

		_, err = io.Copy(outFile, fileReader)
		fileReader.Close()
		outFile.Close()

		if err != nil {
			return fmt.Errorf("extract file: %w", err)
		}

		extracted++

		if extracted == len(targets) {
			return nil
		}
	}

	if extracted == 0 {
		return errors.New("no target files found in zip archive")
	}

	return nil
}

func (m *Manager) extractFromTarXZ(tarXZPath, destDir string, targets map[string]struct{}) error {
	file, err := os.Open(tarXZPath)
	if err != nil {
		return fmt.Errorf("open tar.xz: %w", err)
	}
	defer file.Close()

	xzReader, err := xz.NewReader(file)
	if err != nil {
		return fmt.Errorf("create xz reader: %w", err)
	}

	return m.extractTarSelected(xzReader, destDir, targets)
}

func (m *Manager) extractFromTarGZ(tarGZPath, destDir string, targets map[string]struct{}) error {
	file, err := os.Open(tarGZPath)
	if err != nil {
		return fmt.Errorf("open tar.gz: %w", err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzReader.Close()

	return m.extractTarSelected(gzReader, destDir, targets)
}

func (m *Manager) extractTarSelected(reader io.Reader, destDir string, targets map[string]struct{}) error {
	tarReader := tar.NewReader(reader)
	extracted := 0

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}

		filename := filepath.Base(header.Name)
		if _, ok := targets[filename]; !ok {
			continue
		}

		destPath := filepath.Join(destDir, filename)

		outFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermExecutable)
		if err != nil {
			return fmt.Errorf("create dest file: %w", err)
		}

		_, err = io.Copy(outFile, tarReader)
		outFile.Close()

		if err != nil {
			return fmt.Errorf("extract file: %w", err)
		}

		extracted++

		if extracted == len(targets) {
			return nil
		}
	}

	if extracted == 0 {
		return errors.New("no target files found in tar archive")
	}

	return nil
}
