package extractor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"vidfetch/internal/consts"
	"vidfetch/internal/entity"
	"vidfetch/pkg/calc"
	"vidfetch/pkg/maths"
	"vidfetch/pkg/ptr"
	"vidfetch/pkg/shellquote"

	"github.com/lrstanley/go-ytdlp"
)

var (
	maxLineSize = 10 * 1024 * 1024                                       // 10 MiB scanner buffer
	bufSize     = 4096                                                   // 4 KiB buffer size
	reFilepath  = regexp.MustCompile(`(?i)^[^\{\[\n].*\.[a-z0-9]{1,6}$`) // file path
)

// Result wraps ytdlp.Result for custom logging.
type Result struct {
	*ytdlp.Result
}

// LogValue implements the slog.LogValuer interface for custom logging of Result.
func (r Result) LogValue() slog.Value {
	if r.Result == nil {
		return slog.GroupValue(slog.String("error", "nil result"))
	}

	var outputLogs strings.Builder
	for _, l := range r.OutputLogs {
		fmt.Fprintf(&outputLogs, "%v\n", l)
	}

	return slog.GroupValue(
		slog.String("command", shellquote.Join(r.Executable, r.Args)),
		slog.String("stdout", r.Stdout),
		slog.String("stderr", r.Stderr),
		slog.String("output_logs", outputLogs.String()),
	)
}

// ProgressUpdate wraps ytdlp.ProgressUpdate for custom logging.
type ProgressUpdate struct {
	*ytdlp.ProgressUpdate
}

// LogValue implements the slog.LogValuer interface for custom logging of ProgressUpdate.
func (p ProgressUpdate) LogValue() slog.Value {
	if p.ProgressUpdate == nil {
		return slog.GroupValue(slog.String("error", "nil progress update"))
	}

	done, total := int64(p.DownloadedBytes), int64(p.TotalBytes)

	return slog.GroupValue(
		slog.String("filename", p.Filename),
		slog.String("status", fmt.Sprint(p.Status)),
		slog.Int64("downloaded_bytes", done),
		slog.Int64("total_bytes", total),
		slog.Int("fragment_index", p.FragmentIndex),
		slog.Int("fragment_count", p.FragmentCount),
		slog.Int("progress", calc.Progress(done, total)),
		slog.String("eta", calc.ETA(done, total, p.Started).String()),
	)
}

// InfoJSON is the part of yt-dlp --dump-single-json output vidfetch reads.
type InfoJSON struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description *string      `json:"description"`
	Uploader    *string      `json:"uploader"`
	Channel     *string      `json:"channel"`
	Duration    *float64     `json:"duration"`
	Thumbnail   *string      `json:"thumbnail"`
	WebpageURL  string       `json:"webpage_url"`
	Formats     []FormatJSON `json:"formats"`
}

// FormatJSON is one entry of the formats array. yt-dlp leaves unknown fields null.
type FormatJSON struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	Vcodec         *string  `json:"vcodec"`
	Acodec         *string  `json:"acodec"`
	Width          *float64 `json:"width"`
	Height         *float64 `json:"height"`
	FPS            *float64 `json:"fps"`
	Tbr            *float64 `json:"tbr"`
	Abr            *float64 `json:"abr"`
	Filesize       *float64 `json:"filesize"`
	FilesizeApprox *float64 `json:"filesize_approx"`
}

// ParseInfo decodes a --dump-single-json document.
func ParseInfo(data []byte) (*InfoJSON, error) {
	var info InfoJSON
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode info json: %w", err)
	}

	return &info, nil
}

// Metadata maps the info document to entity.VideoMetadata.
func (i *InfoJSON) Metadata() entity.VideoMetadata {
	uploader := ptr.Deref(i.Uploader)
	if uploader == "" {
		uploader = ptr.Deref(i.Channel)
	}

	return entity.VideoMetadata{
		ID:               i.ID,
		Title:            i.Title,
		DurationSeconds:  maths.RoundFloat64ToInt(ptr.Deref(i.Duration)),
		Uploader:         uploader,
		ThumbnailURL:     ptr.Deref(i.Thumbnail),
		ShortDescription: entity.ShortenDescription(ptr.Deref(i.Description), consts.DescriptionPreviewLen),
	}
}

// RawFormats maps the formats array to entity.RawFormat values in document order.
func (i *InfoJSON) RawFormats() []entity.RawFormat {
	out := make([]entity.RawFormat, 0, len(i.Formats))

	for _, f := range i.Formats {
		size := ptr.Deref(f.Filesize)
		if size <= 0 {
			size = ptr.Deref(f.FilesizeApprox)
		}

		out = append(out, entity.RawFormat{
			FormatID:     f.FormatID,
			VideoCodec:   codec(f.Vcodec),
			AudioCodec:   codec(f.Acodec),
			Height:       maths.NonNegative(maths.RoundFloat64ToInt(ptr.Deref(f.Height))),
			Width:        maths.NonNegative(maths.RoundFloat64ToInt(ptr.Deref(f.Width))),
			FPS:          maths.NonNegative(maths.RoundFloat64ToInt(ptr.Deref(f.FPS))),
			Bitrate:      maths.NonNegative(ptr.Deref(f.Tbr)),
			AudioBitrate: maths.NonNegative(ptr.Deref(f.Abr)),
			FileSize:     maths.NonNegative(int64(size)),
			Container:    f.Ext,
		})
	}

	return out
}

func codec(c *string) string {
	if c == nil || *c == "" {
		return entity.CodecNone
	}

	return *c
}

// ParseFilepaths returns the absolute file paths printed by --print after_move:filepath,
// skipping JSON documents and any other noise on stdout. Duplicates are dropped.
func ParseFilepaths(stdout string) []string {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, bufSize), maxLineSize)

	var (
		files []string
		seen  = make(map[string]struct{})
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !filepath.IsAbs(line) || !reFilepath.MatchString(line) {
			continue
		}

		if _, ok := seen[line]; ok {
			continue
		}

		seen[line] = struct{}{}
		files = append(files, line)
	}

	return files
}

// lastErrorLine returns the last "ERROR:" line of yt-dlp stderr, or its last non-empty line.
func lastErrorLine(stderr string) string {
	var last, lastErr string

	for line := range strings.SplitSeq(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		last = line
		if strings.HasPrefix(line, "ERROR:") {
			lastErr = line
		}
	}

	if lastErr != "" {
		return lastErr
	}

	return last
}
