package entity

import "log/slog"

// CodecNone is the codec value of a missing track.
const CodecNone = "none"

// Rank classes of a FormatOption. Lower sorts first.
const (
	RankComplete   = 1
	RankMergeVideo = 2
	RankAudioOnly  = 3
)

// RawFormat is one encoding variant as reported by the extraction service.
// Zero numeric fields mean unknown.
type RawFormat struct {
	FormatID     string  `json:"formatId"`
	VideoCodec   string  `json:"vcodec"`
	AudioCodec   string  `json:"acodec"`
	Height       int     `json:"height,omitempty"`
	Width        int     `json:"width,omitempty"`
	FPS          int     `json:"fps,omitempty"`
	Bitrate      float64 `json:"tbr,omitempty"`
	AudioBitrate float64 `json:"abr,omitempty"`
	FileSize     int64   `json:"filesize,omitempty"`
	Container    string  `json:"ext"`
}

func hasTrack(codec string) bool {
	return codec != "" && codec != CodecNone
}

// HasVideo reports whether the format carries a video track.
func (f RawFormat) HasVideo() bool { return hasTrack(f.VideoCodec) }

// HasAudio reports whether the format carries an audio track.
func (f RawFormat) HasAudio() bool { return hasTrack(f.AudioCodec) }

// IsAudioOnly reports whether the format has audio and no video.
func (f RawFormat) IsAudioOnly() bool { return f.HasAudio() && !f.HasVideo() }

// FormatOption is one entry of the quality menu shown to a user.
type FormatOption struct {
	FormatID            string  `json:"formatId"`
	Label               string  `json:"label"`
	HasVideo            bool    `json:"hasVideo"`
	HasAudio            bool    `json:"hasAudio"`
	MergeNeeded         bool    `json:"mergeNeeded"`
	PairedAudioFormatID string  `json:"pairedAudioFormatId,omitempty"`
	Height              int     `json:"height"`
	FPS                 int     `json:"fps"`
	AudioBitrate        float64 `json:"audioBitrate,omitempty"`
	Container           string  `json:"container"`
	FileSize            int64   `json:"fileSize,omitempty"`
	RankClass           int     `json:"rankClass"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (o FormatOption) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("format_id", o.FormatID),
		slog.Int("rank_class", o.RankClass),
		slog.Int("height", o.Height),
		slog.Int("fps", o.FPS),
		slog.Bool("merge_needed", o.MergeNeeded),
		slog.String("paired_audio", o.PairedAudioFormatID),
	)
}

// VideoMetadata describes a video independently of its formats.
type VideoMetadata struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	DurationSeconds  int    `json:"durationSeconds"`
	Uploader         string `json:"uploader"`
	ThumbnailURL     string `json:"thumbnailUrl,omitempty"`
	ShortDescription string `json:"shortDescription,omitempty"`
}

// ShortenDescription keeps the first n characters of s and marks the cut with "...".
func ShortenDescription(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n]) + "..."
}
