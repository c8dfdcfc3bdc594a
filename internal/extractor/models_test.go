package extractor

import (
	"slices"
	"strings"
	"testing"

	"vidfetch/internal/entity"
)

const infoFixture = `{
  "id": "dQw4w9WgXcQ",
  "title": "Never Gonna Give You Up",
  "description": null,
  "uploader": null,
  "channel": "Rick Astley",
  "duration": 212.4,
  "thumbnail": "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
  "formats": [
    {"format_id": "sb0", "ext": "mhtml", "vcodec": "none", "acodec": "none", "width": 48, "height": 27},
    {"format_id": "140", "ext": "m4a", "vcodec": "none", "acodec": "mp4a.40.2", "abr": 129.478, "tbr": 129.478, "filesize": 3437753},
    {"format_id": "137", "ext": "mp4", "vcodec": "avc1.640028", "acodec": "none", "width": 1920, "height": 1080, "fps": 25, "tbr": 1990.2, "filesize": null, "filesize_approx": 52862740},
    {"format_id": "18", "ext": "mp4", "vcodec": "avc1.42001E", "acodec": "mp4a.40.2", "width": 640, "height": 360, "fps": 29.97},
    {"format_id": "x", "ext": "mp4"}
  ]
}`

func TestParseInfo(t *testing.T) {
	t.Parallel()

	info, err := ParseInfo([]byte(infoFixture))
	if err != nil {
		t.Fatalf("ParseInfo() failed: %v", err)
	}

	meta := info.Metadata()
	if meta.ID != "dQw4w9WgXcQ" || meta.DurationSeconds != 212 {
		t.Errorf("unexpected metadata: %+v", meta)
	}

	if meta.Uploader != "Rick Astley" {
		t.Errorf("Uploader = %q, want channel fallback", meta.Uploader)
	}

	if meta.ShortDescription != "" {
		t.Errorf("ShortDescription = %q, want empty", meta.ShortDescription)
	}

	got := info.RawFormats()
	if len(got) != 5 {
		t.Fatalf("expected 5 formats, got %d", len(got))
	}

	audio := got[1]
	if !audio.IsAudioOnly() || audio.AudioBitrate != 129.478 || audio.FileSize != 3437753 {
		t.Errorf("unexpected audio format: %+v", audio)
	}

	video := got[2]
	if video.HasAudio() || video.Height != 1080 || video.FPS != 25 || video.FileSize != 52862740 {
		t.Errorf("unexpected video format: %+v", video)
	}

	if got[3].FPS != 30 {
		t.Errorf("fps 29.97 should round to 30, got %d", got[3].FPS)
	}

	if got[4].VideoCodec != entity.CodecNone || got[4].AudioCodec != entity.CodecNone {
		t.Errorf("missing codecs should map to none: %+v", got[4])
	}
}

func TestParseInfoInvalid(t *testing.T) {
	t.Parallel()

	if _, err := ParseInfo([]byte("ERROR: nope")); err == nil {
		t.Error("expected decode error")
	}
}

func TestMetadataDescriptionPreview(t *testing.T) {
	t.Parallel()

	desc := strings.Repeat("a", 250)
	info := &InfoJSON{Description: &desc}

	got := info.Metadata().ShortDescription
	if len([]rune(got)) != 203 || !strings.HasSuffix(got, "...") {
		t.Errorf("unexpected preview of length %d", len(got))
	}
}

func TestParseFilepaths(t *testing.T) {
	t.Parallel()

	stdout := strings.Join([]string{
		`{"id": "abc", "title": "x"}`,
		"/data/My Video_video.mp4",
		"",
		"[download] 100% of 3.2MiB",
		"relative/path.mp4",
		"/data/My Video_audio.m4a",
		"/data/My Video_video.mp4",
	}, "\n")

	got := ParseFilepaths(stdout)
	want := []string{"/data/My Video_video.mp4", "/data/My Video_audio.m4a"}

	if !slices.Equal(got, want) {
		t.Errorf("ParseFilepaths() = %v, want %v", got, want)
	}
}

func TestLastErrorLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stderr string
		want   string
	}{
		{"", ""},
		{"WARNING: slow\nERROR: [youtube] abc: Video unavailable\nsome trace\n", "ERROR: [youtube] abc: Video unavailable"},
		{"line one\nline two\n\n", "line two"},
	}

	for _, tc := range tests {
		if got := lastErrorLine(tc.stderr); got != tc.want {
			t.Errorf("lastErrorLine(%q) = %q, want %q", tc.stderr, got, tc.want)
		}
	}
}

func TestResultLogValueNil(t *testing.T) {
	t.Parallel()

	if v := (Result{}).LogValue(); !strings.Contains(v.String(), "nil result") {
		t.Errorf("unexpected nil result log value: %s", v)
	}

	if v := (ProgressUpdate{}).LogValue(); !strings.Contains(v.String(), "nil progress update") {
		t.Errorf("unexpected nil progress log value: %s", v)
	}
}
