package entity

import "testing"

func TestParseMergePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    MergePolicy
		wantErr bool
	}{
		{"", PolicyAutoMerge, false},
		{"auto-merge", PolicyAutoMerge, false},
		{"Merge", PolicyAutoMerge, false},
		{"auto", PolicyAutoMerge, false},
		{"keep-separate", PolicyKeepSeparate, false},
		{" separate ", PolicyKeepSeparate, false},
		{"both", "", true},
	}

	for _, tc := range tests {
		got, err := ParseMergePolicy(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseMergePolicy(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
		}

		if got != tc.want {
			t.Errorf("ParseMergePolicy(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRawFormatTracks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                 string
		f                    RawFormat
		video, audio, aOnly bool
	}{
		{"complete", RawFormat{VideoCodec: "h264", AudioCodec: "aac"}, true, true, false},
		{"video only", RawFormat{VideoCodec: "vp9", AudioCodec: CodecNone}, true, false, false},
		{"audio only", RawFormat{VideoCodec: CodecNone, AudioCodec: "opus"}, false, true, true},
		{"empty codecs", RawFormat{}, false, false, false},
	}

	for _, tc := range tests {
		if tc.f.HasVideo() != tc.video || tc.f.HasAudio() != tc.audio || tc.f.IsAudioOnly() != tc.aOnly {
			t.Errorf("%s: got video=%v audio=%v audioOnly=%v", tc.name, tc.f.HasVideo(), tc.f.HasAudio(), tc.f.IsAudioOnly())
		}
	}
}

func TestShortenDescription(t *testing.T) {
	t.Parallel()

	if got := ShortenDescription("short", 200); got != "short" {
		t.Errorf("got %q", got)
	}

	if got := ShortenDescription("héllo world", 5); got != "héllo..." {
		t.Errorf("got %q, want %q", got, "héllo...")
	}
}

func TestJobStatusTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []JobStatus{JobStatusFinished, JobStatusError, JobStatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	for _, s := range []JobStatus{JobStatusQueued, JobStatusDownloading, JobStatusMerging} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
