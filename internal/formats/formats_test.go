package formats

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"vidfetch/internal/entity"
)

func scenarioDescriptors() []entity.RawFormat {
	return []entity.RawFormat{
		{FormatID: "18", VideoCodec: "h264", AudioCodec: "aac", Height: 360, Container: "mp4"},
		{FormatID: "137", VideoCodec: "h264", AudioCodec: "none", Height: 1080, Container: "mp4"},
		{FormatID: "140", VideoCodec: "none", AudioCodec: "aac", AudioBitrate: 128, Container: "m4a"},
	}
}

func TestBuildMenuWithoutAudioOnly(t *testing.T) {
	t.Parallel()

	menu := BuildMenu(scenarioDescriptors(), false)
	if len(menu) != 2 {
		t.Fatalf("expected 2 options, got %d: %+v", len(menu), menu)
	}

	merge, ok := Find(menu, "137")
	if !ok {
		t.Fatal("option 137 missing")
	}

	if merge.RankClass != entity.RankMergeVideo || !merge.MergeNeeded || merge.PairedAudioFormatID != "140" {
		t.Errorf("unexpected 137 option: %+v", merge)
	}

	complete, ok := Find(menu, "18")
	if !ok {
		t.Fatal("option 18 missing")
	}

	if complete.RankClass != entity.RankComplete || complete.MergeNeeded || complete.PairedAudioFormatID != "" {
		t.Errorf("unexpected 18 option: %+v", complete)
	}

	if menu[0].FormatID != "18" || menu[1].FormatID != "137" {
		t.Errorf("complete options sort first, got %s, %s", menu[0].FormatID, menu[1].FormatID)
	}

	if _, ok := Find(menu, "140"); ok {
		t.Error("audio-only option listed without includeAudioOnly")
	}
}

func TestBuildMenuWithAudioOnly(t *testing.T) {
	t.Parallel()

	menu := BuildMenu(scenarioDescriptors(), true)
	if len(menu) != 3 {
		t.Fatalf("expected 3 options, got %d: %+v", len(menu), menu)
	}

	last := menu[len(menu)-1]
	if last.FormatID != "140" || last.RankClass != entity.RankAudioOnly {
		t.Errorf("expected audio-only 140 last, got %+v", last)
	}

	if last.HasVideo || !last.HasAudio || last.MergeNeeded {
		t.Errorf("unexpected audio-only flags: %+v", last)
	}
}

func TestBuildMenuEmpty(t *testing.T) {
	t.Parallel()

	if menu := BuildMenu(nil, true); len(menu) != 0 {
		t.Errorf("expected empty menu, got %+v", menu)
	}
}

func TestBuildMenuDedup(t *testing.T) {
	t.Parallel()

	in := []entity.RawFormat{
		{FormatID: "a", VideoCodec: "vp9", AudioCodec: "none", Height: 720, FPS: 30, Bitrate: 900},
		{FormatID: "b", VideoCodec: "avc1", AudioCodec: "none", Height: 720, FPS: 30, Bitrate: 1500},
		{FormatID: "c", VideoCodec: "avc1", AudioCodec: "none", Height: 720, FPS: 60, Bitrate: 2500},
		{FormatID: "d", VideoCodec: "avc1", AudioCodec: "mp4a", Height: 720, FPS: 30},
		{FormatID: "e", VideoCodec: "none", AudioCodec: "opus", AudioBitrate: 160},
		{FormatID: "f", VideoCodec: "none", AudioCodec: "mp4a", AudioBitrate: 160},
		{FormatID: "", VideoCodec: "avc1", AudioCodec: "mp4a", Height: 2160},
		{FormatID: "g", VideoCodec: "avc1", AudioCodec: "none"},
		{FormatID: "h", VideoCodec: "none", AudioCodec: "none"},
	}

	menu := BuildMenu(in, true)

	got := make([]string, 0, len(menu))
	for _, o := range menu {
		got = append(got, o.FormatID)
	}

	want := "d,c,b,e"
	if strings.Join(got, ",") != want {
		t.Errorf("menu = %v, want %s", got, want)
	}

	for _, o := range menu {
		if o.MergeNeeded && o.PairedAudioFormatID != "e" {
			t.Errorf("option %s paired with %q, want e (first of the tied best)", o.FormatID, o.PairedAudioFormatID)
		}
	}
}

func TestBuildMenuNoAudioToPair(t *testing.T) {
	t.Parallel()

	menu := BuildMenu([]entity.RawFormat{
		{FormatID: "137", VideoCodec: "avc1", AudioCodec: "none", Height: 1080},
	}, false)

	if len(menu) != 1 || !menu[0].MergeNeeded || menu[0].PairedAudioFormatID != "" {
		t.Errorf("unexpected menu: %+v", menu)
	}
}

func TestLabel(t *testing.T) {
	t.Parallel()

	audio := entity.RawFormat{FormatID: "140", AudioBitrate: 129.5}

	tests := []struct {
		name   string
		opt    entity.FormatOption
		paired *entity.RawFormat
		want   []string
	}{
		{
			name: "complete",
			opt:  entity.FormatOption{RankClass: entity.RankComplete, Height: 360, FPS: 30, FileSize: 10 << 20},
			want: []string{"360p", "@30fps", "Complete", "(10MB)"},
		},
		{
			name:   "merge",
			opt:    entity.FormatOption{RankClass: entity.RankMergeVideo, MergeNeeded: true, Height: 1080},
			paired: &audio,
			want:   []string{"1080p", "Auto-merge", "129.5kbps audio"},
		},
		{
			name: "audio",
			opt:  entity.FormatOption{RankClass: entity.RankAudioOnly, AudioBitrate: 128, Container: "m4a"},
			want: []string{"Audio only", "128kbps", "(M4A)"},
		},
	}

	for _, tc := range tests {
		got := Label(tc.opt, tc.paired)
		for _, w := range tc.want {
			if !strings.Contains(got, w) {
				t.Errorf("%s: label %q lacks %q", tc.name, got, w)
			}
		}
	}

	if got := Label(entity.FormatOption{RankClass: entity.RankComplete, Height: 480}, nil); strings.Contains(got, "fps") || strings.Contains(got, "MB") {
		t.Errorf("unknown fps and size must be omitted, got %q", got)
	}
}

func randomDescriptors(r *rand.Rand) []entity.RawFormat {
	vcodecs := []string{"none", "avc1", "vp9", ""}
	acodecs := []string{"none", "mp4a", "opus", ""}
	heights := []int{0, 144, 360, 720, 1080}
	fpss := []int{0, 30, 60}
	abrs := []float64{0, 48, 128, 160}

	n := r.IntN(20)
	out := make([]entity.RawFormat, 0, n)

	for i := range n {
		id := fmt.Sprintf("f%d", i)
		if r.IntN(10) == 0 {
			id = ""
		}

		out = append(out, entity.RawFormat{
			FormatID:     id,
			VideoCodec:   vcodecs[r.IntN(len(vcodecs))],
			AudioCodec:   acodecs[r.IntN(len(acodecs))],
			Height:       heights[r.IntN(len(heights))],
			FPS:          fpss[r.IntN(len(fpss))],
			Width:        r.IntN(3) * 640,
			Bitrate:      float64(r.IntN(5000)),
			AudioBitrate: abrs[r.IntN(len(abrs))],
		})
	}

	return out
}

func TestBuildMenuProperties(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(1, 2))

	for iter := range 500 {
		in := randomDescriptors(r)
		includeAudio := iter%2 == 0
		menu := BuildMenu(in, includeAudio)

		best, haveBest := BestAudio(in)
		byID := make(map[string]entity.RawFormat, len(in))

		for _, d := range in {
			byID[d.FormatID] = d
		}

		seen := make(map[string]bool)

		for i, o := range menu {
			if i > 0 {
				p := menu[i-1]
				if p.RankClass > o.RankClass ||
					(p.RankClass == o.RankClass && p.Height < o.Height) ||
					(p.RankClass == o.RankClass && p.Height == o.Height && p.FPS < o.FPS) {
					t.Fatalf("iter %d: menu out of order at %d: %+v", iter, i, menu)
				}
			}

			key := fmt.Sprintf("%d/%d/%d", o.RankClass, o.Height, o.FPS)
			if o.RankClass == entity.RankAudioOnly {
				key = fmt.Sprintf("3/%v", o.AudioBitrate)
			}

			if seen[key] {
				t.Fatalf("iter %d: duplicate identity %s in %+v", iter, key, menu)
			}

			seen[key] = true

			if o.MergeNeeded && haveBest && o.PairedAudioFormatID != best.FormatID {
				t.Fatalf("iter %d: paired %q, want %q", iter, o.PairedAudioFormatID, best.FormatID)
			}

			d := byID[o.FormatID]
			if d.HasVideo() && d.HasAudio() && o.RankClass != entity.RankComplete {
				t.Fatalf("iter %d: complete descriptor %s ranked %d", iter, o.FormatID, o.RankClass)
			}

			if o.RankClass == entity.RankAudioOnly && !includeAudio {
				t.Fatalf("iter %d: audio-only option without includeAudioOnly", iter)
			}
		}
	}
}
