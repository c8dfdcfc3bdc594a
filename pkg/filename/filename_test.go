package filename_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"vidfetch/pkg/filename"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"empty", "", "video"},
		{"only illegal", `<>:"/\|?*`, "video"},
		{"only whitespace", " \u00a0  ", "video"},
		{"plain", "My Video", "My Video"},
		{"illegal removed", `What? A "Cool" Video: Part 1/2`, "What A Cool Video Part 12"},
		{"control chars removed before collapsing", "a\tb\nc\x00d", "abcd"},
		{"whitespace collapsed", "  lots   of\u00a0\u00a0space  ", "lots of space"},
		{"unicode kept", "Ünïcödé — 日本語", "Ünïcödé — 日本語"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := filename.Sanitize(tc.title); got != tc.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tc.title, got, tc.want)
			}
		})
	}
}

func TestSanitizeTruncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("я", 250)

	got := filename.Sanitize(long)
	if n := utf8.RuneCountInString(got); n != filename.MaxLength {
		t.Errorf("got %d characters, want %d", n, filename.MaxLength)
	}

	// a space right at the cut must not survive
	edge := strings.Repeat("a", filename.MaxLength-1) + " b"

	got = filename.Sanitize(edge)
	if strings.HasSuffix(got, " ") {
		t.Errorf("Sanitize() left trailing space: %q", got)
	}
}

func TestSanitizeProperties(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"simple",
		"  padded  ",
		strings.Repeat("x y ", 80),
		strings.Repeat("a", filename.MaxLength-1) + "   bcd",
		"tab\tand\nnewline",
		`C:\Users\me\video?.mp4`,
		"\x01\x02\x1f",
		strings.Repeat("<|>", 100) + "ok",
	}

	for _, in := range inputs {
		once := filename.Sanitize(in)

		if twice := filename.Sanitize(once); twice != once {
			t.Errorf("not idempotent for %q: %q != %q", in, twice, once)
		}

		if utf8.RuneCountInString(once) > filename.MaxLength {
			t.Errorf("too long for %q: %d", in, utf8.RuneCountInString(once))
		}

		if strings.ContainsAny(once, `<>:"/\|?*`) {
			t.Errorf("illegal character left in %q", once)
		}

		for _, r := range once {
			if r < 0x20 {
				t.Errorf("control character %U left in %q", r, once)
			}
		}
	}
}
