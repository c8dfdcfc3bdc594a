package shellquote_test

import (
	"testing"

	"vidfetch/pkg/shellquote"
)

func TestJoin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		bin  string
		args []string
		want string
	}{
		{
			name: "no args",
			bin:  "/usr/bin/yt-dlp",
			want: "/usr/bin/yt-dlp",
		},
		{
			name: "format selector stays bare",
			bin:  "yt-dlp",
			args: []string{"--format", "137+bestaudio/best"},
			want: "yt-dlp --format 137+bestaudio/best",
		},
		{
			name: "output template with spaces and parens",
			bin:  "yt-dlp",
			args: []string{"-o", "/tmp/My Video_merged.%(ext)s"},
			want: `yt-dlp -o "/tmp/My Video_merged.%(ext)s"`,
		},
		{
			name: "url with query chars",
			bin:  "yt-dlp",
			args: []string{"https://www.youtube.com/watch?v=a&t=1"},
			want: `yt-dlp "https://www.youtube.com/watch?v=a&t=1"`,
		},
		{
			name: "shell specials escaped",
			bin:  "yt-dlp",
			args: []string{"a\"b$c`d\\e", ""},
			want: `yt-dlp "a\"b\$c\` + "`" + `d\\e" ""`,
		},
		{
			name: "newline and tab",
			bin:  "yt-dlp",
			args: []string{"a\nb\tc"},
			want: `yt-dlp "a\nb\tc"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := shellquote.Join(tc.bin, tc.args); got != tc.want {
				t.Errorf("Join() = %s, want %s", got, tc.want)
			}
		})
	}
}
