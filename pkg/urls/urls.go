// Package urls provides utility functions for working with URLs.
package urls

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"
)

// reYouTube matches the single-video URL shapes accepted by IsYouTubeVideo.
var reYouTube = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/watch\?v=([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^https?://(?:www\.)?youtu\.be/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/embed/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/v/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^https?://(?:m\.)?youtube\.com/watch\?v=([a-zA-Z0-9_-]{11})`),
}

// IsURLValid checks if the given URL is valid.
func IsURLValid(raw string) bool {
	u, err := url.Parse(raw)

	return err == nil && u.Scheme != "" && u.Host != "" && (u.Scheme == schemeHTTP || u.Scheme == schemeHTTPS)
}

// IsYouTubeVideo reports whether raw points at a single YouTube video
// (watch, youtu.be, embed, v and mobile watch links).
func IsYouTubeVideo(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}

	for _, re := range reYouTube {
		if re.MatchString(raw) {
			return true
		}
	}

	return false
}

// VideoID returns the 11 character YouTube video id of raw, if any.
func VideoID(raw string) string {
	raw = strings.TrimSpace(raw)

	for _, re := range reYouTube {
		if m := re.FindStringSubmatch(raw); len(m) == 2 {
			return m[1]
		}
	}

	return ""
}

// Normalize trims spaces, parses and returns the URL in string format.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	return u.String()
}
