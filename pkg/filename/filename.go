// Package filename turns arbitrary titles into names that are safe on common filesystems.
package filename

import (
	"strings"
)

const (
	// MaxLength is the maximum length of a sanitized name, in characters.
	MaxLength = 200
	// Fallback is returned when nothing usable is left of the input.
	Fallback = "video"

	illegal = `<>:"/\|?*`
)

// Sanitize removes characters that are illegal on common filesystems
// (`< > : " / \ | ? *` and control characters 0-31), collapses whitespace
// runs to a single space, trims the result and caps it at MaxLength
// characters. It never fails: an empty result becomes Fallback.
//
// Sanitize is idempotent.
func Sanitize(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(illegal, r) {
			return -1
		}

		return r
	}, title)

	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if runes := []rune(cleaned); len(runes) > MaxLength {
		// cutting may leave a trailing space behind
		cleaned = strings.TrimSpace(string(runes[:MaxLength]))
	}

	if cleaned == "" {
		return Fallback
	}

	return cleaned
}
