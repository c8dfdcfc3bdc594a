// Package formats turns the raw format list of a video into a short, ranked quality menu.
package formats

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"vidfetch/internal/entity"
)

type identity struct {
	rank int
	key  string
}

// BuildMenu classifies, deduplicates and orders descriptors.
//
// Video with a known height becomes a complete option (rank 1) when it carries
// audio and a merge-needed option (rank 2) paired with the best audio-only
// format otherwise. Video without a height is dropped, even with audio, so a
// complete format never shows up as audio-only. Audio-only formats (rank 3) are listed only when
// includeAudioOnly is set. Within a rank the first option per identity key
// survives, and since descriptors are visited from best to worst that is the
// highest quality one.
func BuildMenu(descriptors []entity.RawFormat, includeAudioOnly bool) []entity.FormatOption {
	bestAudio, haveAudio := BestAudio(descriptors)

	sorted := slices.Clone(descriptors)
	slices.SortStableFunc(sorted, func(a, b entity.RawFormat) int {
		return cmp.Or(
			cmp.Compare(b.Height, a.Height),
			cmp.Compare(b.Width, a.Width),
			cmp.Compare(b.Bitrate, a.Bitrate),
		)
	})

	seen := make(map[identity]struct{}, len(sorted))
	menu := make([]entity.FormatOption, 0, len(sorted))

	for _, d := range sorted {
		if d.FormatID == "" {
			continue
		}

		opt := entity.FormatOption{
			FormatID:     d.FormatID,
			HasVideo:     d.HasVideo(),
			HasAudio:     d.HasAudio(),
			Height:       d.Height,
			FPS:          d.FPS,
			AudioBitrate: d.AudioBitrate,
			Container:    d.Container,
			FileSize:     d.FileSize,
		}

		var key string

		switch {
		case d.HasVideo() && d.Height > 0:
			key = strconv.Itoa(d.Height) + "_" + strconv.Itoa(d.FPS)

			if d.HasAudio() {
				opt.RankClass = entity.RankComplete
			} else {
				opt.RankClass = entity.RankMergeVideo
				opt.MergeNeeded = true

				if haveAudio {
					opt.PairedAudioFormatID = bestAudio.FormatID
				}
			}
		case d.IsAudioOnly() && includeAudioOnly:
			opt.RankClass = entity.RankAudioOnly
			key = strconv.FormatFloat(d.AudioBitrate, 'f', -1, 64)
		default:
			continue
		}

		id := identity{rank: opt.RankClass, key: key}
		if _, dup := seen[id]; dup {
			continue
		}

		seen[id] = struct{}{}

		var paired *entity.RawFormat
		if opt.MergeNeeded && haveAudio {
			paired = &bestAudio
		}

		opt.Label = Label(opt, paired)
		menu = append(menu, opt)
	}

	slices.SortStableFunc(menu, func(a, b entity.FormatOption) int {
		return cmp.Or(
			cmp.Compare(a.RankClass, b.RankClass),
			cmp.Compare(b.Height, a.Height),
			cmp.Compare(b.FPS, a.FPS),
		)
	})

	return menu
}

// BestAudio returns the audio-only descriptor with the highest audio bitrate.
// On ties the first one wins.
func BestAudio(descriptors []entity.RawFormat) (entity.RawFormat, bool) {
	var (
		best  entity.RawFormat
		found bool
	)

	for _, d := range descriptors {
		if !d.IsAudioOnly() {
			continue
		}

		if !found || d.AudioBitrate > best.AudioBitrate {
			best, found = d, true
		}
	}

	return best, found
}

// Label renders the menu text of opt. paired is the audio stream a merge-needed option is combined with.
func Label(opt entity.FormatOption, paired *entity.RawFormat) string {
	var b strings.Builder

	switch opt.RankClass {
	case entity.RankAudioOnly:
		fmt.Fprintf(&b, "Audio only - %skbps", formatBitrate(opt.AudioBitrate))

		if opt.Container != "" {
			fmt.Fprintf(&b, " (%s)", strings.ToUpper(opt.Container))
		}
	default:
		fmt.Fprintf(&b, "%dp", opt.Height)

		if opt.FPS > 0 {
			fmt.Fprintf(&b, "@%dfps", opt.FPS)
		}

		if opt.MergeNeeded {
			b.WriteString(" Auto-merge")

			if paired != nil {
				fmt.Fprintf(&b, " + %skbps audio", formatBitrate(paired.AudioBitrate))
			}
		} else {
			b.WriteString(" Complete")
		}
	}

	if opt.FileSize > 0 {
		fmt.Fprintf(&b, " (%dMB)", opt.FileSize/1024/1024)
	}

	return b.String()
}

func formatBitrate(v float64) string {
	if v <= 0 {
		return "?"
	}

	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Find returns the option with formatID.
func Find(menu []entity.FormatOption, formatID string) (entity.FormatOption, bool) {
	i := slices.IndexFunc(menu, func(o entity.FormatOption) bool { return o.FormatID == formatID })
	if i < 0 {
		return entity.FormatOption{}, false
	}

	return menu[i], true
}
