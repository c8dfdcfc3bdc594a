//go:build integration

package steps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/internal/extractor"
	"vidfetch/internal/formats"

	"github.com/cucumber/godog"
)

// menuContext holds test state for quality menu scenarios
type menuContext struct {
	opts    extractor.MockOptions
	session *session
	dir     string
	menu    []entity.FormatOption
	err     error
}

// SharedMenuContext is reset before each scenario via Before hook
var SharedMenuContext *menuContext

func getMenuContext() *menuContext {
	return SharedMenuContext
}

func InitializeMenuScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		dir, err := os.MkdirTemp("", "vidfetch-menu-*")
		if err != nil {
			return c, err
		}

		SharedMenuContext = &menuContext{dir: dir}

		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		m := getMenuContext()
		m.session.close()
		_ = os.RemoveAll(m.dir)

		SharedMenuContext = nil

		return c, nil
	})

	ctx.Step(`^a video with the formats:$`, aVideoWithTheFormats)
	ctx.Step(`^a video with no formats$`, aVideoWithNoFormats)
	ctx.Step(`^the extractor fails to list formats with "([^"]*)"$`, theExtractorFailsToListFormatsWith)
	ctx.Step(`^I list the quality options$`, func() error { return iListTheQualityOptions(false) })
	ctx.Step(`^I list the quality options including audio-only formats$`, func() error { return iListTheQualityOptions(true) })
	ctx.Step(`^the menu has (\d+) options$`, theMenuHasOptions)
	ctx.Step(`^option "([^"]*)" has rank (\d+) and needs no merge$`, optionHasRankAndNeedsNoMerge)
	ctx.Step(`^option "([^"]*)" has rank (\d+) and is merged with audio "([^"]*)"$`, optionHasRankAndIsMergedWithAudio)
	ctx.Step(`^option "([^"]*)" is not offered$`, optionIsNotOffered)
	ctx.Step(`^the last option is "([^"]*)"$`, theLastOptionIs)
	ctx.Step(`^the menu is empty$`, theMenuIsEmpty)
	ctx.Step(`^no error is reported$`, noErrorIsReported)
	ctx.Step(`^the error kind is "([^"]*)"$`, theErrorKindIs)
}

func aVideoWithTheFormats(table *godog.Table) error {
	m := getMenuContext()

	if len(table.Rows) < 2 {
		return errors.New("expected a header and at least one format")
	}

	header := table.Rows[0].Cells
	m.opts.Formats = make([]entity.RawFormat, 0, len(table.Rows)-1)

	for _, row := range table.Rows[1:] {
		var f entity.RawFormat

		for i, cell := range row.Cells {
			v := cell.Value

			switch header[i].Value {
			case "id":
				f.FormatID = v
			case "vcodec":
				f.VideoCodec = v
			case "acodec":
				f.AudioCodec = v
			case "height":
				if v != "" {
					h, err := strconv.Atoi(v)
					if err != nil {
						return fmt.Errorf("height %q: %w", v, err)
					}

					f.Height = h
				}
			case "abr":
				if v != "" {
					abr, err := strconv.ParseFloat(v, 64)
					if err != nil {
						return fmt.Errorf("abr %q: %w", v, err)
					}

					f.AudioBitrate = abr
				}
			default:
				return fmt.Errorf("unknown column %q", header[i].Value)
			}
		}

		m.opts.Formats = append(m.opts.Formats, f)
	}

	return nil
}

func aVideoWithNoFormats() error {
	getMenuContext().opts.Formats = []entity.RawFormat{}
	return nil
}

func theExtractorFailsToListFormatsWith(msg string) error {
	getMenuContext().opts.ListErr = errors.New(msg)
	return nil
}

func iListTheQualityOptions(includeAudioOnly bool) error {
	m := getMenuContext()
	m.session = newSession(m.opts, m.dir)

	ctx, cancel := context.WithTimeout(context.Background(), stepTimeout)
	defer cancel()

	m.menu, m.err = m.session.svc.ListQualityOptions(ctx, "https://youtu.be/dQw4w9WgXcQ", includeAudioOnly)

	return nil
}

func theMenuHasOptions(n int) error {
	m := getMenuContext()
	if m.err != nil {
		return fmt.Errorf("unexpected error: %w", m.err)
	}

	if len(m.menu) != n {
		return fmt.Errorf("expected %d options, got %d: %+v", n, len(m.menu), m.menu)
	}

	return nil
}

func findOption(id string) (entity.FormatOption, error) {
	opt, ok := formats.Find(getMenuContext().menu, id)
	if !ok {
		return opt, fmt.Errorf("option %q not in menu", id)
	}

	return opt, nil
}

func optionHasRankAndNeedsNoMerge(id string, rank int) error {
	opt, err := findOption(id)
	if err != nil {
		return err
	}

	if opt.RankClass != rank || opt.MergeNeeded || opt.PairedAudioFormatID != "" {
		return fmt.Errorf("unexpected option %+v", opt)
	}

	return nil
}

func optionHasRankAndIsMergedWithAudio(id string, rank int, audio string) error {
	opt, err := findOption(id)
	if err != nil {
		return err
	}

	if opt.RankClass != rank || !opt.MergeNeeded || opt.PairedAudioFormatID != audio {
		return fmt.Errorf("unexpected option %+v", opt)
	}

	return nil
}

func optionIsNotOffered(id string) error {
	if _, err := findOption(id); err == nil {
		return fmt.Errorf("option %q should not be offered", id)
	}

	return nil
}

func theLastOptionIs(id string) error {
	m := getMenuContext()
	if len(m.menu) == 0 || m.menu[len(m.menu)-1].FormatID != id {
		return fmt.Errorf("expected %q last in %+v", id, m.menu)
	}

	return nil
}

func theMenuIsEmpty() error {
	m := getMenuContext()
	if m.menu == nil || len(m.menu) != 0 {
		return fmt.Errorf("expected an empty menu, got %+v", m.menu)
	}

	return nil
}

func noErrorIsReported() error {
	if err := getMenuContext().err; err != nil {
		return fmt.Errorf("unexpected error: %w", err)
	}

	return nil
}

func theErrorKindIs(kind string) error {
	err := getMenuContext().err
	if err == nil {
		return errors.New("expected an error")
	}

	if got := errs.KindOf(err); got != errs.Kind(kind) {
		return fmt.Errorf("expected kind %s, got %s", kind, got)
	}

	return nil
}
