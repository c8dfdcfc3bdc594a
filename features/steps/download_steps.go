//go:build integration

package steps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vidfetch/internal/entity"
	"vidfetch/internal/extractor"

	"github.com/cucumber/godog"
)

// downloadContext holds test state for download scenarios
type downloadContext struct {
	url       string
	opts      extractor.MockOptions
	tmp       string
	downloads string
	session   *session
	job       *entity.Job
	events    []entity.ProgressEvent
	err       error
}

// SharedDownloadContext is reset before each scenario via Before hook
var SharedDownloadContext *downloadContext

func getDownloadContext() *downloadContext {
	return SharedDownloadContext
}

func InitializeDownloadScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		tmp, err := os.MkdirTemp("", "vidfetch-download-*")
		if err != nil {
			return c, err
		}

		SharedDownloadContext = &downloadContext{
			tmp:       tmp,
			downloads: filepath.Join(tmp, "downloads"),
			opts:      extractor.MockOptions{DownloadErrs: map[string]error{}},
		}

		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		d := getDownloadContext()
		d.session.close()
		_ = os.RemoveAll(d.tmp)

		SharedDownloadContext = nil

		return c, nil
	})

	ctx.Step(`^the video "([^"]*)" titled "([^"]*)"$`, theVideoTitled)
	ctx.Step(`^the destination folder cannot be created$`, theDestinationFolderCannotBeCreated)
	ctx.Step(`^downloading format "([^"]*)" fails with "([^"]*)"$`, downloadingFormatFailsWith)
	ctx.Step(`^I download format "([^"]*)" with merge policy "([^"]*)"$`, iDownloadFormatWithMergePolicy)
	ctx.Step(`^the download succeeds with (\d+) outputs?$`, theDownloadSucceedsWithOutputs)
	ctx.Step(`^output (\d+) is named "([^"]*)"$`, outputIsNamed)
	ctx.Step(`^exactly (\d+) streams complete in the order "([^"]*)"$`, streamsCompleteInOrder)
	ctx.Step(`^merging starts once before the download succeeds$`, mergingStartsOnceBeforeSuccess)
	ctx.Step(`^the only event is a failure of kind "([^"]*)"$`, theOnlyEventIsAFailureOfKind)
	ctx.Step(`^no stream download was attempted$`, noStreamDownloadWasAttempted)
	ctx.Step(`^the download fails with kind "([^"]*)"$`, theDownloadFailsWithKind)
}

func theVideoTitled(url, title string) error {
	d := getDownloadContext()
	d.url = url
	d.opts.Metadata = &entity.VideoMetadata{ID: "dQw4w9WgXcQ", Title: title, DurationSeconds: 212}

	return nil
}

// theDestinationFolderCannotBeCreated puts a regular file where the downloads folder should be.
func theDestinationFolderCannotBeCreated() error {
	d := getDownloadContext()

	return os.WriteFile(d.downloads, []byte("not a folder"), 0o600)
}

func downloadingFormatFailsWith(formatID, msg string) error {
	getDownloadContext().opts.DownloadErrs[formatID] = errors.New(msg)
	return nil
}

func iDownloadFormatWithMergePolicy(formatID, policy string) error {
	d := getDownloadContext()
	d.session = newSession(d.opts, d.downloads)

	ctx, cancel := context.WithTimeout(context.Background(), stepTimeout)
	defer cancel()

	job, events, err := d.session.svc.StartDownload(ctx, d.url, formatID, entity.MergePolicy(policy), "")
	if err != nil {
		d.err = err
		return nil
	}

	d.job = job
	d.events = collect(events)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("download did not finish: %w", err)
	}

	return nil
}

func (d *downloadContext) terminal() (entity.ProgressEvent, error) {
	if d.err != nil {
		return entity.ProgressEvent{}, fmt.Errorf("download was not started: %w", d.err)
	}

	if len(d.events) == 0 {
		return entity.ProgressEvent{}, errors.New("no events received")
	}

	return d.events[len(d.events)-1], nil
}

func (d *downloadContext) ofKind(kind entity.EventKind) []entity.ProgressEvent {
	var out []entity.ProgressEvent

	for _, ev := range d.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}

	return out
}

func theDownloadSucceedsWithOutputs(n int) error {
	last, err := getDownloadContext().terminal()
	if err != nil {
		return err
	}

	if last.Kind != entity.EventSuccess {
		return fmt.Errorf("expected success, got %s: %s", last.Kind, last.Message)
	}

	if len(last.Outputs) != n {
		return fmt.Errorf("expected %d outputs, got %v", n, last.Outputs)
	}

	for _, p := range last.Outputs {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("output missing on disk: %w", err)
		}
	}

	return nil
}

func outputIsNamed(n int, name string) error {
	last, err := getDownloadContext().terminal()
	if err != nil {
		return err
	}

	if n < 1 || n > len(last.Outputs) {
		return fmt.Errorf("no output %d in %v", n, last.Outputs)
	}

	if got := filepath.Base(last.Outputs[n-1]); got != name {
		return fmt.Errorf("output %d is %q, want %q", n, got, name)
	}

	return nil
}

func streamsCompleteInOrder(n int, order string) error {
	done := getDownloadContext().ofKind(entity.EventStreamComplete)
	if len(done) != n {
		return fmt.Errorf("expected %d completed streams, got %d", n, len(done))
	}

	got := make([]string, 0, len(done))
	for _, ev := range done {
		got = append(got, ev.Stream)
	}

	if strings.Join(got, ",") != order {
		return fmt.Errorf("streams completed as %v, want %s", got, order)
	}

	return nil
}

func mergingStartsOnceBeforeSuccess() error {
	d := getDownloadContext()

	merge, success := -1, -1

	for i, ev := range d.events {
		switch ev.Kind {
		case entity.EventMergeStarted:
			if merge >= 0 {
				return errors.New("merging started twice")
			}

			merge = i
		case entity.EventSuccess:
			success = i
		}
	}

	if merge < 0 || success < 0 || merge > success {
		return fmt.Errorf("merge at %d, success at %d", merge, success)
	}

	return nil
}

func theOnlyEventIsAFailureOfKind(kind string) error {
	d := getDownloadContext()
	if d.err != nil {
		return fmt.Errorf("download was not started: %w", d.err)
	}

	if len(d.events) != 1 {
		return fmt.Errorf("expected one event, got %+v", d.events)
	}

	ev := d.events[0]
	if ev.Kind != entity.EventFailure || ev.Failure != kind {
		return fmt.Errorf("expected a %s failure, got %+v", kind, ev)
	}

	return nil
}

func noStreamDownloadWasAttempted() error {
	if calls := getDownloadContext().session.mock.Downloads(); len(calls) != 0 {
		return fmt.Errorf("unexpected downloads %+v", calls)
	}

	return nil
}

func theDownloadFailsWithKind(kind string) error {
	last, err := getDownloadContext().terminal()
	if err != nil {
		return err
	}

	if last.Kind != entity.EventFailure || last.Failure != kind {
		return fmt.Errorf("expected a %s failure, got %+v", kind, last)
	}

	if len(getDownloadContext().ofKind(entity.EventSuccess)) != 0 {
		return errors.New("a failed download also reported success")
	}

	return nil
}
