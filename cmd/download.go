package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/internal/service"
	"vidfetch/pkg/calc"

	"github.com/spf13/cobra"
)

// DownloadInput are the flags of the download command.
type DownloadInput struct {
	URL      string
	FormatID string
	// Policy is empty when the user did not choose one.
	Policy string
	Dir    string
	All    bool
}

var downloadIn DownloadInput

var downloadCmd = &cobra.Command{
	Use:   "download <url>",
	Short: "Download a video in the chosen quality",
	Long: `Download a video. Without --format the quality menu is shown to pick from.

Video-only qualities are merged with the best audio into one file unless
--merge keep-separate is given, which saves <title>_video and <title>_audio.

Example:
  vidfetch download https://youtu.be/dQw4w9WgXcQ
  vidfetch download https://youtu.be/dQw4w9WgXcQ --format 137 --merge separate --dir music`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), log, cfg)
		if err != nil {
			return err
		}

		in := downloadIn
		in.URL = args[0]

		_, err = RunDownload(cmd.Context(), a.svc, DefaultPrompter, in, os.Stdout)

		// on interrupt the workers kill the running yt-dlp before the process exits
		if cmd.Context().Err() != nil {
			waitWorkers(log, a.svc, workerGrace)
		}

		return err
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVarP(&downloadIn.FormatID, "format", "f", "", "format id from the formats command (prompted when empty)")
	downloadCmd.Flags().StringVarP(&downloadIn.Policy, "merge", "m", "", "merge policy for video-only formats: auto-merge or keep-separate")
	downloadCmd.Flags().StringVarP(&downloadIn.Dir, "dir", "d", "", "destination folder, relative to the downloads folder or absolute")
	downloadCmd.Flags().BoolVar(&downloadIn.All, "all", false, "offer audio-only formats in the prompt")
}

var policyChoices = []struct {
	label  string
	policy entity.MergePolicy
}{
	{label: "Merge video and audio into one file", policy: entity.PolicyAutoMerge},
	{label: "Keep video and audio as separate files", policy: entity.PolicyKeepSeparate},
}

// RunDownload runs one download to its end and returns the files it produced.
// Missing choices are asked through prompter.
func RunDownload(ctx context.Context, svc service.Session, prompter Prompter, in DownloadInput, out io.Writer) ([]string, error) {
	policy, err := entity.ParseMergePolicy(in.Policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidMergePolicy, err)
	}

	if in.FormatID == "" {
		opt, err := pickFormat(ctx, svc, prompter, in.URL, in.All)
		if err != nil {
			return nil, err
		}

		in.FormatID = opt.FormatID

		if opt.MergeNeeded && in.Policy == "" {
			if policy, err = pickPolicy(prompter); err != nil {
				return nil, err
			}
		}
	}

	job, events, err := svc.StartDownload(ctx, in.URL, in.FormatID, policy, in.Dir)
	if err != nil {
		return nil, err
	}

	if job.Policy != policy {
		fmt.Fprintln(out, "Merge tool not found, keeping video and audio as separate files.")
	}

	return followProgress(ctx, events, out)
}

func pickFormat(ctx context.Context, svc service.Session, prompter Prompter, url string, all bool) (entity.FormatOption, error) {
	menu, err := svc.ListQualityOptions(ctx, url, all)
	if err != nil {
		return entity.FormatOption{}, err
	}

	if len(menu) == 0 {
		return entity.FormatOption{}, errs.New(errs.KindNoFormatsAvailable, "no downloadable formats found", nil)
	}

	labels := make([]string, 0, len(menu))
	for _, o := range menu {
		labels = append(labels, o.Label)
	}

	idx, err := prompter.Select("Quality:", labels)
	if err != nil {
		return entity.FormatOption{}, err
	}

	if idx < 0 || idx >= len(menu) {
		return entity.FormatOption{}, fmt.Errorf("prompt: choice %d out of range", idx)
	}

	return menu[idx], nil
}

func pickPolicy(prompter Prompter) (entity.MergePolicy, error) {
	labels := make([]string, 0, len(policyChoices))
	for _, c := range policyChoices {
		labels = append(labels, c.label)
	}

	idx, err := prompter.Select("This quality has no sound of its own:", labels)
	if err != nil {
		return "", err
	}

	if idx < 0 || idx >= len(policyChoices) {
		return "", fmt.Errorf("prompt: choice %d out of range", idx)
	}

	return policyChoices[idx].policy, nil
}

// followProgress prints events until the terminal one.
func followProgress(ctx context.Context, events <-chan entity.ProgressEvent, out io.Writer) ([]string, error) {
	started := time.Now()

	for ev := range events {
		switch ev.Kind {
		case entity.EventDownloading:
			fmt.Fprintf(out, "\r%-6s %3d%%  %d/%d MiB  ETA %s   ",
				ev.Stream,
				calc.Progress(ev.BytesDone, ev.BytesTotal),
				calc.MiB(ev.BytesDone), calc.MiB(ev.BytesTotal),
				FormatDuration(calc.ETA(ev.BytesDone, ev.BytesTotal, started)))
		case entity.EventStreamComplete:
			fmt.Fprintf(out, "\r%-6s done%40s\n", ev.Stream, "")

			started = time.Now()
		case entity.EventMergeStarted:
			fmt.Fprintln(out, "Merging video and audio...")
		case entity.EventSuccess:
			fmt.Fprintln(out, "Saved:")

			for _, p := range ev.Outputs {
				fmt.Fprintf(out, "  %s\n", p)
			}

			return ev.Outputs, nil
		case entity.EventFailure:
			return nil, errs.New(errs.Kind(ev.Failure), ev.Message, nil)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.KindCancelled, "download cancelled", err)
	}

	return nil, errs.New(errs.KindNetworkOrExtraction, "progress stream ended early", nil)
}
