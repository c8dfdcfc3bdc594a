package cmd

import (
	"context"
	"io"
	"os"

	"vidfetch/internal/errs"
	"vidfetch/internal/service"

	"github.com/spf13/cobra"
)

var (
	formatsAll    bool
	formatsOutput string
)

var formatsCmd = &cobra.Command{
	Use:   "formats <url>",
	Short: "List the qualities a video can be downloaded in",
	Long: `List the qualities of a video, best first.

Complete formats (video with audio) come first, then video-only formats that
need the best audio track merged in. Audio-only formats are listed with --all.

Example:
  vidfetch formats https://youtu.be/dQw4w9WgXcQ --all -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), log, cfg)
		if err != nil {
			return err
		}

		return RunFormats(cmd.Context(), a.svc, args[0], formatsAll, formatsOutput, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(formatsCmd)
	formatsCmd.Flags().BoolVar(&formatsAll, "all", false, "include audio-only formats")
	formatsCmd.Flags().StringVarP(&formatsOutput, "output", "o", OutputTable, "output format: table, json or yaml")
}

// RunFormats prints the quality menu of url.
func RunFormats(ctx context.Context, svc service.Session, url string, all bool, output string, out io.Writer) error {
	menu, err := svc.ListQualityOptions(ctx, url, all)
	if err != nil {
		return err
	}

	if len(menu) == 0 {
		return errs.New(errs.KindNoFormatsAvailable, "no downloadable formats found", nil)
	}

	return writeFormats(out, menu, output)
}
