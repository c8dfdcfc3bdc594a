package cmd

import (
	"context"
	"io"
	"os"

	"vidfetch/internal/service"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <url>",
	Short: "Show title, uploader and duration of a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), log, cfg)
		if err != nil {
			return err
		}

		return RunInfo(cmd.Context(), a.svc, args[0], os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

// RunInfo prints the metadata of url.
func RunInfo(ctx context.Context, svc service.Session, url string, out io.Writer) error {
	meta, err := svc.Inspect(ctx, url)
	if err != nil {
		return err
	}

	writeInfo(out, meta)

	return nil
}
