package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"vidfetch/internal/entity"
	"vidfetch/pkg/calc"

	"gopkg.in/yaml.v3"
)

// Output formats of listing commands.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// formatRow is one quality as printed by the formats command.
type formatRow struct {
	ID          string `json:"id"                    yaml:"id"`
	Label       string `json:"label"                 yaml:"label"`
	Container   string `json:"container"             yaml:"container"`
	MergeNeeded bool   `json:"mergeNeeded"           yaml:"mergeNeeded"`
	PairedAudio string `json:"pairedAudio,omitempty" yaml:"pairedAudio,omitempty"`
	SizeMiB     int64  `json:"sizeMiB,omitempty"     yaml:"sizeMiB,omitempty"`
}

func toRows(menu []entity.FormatOption) []formatRow {
	rows := make([]formatRow, 0, len(menu))

	for _, o := range menu {
		rows = append(rows, formatRow{
			ID:          o.FormatID,
			Label:       o.Label,
			Container:   o.Container,
			MergeNeeded: o.MergeNeeded,
			PairedAudio: o.PairedAudioFormatID,
			SizeMiB:     calc.MiB(o.FileSize),
		})
	}

	return rows
}

func writeFormats(w io.Writer, menu []entity.FormatOption, output string) error {
	rows := toRows(menu)

	switch output {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(rows)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(rows); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return enc.Close()
	case OutputTable, "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tQUALITY\tCONTAINER\tMERGE")

		for _, r := range rows {
			merge := "-"
			if r.MergeNeeded {
				merge = "+" + r.PairedAudio
			}

			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Label, r.Container, merge)
		}

		return tw.Flush()
	default:
		return fmt.Errorf("unknown output %q, want table, json or yaml", output)
	}
}

func writeInfo(w io.Writer, meta entity.VideoMetadata) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Title:\t%s\n", meta.Title)
	fmt.Fprintf(tw, "Uploader:\t%s\n", meta.Uploader)
	fmt.Fprintf(tw, "Duration:\t%s\n", FormatDuration(time.Duration(meta.DurationSeconds)*time.Second))

	if meta.ShortDescription != "" {
		fmt.Fprintf(tw, "Description:\t%s\n", meta.ShortDescription)
	}

	_ = tw.Flush()
}

// FormatDuration renders d as m:ss. Minutes are not wrapped into hours.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	secs := int64(d.Round(time.Second) / time.Second)

	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
