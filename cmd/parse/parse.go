package parse

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tphakala/batrec/internal/audiocore/export"
)

// Command decodes clip file names into their recording metadata.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "parse [file.wav...]",
		Short: "Show the metadata encoded in clip file names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if err := describe(cmd.OutOrStdout(), filepath.Base(arg)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func describe(w io.Writer, name string) error {
	f, err := export.ParseFileName(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", name)
	fmt.Fprintf(w, "  prefix:    %s\n", f.Prefix)
	fmt.Fprintf(w, "  time:      %s\n", f.Time.Format("2006-01-02 15:04:05 -0700"))
	fmt.Fprintf(w, "  position:  %.5f, %.5f\n", f.Latitude, f.Longitude)
	fmt.Fprintf(w, "  rec type:  %s\n", f.RecType)
	if f.Peak != nil {
		fmt.Fprintf(w, "  peak:      %.0f kHz at %.0f dBFS\n", f.Peak.FrequencyHz/1000, f.Peak.LevelDBFS)
	}
	return nil
}
