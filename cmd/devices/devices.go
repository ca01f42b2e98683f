package devices

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/batrec/internal/audiocore/sources/m500"
	"github.com/tphakala/batrec/internal/audiocore/sources/malgo"
	"github.com/tphakala/batrec/internal/conf"
)

// Command lists the capture hardware the recorder can use.
func Command(ctx *conf.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Long:  "List the attached Pettersson M500 and the capture cards, marking the card selected by recorder.devicenames.",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := malgo.EnumerateDevices()
			if err != nil {
				return err
			}
			var names []string
			if ctx.Settings != nil {
				names = ctx.Settings.Recorder.DeviceNames
			}
			return printDevices(cmd.OutOrStdout(), m500.Available(), devices, names)
		},
	}
}

func printDevices(w io.Writer, m500Present bool, devices []malgo.DeviceInfo, names []string) error {
	if m500Present {
		if _, err := fmt.Fprintf(w, "USB  %s (%d Hz)\n", m500.DeviceName, m500.SampleRate); err != nil {
			return err
		}
	}

	selected, selErr := malgo.SelectDevice(devices, names)
	for _, d := range devices {
		mark := " "
		if selErr == nil && d.ID == selected.ID {
			mark = "*"
		}
		if d.IsDefault {
			mark += " default"
		}
		if _, err := fmt.Fprintf(w, "%2d %s %s [%s]\n", d.Index, mark, d.Name, d.ID); err != nil {
			return err
		}
	}
	if len(devices) == 0 && !m500Present {
		_, err := fmt.Fprintln(w, "No capture devices found")
		return err
	}
	return nil
}
