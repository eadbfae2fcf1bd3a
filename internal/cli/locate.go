package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ogurasousui/attendance-sync/internal/core/geo"
	"github.com/spf13/cobra"
)

func newLocateCmd(opts *globalOptions) *cobra.Command {
	var (
		watch bool
		count int
	)

	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Show the current location and the distance to the nearest zone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			provider := newProvider(cmd, opts, cfg, logger)
			zones := cfg.Attendance.GeoZones()
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			if !watch {
				reading, err := provider.GetCurrentLocation(ctx)
				if err != nil {
					return err
				}
				printReading(out, reading, zones)
				return nil
			}

			type result struct {
				reading geo.Reading
				err     error
			}
			watchCtx, cancel := context.WithCancel(ctx)
			results := make(chan result)
			provider.StartWatching(watchCtx, func(reading geo.Reading, err error) {
				select {
				case results <- result{reading: reading, err: err}:
				case <-watchCtx.Done():
				}
			})
			defer provider.StopWatching()
			defer cancel()

			for seen := 0; count <= 0 || seen < count; seen++ {
				select {
				case <-ctx.Done():
					return nil
				case r := <-results:
					if r.err != nil {
						fmt.Fprintf(out, "error: %v\n", r.err)
						continue
					}
					printReading(out, r.reading, zones)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep reporting the location until interrupted")
	cmd.Flags().IntVar(&count, "count", 0, "stop watching after this many readings (0 means no limit)")
	return cmd
}

func printReading(w io.Writer, reading geo.Reading, zones []geo.Zone) {
	fmt.Fprintf(w, "lat %.6f  lng %.6f  accuracy %.0fm", reading.Latitude, reading.Longitude, reading.AccuracyMeters)
	match, err := geo.NearestZone(reading.Coordinate(), zones)
	switch {
	case errors.Is(err, geo.ErrNoZones):
		fmt.Fprintln(w)
	case err != nil:
		fmt.Fprintf(w, "  zone error: %v\n", err)
	default:
		inside := "outside"
		if match.WithinRadius {
			inside = "inside"
		}
		fmt.Fprintf(w, "  %s %.0fm (%s)\n", match.Zone.Name, match.DistanceMeters, inside)
	}
}
