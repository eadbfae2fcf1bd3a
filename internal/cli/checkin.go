package cli

import (
	"github.com/ogurasousui/attendance-sync/internal/core/tracker"
	"github.com/spf13/cobra"
)

func newCheckInCmd(opts *globalOptions) *cobra.Command {
	var (
		notes string
		photo string
	)

	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Record today's check-in",
		Long: `Record today's check-in at the location given by --lat/--lng.
When the server is unreachable the request is queued and the projected record is shown as pending.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := startSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			data := tracker.CheckInData{Notes: notes}
			if photo != "" {
				data.PhotoRef = &photo
			}
			outcome, err := s.tracker.CheckIn(cmd.Context(), data)
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), "check-in", outcome)
			return nil
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "free-form note stored with the record")
	cmd.Flags().StringVar(&photo, "photo", "", "reference to an uploaded photo")
	return cmd
}
