package cli

import (
	"github.com/ogurasousui/attendance-sync/internal/core/tracker"
	"github.com/spf13/cobra"
)

func newCheckOutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout",
		Short: "Record today's check-out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := startSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			outcome, err := s.tracker.CheckOut(cmd.Context(), tracker.CheckOutData{})
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), "check-out", outcome)
			return nil
		},
	}
}
