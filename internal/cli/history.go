package cli

import (
	"github.com/spf13/cobra"
)

const defaultHistoryLimit = 30

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent attendance records and statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := startSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			records, stats, err := s.tracker.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), records, stats)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "maximum number of records")
	return cmd
}
