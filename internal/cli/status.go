package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show today's attendance state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := startSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "employee: %s\n", s.cfg.Client.EmployeeID)
			printConnection(out, s.monitor.Online())
			fmt.Fprintf(out, "state: %s\n", s.tracker.State())

			today := s.tracker.Today()
			if rec := today.Snapshot(); rec != nil {
				if today.IsPending() {
					fmt.Fprintln(out, "record (pending sync):")
				} else {
					fmt.Fprintln(out, "record:")
				}
				printRecord(out, rec)
			}
			fmt.Fprintf(out, "queued operations: %d\n", s.queue.Len())
			return nil
		},
	}
}
