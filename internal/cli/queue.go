package cli

import (
	"github.com/spf13/cobra"
)

func newQueueCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List requests waiting to be synced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// 一覧表示だけなので送信は行いません。
			opts.offline = true
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			printOperations(cmd.OutOrStdout(), s.tracker.PendingOperations())
			return nil
		},
	}
}
