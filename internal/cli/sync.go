package cli

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"github.com/ogurasousui/attendance-sync/internal/core/connectivity"
	"github.com/spf13/cobra"
)

func newSyncCmd(opts *globalOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay queued requests against the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if watch && opts.offline {
				return errors.New("--watch cannot be combined with --offline")
			}

			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if watch {
				return watchSync(cmd, s)
			}

			if !s.monitor.Online() {
				return fmt.Errorf("%w: %d operations pending", attendance.ErrRemoteUnavailable, s.queue.Len())
			}

			report := s.tracker.Sync(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "delivered: %d  remaining: %d\n", report.Delivered, report.Remaining)
			if report.Err != nil {
				return fmt.Errorf("sync stopped: %w", report.Err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep probing the server and sync whenever it becomes reachable, until interrupted")
	return cmd
}

// watchSync は中断されるまで疎通確認を続け、オンラインに戻るたびに Tracker に送信させます。
func watchSync(cmd *cobra.Command, s *session) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var (
		mu      sync.Mutex
		stopped bool
	)
	printConnection(out, s.monitor.Online())
	unsubscribe := s.monitor.Subscribe(func(online bool) {
		mu.Lock()
		defer mu.Unlock()
		if !stopped {
			printConnection(out, online)
		}
	})
	defer func() {
		unsubscribe()
		mu.Lock()
		stopped = true
		mu.Unlock()
	}()

	s.tracker.Start(ctx)
	prober := connectivity.NewProber(s.client, s.monitor, s.cfg.Client.ProbeInterval, s.cfg.Client.RequestTimeout).
		WithLogger(s.logger)
	if err := prober.Run(ctx); err != nil {
		return err
	}

	s.tracker.Close()
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, "remaining: %d\n", s.queue.Len())
	return nil
}

func printConnection(w io.Writer, online bool) {
	state := "offline"
	if online {
		state = "online"
	}
	fmt.Fprintf(w, "connection: %s\n", state)
}
