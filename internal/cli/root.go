// Package cli は端末側の勤怠 CLI です。
package cli

import (
	"context"

	"github.com/ogurasousui/attendance-sync/internal/adapters/remote"
	"github.com/spf13/cobra"
)

// AppName はコマンド名です。
const AppName = "attendance"

type globalOptions struct {
	configPath string
	offline    bool
	latitude   float64
	longitude  float64
	accuracy   float64

	// テストで差し替えるトランスポートです。nil なら設定から組み立てます。
	transport remote.Transport
}

// NewRootCommand はサブコマンドを登録したルートコマンドを返します。
func NewRootCommand() *cobra.Command {
	return newRootCommand(&globalOptions{})
}

func newRootCommand(opts *globalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   AppName,
		Short: "Geofenced attendance client",
		Long: `attendance records check-in and check-out against the attendance server.
Requests made while the server is unreachable are queued on disk and
replayed in order once connectivity returns.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to config file (defaults to CONFIG_PATH env or assets/local.yaml)")
	pf.BoolVar(&opts.offline, "offline", false, "skip the server and queue every write")
	pf.Float64Var(&opts.latitude, "lat", 0, "current latitude")
	pf.Float64Var(&opts.longitude, "lng", 0, "current longitude")
	pf.Float64Var(&opts.accuracy, "accuracy", 10, "reported accuracy in metres")

	root.AddCommand(
		newStatusCmd(opts),
		newCheckInCmd(opts),
		newCheckOutCmd(opts),
		newSyncCmd(opts),
		newQueueCmd(opts),
		newHistoryCmd(opts),
		newLocateCmd(opts),
	)
	return root
}

// Execute はルートコマンドを実行します。
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
