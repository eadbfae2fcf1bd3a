package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ogurasousui/attendance-sync/internal/adapters/remote"
	"github.com/ogurasousui/attendance-sync/internal/adapters/storage/bolt"
	"github.com/ogurasousui/attendance-sync/internal/core/connectivity"
	"github.com/ogurasousui/attendance-sync/internal/core/geo"
	"github.com/ogurasousui/attendance-sync/internal/core/geolocation"
	"github.com/ogurasousui/attendance-sync/internal/core/syncqueue"
	"github.com/ogurasousui/attendance-sync/internal/core/tracker"
	"github.com/ogurasousui/attendance-sync/internal/platform/config"
	"github.com/ogurasousui/attendance-sync/internal/platform/logging"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultUserAgent = "attendance-cli"

// session は 1 回のコマンド実行で使うコンポーネント一式です。
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *remote.Client
	queue    *syncqueue.Queue
	monitor  *connectivity.Monitor
	provider *geolocation.Provider
	tracker  *tracker.Tracker

	closers []func() error
}

func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.ResolvePath(opts.configPath))
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newProvider は --lat/--lng が指定されていればその座標を返す Provider を作ります。
func newProvider(cmd *cobra.Command, opts *globalOptions, cfg *config.Config, logger *slog.Logger) *geolocation.Provider {
	var platform geolocation.Platform
	if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng") {
		platform = geolocation.StaticPlatform{
			Latitude:       opts.latitude,
			Longitude:      opts.longitude,
			AccuracyMeters: opts.accuracy,
		}
	} else {
		platform = geolocation.PlatformFunc(func(context.Context, geolocation.Options) (geo.Reading, error) {
			return geo.Reading{}, &geolocation.PositionError{Code: geolocation.CodeUnsupported, Message: "pass --lat and --lng"}
		})
	}
	return geolocation.NewProvider(platform, cfg.Geolocation.Options(), nil).WithLogger(logger)
}

func openSession(cmd *cobra.Command, opts *globalOptions) (*session, error) {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	transport := opts.transport
	if transport == nil {
		if transport, err = s.dialTransport(); err != nil {
			return nil, err
		}
	}
	s.client = remote.NewClient(transport)

	store, err := bolt.Open(cfg.Client.QueuePath)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	s.closers = append(s.closers, store.Close)

	if s.queue, err = syncqueue.New(store, s.client, nil); err != nil {
		return nil, err
	}
	s.queue.WithLogger(logger)

	s.monitor = connectivity.NewMonitor(false)
	if !opts.offline {
		connectivity.NewProber(s.client, s.monitor, cfg.Client.ProbeInterval, cfg.Client.RequestTimeout).
			WithLogger(logger).
			ProbeOnce(ctx)
	}

	s.provider = newProvider(cmd, opts, cfg, logger)

	t, err := tracker.New(tracker.Config{
		EmployeeID:      cfg.Client.EmployeeID,
		EmployeeName:    cfg.Client.EmployeeName,
		DeviceInfo:      cfg.Client.DeviceInfo,
		Zones:           cfg.Attendance.GeoZones(),
		EnforceGeofence: cfg.Attendance.EnforceGeofence,
	}, tracker.Dependencies{
		Remote:  s.client,
		Queue:   s.queue,
		Monitor: s.monitor,
		Locator: s.provider,
		Policy:  cfg.Attendance.Policy(),
	})
	if err != nil {
		return nil, err
	}
	s.tracker = t.WithLogger(logger)
	s.closers = append(s.closers, func() error {
		s.tracker.Close()
		return nil
	})

	ok = true
	return s, nil
}

func (s *session) dialTransport() (remote.Transport, error) {
	c := s.cfg.Client
	userAgent := c.DeviceInfo
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	switch c.Transport {
	case config.TransportGRPC:
		conn, err := grpc.NewClient(c.Endpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithUserAgent(userAgent),
		)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", c.Endpoint, err)
		}
		s.closers = append(s.closers, conn.Close)
		return remote.NewGRPCTransport(conn, c.RequestTimeout), nil
	default:
		return remote.NewHTTPTransport(c.Endpoint, c.RequestTimeout, userAgent, nil), nil
	}
}

// startSession は openSession の後に Tracker を開始します。オンラインなら送信待ちの操作を先に送ります。
func startSession(cmd *cobra.Command, opts *globalOptions) (*session, error) {
	s, err := openSession(cmd, opts)
	if err != nil {
		return nil, err
	}
	s.tracker.Start(cmd.Context())
	return s, nil
}

// Close は後から開いたものから順に閉じます。
func (s *session) Close() {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if err := errors.Join(errs...); err != nil && s.logger != nil {
		s.logger.Warn("failed to close session", "error", err)
	}
}
