package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/ogurasousui/attendance-sync/internal/adapters/grpc/attendancev1"
	grpchandler "github.com/ogurasousui/attendance-sync/internal/adapters/grpc/handler"
	httphandler "github.com/ogurasousui/attendance-sync/internal/adapters/http/handler"
	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Options は Server の任意設定です。
type Options struct {
	Logger *slog.Logger
	// AccessLog が nil でなければ HTTP のアクセスログを書き出します。
	AccessLog   io.Writer
	GRPCOptions []grpc.ServerOption
}

// Server は gRPC と HTTP の両サーバーのライフサイクルを管理します。
type Server struct {
	grpcAddr   string
	httpAddr   string
	grpcServer *grpc.Server
	health     *health.Server
	app        *fiber.App
	logger     *slog.Logger
}

// New は勤怠サービスを公開するサーバーを構築します。空のアドレスの側は起動しません。
func New(grpcAddr, httpAddr string, svc attendance.UseCase, policy attendance.Policy, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serverOpts := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			recoveryInterceptor(logger),
			loggingInterceptor(logger),
			contextCheckInterceptor(),
		),
	}, opts.GRPCOptions...)
	srv := grpc.NewServer(serverOpts...)
	attendancev1.RegisterAttendanceServiceServer(srv, grpchandler.NewAttendanceGrpcHandler(svc, policy))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(fiberrecover.New())
	if opts.AccessLog != nil {
		app.Use(fiberlogger.New(fiberlogger.Config{Output: opts.AccessLog}))
	}
	httphandler.NewAttendanceHTTPHandler(svc, policy).WithLogger(logger).Register(app)

	return &Server{
		grpcAddr:   grpcAddr,
		httpAddr:   httpAddr,
		grpcServer: srv,
		health:     hs,
		app:        app,
		logger:     logger,
	}
}

// App は HTTP 側の fiber.App を返します。
func (s *Server) App() *fiber.App {
	return s.app
}

// Run は設定されたアドレスで待ち受け、コンテキストがキャンセルされると両方を停止します。
func (s *Server) Run(ctx context.Context) error {
	var grpcLis, httpLis net.Listener
	var err error
	if s.grpcAddr != "" {
		if grpcLis, err = net.Listen("tcp", s.grpcAddr); err != nil {
			return fmt.Errorf("listen on %s: %w", s.grpcAddr, err)
		}
	}
	if s.httpAddr != "" {
		if httpLis, err = net.Listen("tcp", s.httpAddr); err != nil {
			if grpcLis != nil {
				_ = grpcLis.Close()
			}
			return fmt.Errorf("listen on %s: %w", s.httpAddr, err)
		}
	}
	return s.Serve(ctx, grpcLis, httpLis)
}

// Serve は渡されたリスナーで待ち受けます。nil のリスナーの側は起動しません。
func (s *Server) Serve(ctx context.Context, grpcLis, httpLis net.Listener) error {
	if grpcLis == nil && httpLis == nil {
		return errors.New("server: no listener")
	}

	g, gctx := errgroup.WithContext(ctx)

	if grpcLis != nil {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		s.health.SetServingStatus(attendancev1.ServiceName, healthpb.HealthCheckResponse_SERVING)
		s.logger.Info("grpc server listening", "addr", grpcLis.Addr().String())
		g.Go(func() error {
			if err := s.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("serve gRPC: %w", err)
			}
			return nil
		})
	}

	if httpLis != nil {
		s.logger.Info("http server listening", "addr", httpLis.Addr().String())
		g.Go(func() error {
			if err := s.app.Listener(httpLis); err != nil {
				return fmt.Errorf("serve HTTP: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.shutdown()
		return nil
	})

	return g.Wait()
}

func (s *Server) shutdown() {
	s.logger.Info("shutting down")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	if err := s.app.Shutdown(); err != nil {
		s.logger.Warn("http shutdown", "error", err)
	}
}

// GracefulStop はサーバーを安全に停止します。
func (s *Server) GracefulStop() {
	s.shutdown()
}
