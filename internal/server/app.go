package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"zeur-core/pkg/logger"
)

// WriteService gRPC health 中写能力的服务名；只读模式下为 NOT_SERVING
const WriteService = "zeur.lending.write"

type Config struct {
	HttpPort        string
	GrpcPort        string
	ReadOnly        bool
	ShutdownTimeout time.Duration
}

type App struct {
	cfg          Config
	httpServer   *http.Server
	grpcServer   *grpc.Server
	grpcListener net.Listener
	health       *health.Server
}

// New gRPC 只提供标准 health 服务，供编排系统探活
func New(cfg Config, httpHandler *gin.Engine) (*App, error) {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	httpSrv := &http.Server{
		Addr:              ":" + cfg.HttpPort,
		Handler:           httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GrpcPort)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on grpc port %s: %w", cfg.GrpcPort, err)
	}

	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	return &App{
		cfg:          cfg,
		httpServer:   httpSrv,
		grpcServer:   grpcServer,
		grpcListener: lis,
		health:       hs,
	}, nil
}

// Run 启动 HTTP 与 gRPC 并阻塞到 ctx 结束或任一服务异常退出，然后优雅关闭
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		logger.Info("Starting HTTP Server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("Starting gRPC Server", zap.String("addr", a.grpcListener.Addr().String()))
		if err := a.grpcServer.Serve(a.grpcListener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	writeStatus := healthpb.HealthCheckResponse_SERVING
	if a.cfg.ReadOnly {
		writeStatus = healthpb.HealthCheckResponse_NOT_SERVING
	}
	a.health.SetServingStatus(WriteService, writeStatus)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	case runErr = <-errCh:
		logger.Error("Server failure, shutting down", zap.Error(runErr))
	}
	a.health.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	a.grpcServer.GracefulStop()
	logger.Info("Server exited properly")
	return runErr
}
