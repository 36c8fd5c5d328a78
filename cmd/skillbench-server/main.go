package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bcrosbie/skillbench/internal/auth"
	"github.com/bcrosbie/skillbench/internal/config"
	"github.com/bcrosbie/skillbench/internal/executor"
	"github.com/bcrosbie/skillbench/internal/logger"
	"github.com/bcrosbie/skillbench/internal/orchestrate"
	"github.com/bcrosbie/skillbench/internal/redact"
	"github.com/bcrosbie/skillbench/internal/service"
	"github.com/bcrosbie/skillbench/internal/store"
	"github.com/bcrosbie/skillbench/internal/telemetry"
	grpcx "github.com/bcrosbie/skillbench/internal/transport/grpc"
	httpx "github.com/bcrosbie/skillbench/internal/transport/http"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	ctx := context.Background()
	log := logger.G(ctx)

	cfg, err := config.Load(nil)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.WithError(err).Fatal("invalid log level")
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
		Enabled:        cfg.TracingEnabled,
		ServiceName:    "skillbench-server",
		ServiceVersion: version,
		SamplerRatio:   cfg.TracingSampleRatio,
	})
	if err != nil {
		log.WithError(err).Fatal("tracing setup failed")
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.WithError(err).Warn("tracer shutdown warning")
		}
	}()

	skillStore, err := store.Open(ctx, store.OpenConfig{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		Attempts:    cfg.StoreConnectAttempts,
	})
	if err != nil {
		log.WithError(err).Fatal("store setup failed")
	}
	defer func() {
		if err := skillStore.Close(); err != nil {
			log.WithError(err).Warn("store close warning")
		}
	}()

	authorizer := auth.New(cfg.ExecutionSecret)
	coordinator := orchestrate.New(skillStore, buildExecutor(log, cfg))
	skills := service.NewSkillService(skillStore, coordinator, authorizer.Configured())

	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.WithError(err).WithField("addr", cfg.GRPCAddr).Fatal("failed to listen")
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcx.RecoveryUnaryInterceptor(),
			grpcx.LoggingUnaryInterceptor(),
			grpcx.ErrorUnaryInterceptor(),
			grpcx.AuthUnaryInterceptor(authorizer),
		),
	)
	grpcx.RegisterSkillServer(server, grpcx.NewSkillHandler(skills))

	healthService := health.NewServer()
	healthService.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthService)
	if cfg.EnableReflection {
		reflection.Register(server)
	}

	httpServer := httpx.NewServer(cfg.HTTPAddr, skills, authorizer)

	log.WithFields(logrus.Fields{
		"version":   version,
		"driver":    cfg.StoreDriver,
		"execution": authorizer.Configured(),
		"executor":  cfg.ExecutorURL != "",
	}).Info("skillbench starting")
	if !authorizer.Configured() {
		log.Warnf("SKILLBENCH_EXECUTION_SECRET is shorter than %d characters; trial execution endpoints are disabled", auth.MinSecretLength)
	}

	go func() {
		log.WithField("addr", cfg.GRPCAddr).Info("gRPC server listening")
		if err := server.Serve(listener); err != nil {
			log.WithError(err).Fatal("grpc serve failed")
		}
	}()

	go func() {
		if cfg.HTTPAddr == "" {
			return
		}
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http serve failed")
		}
	}()

	waitForShutdown(log, server, healthService, httpServer)
}

// buildExecutor returns nil when no executor is configured, which leaves
// orchestration answering execution_not_configured.
func buildExecutor(log *logrus.Entry, cfg config.Config) orchestrate.Executor {
	if cfg.ExecutorURL == "" {
		return nil
	}
	client, err := executor.New(cfg.ExecutorURL, cfg.ExecutorToken,
		executor.WithRedactor(redact.New(cfg.ExecutorToken, cfg.ExecutionSecret)),
	)
	if err != nil {
		log.WithError(err).Fatal("executor setup failed")
	}
	return client
}

func waitForShutdown(log *logrus.Entry, server *grpc.Server, healthService *health.Server, httpServer *http.Server) {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	log.Info("shutdown signal received; draining servers")
	healthService.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown warning")
	}

	done := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		log.Info("gRPC server stopped gracefully")
	case <-shutdownCtx.Done():
		log.Warn("graceful timeout reached; forcing stop")
		server.Stop()
	}
}
