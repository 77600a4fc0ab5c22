package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"ai-live-copilot-service/internal/app"
	"ai-live-copilot-service/internal/config"
	httpapi "ai-live-copilot-service/internal/http"
	"ai-live-copilot-service/internal/observability"
)

// healthService is the gRPC health name reported for the session API.
const healthService = "ai.live.copilot.SessionService"

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build application")
	}
	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start application")
	}

	obs := observability.NewServer(cfg.Observability.MetricsAddr, application.Ready)
	obs.Start()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           httpapi.NewRouter(application.Controller, application.Ready),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("Display API started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http serve failed")
		}
	}()

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to listen")
	}

	server := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor()),
		grpc.StreamInterceptor(observability.StreamServerInterceptor()),
	)

	// Register gRPC health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(server)

	go func() {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("Health service started")
		if err := server.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("grpc serve failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("shutting down")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown failed")
	}
	application.Shutdown(shutdownCtx)
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("observability shutdown failed")
	}
	server.GracefulStop()
}
