package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/verydemure/meditation-gateway/internal/api"
	"github.com/verydemure/meditation-gateway/internal/config"
	"github.com/verydemure/meditation-gateway/internal/meditation"
	"github.com/verydemure/meditation-gateway/internal/observability"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("grpc_port", cfg.GRPCPort).
		Str("llm_provider", cfg.LLMProvider).
		Str("aws_region", cfg.AWSRegion).
		Str("output_dir", cfg.OutputDir).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Meditation gateway starting")

	gen, err := meditation.NewFromConfig(context.Background(), cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build meditation generator")
	}

	mux := http.NewServeMux()
	api.NewHandler(gen, cfg.DefaultSynthConfig(), cfg.MaxSSMLChars).Register(mux)

	mux.HandleFunc("/health", observability.HealthCheckHandler())
	// Readiness follows the circuit breakers, so health checks cost no API calls
	mux.HandleFunc("/ready", observability.ReadinessHandler(gen.Checks()))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// A job holds the response open for the script and synthesis calls
	jobTimeout := cfg.LLMTimeoutDuration() + cfg.TTSTimeoutDuration() + 30*time.Second
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: jobTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// grpc.health.v1 for health checkers that speak gRPC
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		logger.Fatal().Err(err).Str("grpc_port", cfg.GRPCPort).Msg("Failed to listen for gRPC")
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		logger.Info().Str("grpc_port", cfg.GRPCPort).Msg("gRPC health listening")
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("gRPC server stopped")
		}
	}()

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/v1/meditations", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		grpcServer.Stop()
	}

	logger.Info().Msg("Server exited gracefully")
}
