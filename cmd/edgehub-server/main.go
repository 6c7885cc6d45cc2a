package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/aabboodi/edgehub/internal/config"
	"github.com/aabboodi/edgehub/internal/executor"
	"github.com/aabboodi/edgehub/internal/orchestrator"
	"github.com/aabboodi/edgehub/internal/policy"
	"github.com/aabboodi/edgehub/internal/security"
	"github.com/aabboodi/edgehub/internal/store"
	"github.com/aabboodi/edgehub/internal/strategy"
	"github.com/aabboodi/edgehub/internal/telemetry"
	grpcx "github.com/aabboodi/edgehub/internal/transport/grpc"
	httpx "github.com/aabboodi/edgehub/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	backend, source, err := buildBackend(cfg)
	if err != nil {
		log.Fatalf("store setup failed: %v", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Printf("store close warning: %v", err)
		}
	}()

	if err := backend.Load(); err != nil {
		log.Fatalf("store initialization failed: %v", err)
	}

	var validator orchestrator.SecurityValidator
	if strings.TrimSpace(cfg.Security.SigningSecret) != "" {
		validator = security.NewHMACValidator(cfg.Security.SigningSecret)
	} else {
		validator = security.InsecureValidator{}
	}

	orch := orchestrator.New(
		policy.NewStore(backend),
		strategy.NewEngine(),
		telemetry.NewAggregator(backend),
		validator,
		executor.DefaultRegistry(),
	)
	if err := orch.Initialize(context.Background()); err != nil {
		log.Fatalf("orchestrator initialization failed: %v", err)
	}

	scheduler := orchestrator.NewScheduler(orch)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	handler := grpcx.NewHubHandler(orch)
	httpServer := httpx.NewServer(cfg.Server.HTTPAddr, orch)

	listener, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", cfg.Server.GRPCAddr, err)
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcx.RecoveryUnaryInterceptor(),
			grpcx.AuthUnaryInterceptor(cfg.Security.AuthToken),
			grpcx.LoggingUnaryInterceptor(),
			grpcx.ErrorUnaryInterceptor(),
		),
	)
	grpcx.RegisterHubServer(server, handler)

	healthService := health.NewServer()
	healthService.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthService)

	if cfg.Server.EnableReflection {
		reflection.Register(server)
	}

	go func() {
		log.Printf("EdgeHub gRPC server listening on %s", cfg.Server.GRPCAddr)
		log.Printf("Store driver=%s source=%s", cfg.Store.Driver, source)
		if cfg.Security.AuthToken == "" {
			log.Printf("auth token is not configured; policy write methods are currently unauthenticated.")
		}
		if _, insecure := validator.(security.InsecureValidator); insecure {
			log.Printf("signing secret is not configured; device request signatures are not verified.")
		}
		if err := server.Serve(listener); err != nil {
			log.Fatalf("grpc serve failed: %v", err)
		}
	}()

	go func() {
		if strings.TrimSpace(cfg.Server.HTTPAddr) == "" {
			return
		}
		log.Printf("EdgeHub HTTP dashboard listening on %s", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http serve failed: %v", err)
		}
	}()

	waitForShutdown(server, httpServer)
}

func waitForShutdown(server *grpc.Server, httpServer *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("shutdown signal received; draining gRPC server")
	done := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Println("gRPC server stopped gracefully")
	case <-time.After(5 * time.Second):
		log.Println("graceful timeout reached; forcing stop")
		server.Stop()
	}
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown warning: %v", err)
		}
	}
}

func buildBackend(cfg config.Config) (store.Backend, string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Driver)) {
	case "postgres":
		backend, err := store.NewPostgresBackend(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, "", err
		}
		return backend, "postgres", nil
	case "", "memory":
		return store.NewMemoryBackend(), "memory", nil
	default:
		return nil, "", fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
