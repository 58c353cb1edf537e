// jobmate-allocation-service
//
// Round-based allocation of job slots to candidates, one group per
// professional category. Exposes:
//   - a REST API used by the Gateway (start, accept/reject, statistics,
//     report download, preference editing, SSE event stream)
//   - the AllocationService gRPC API
//   - Prometheus metrics on /metrics
//
// The registry (candidates, positions, preferences) is loaded once at
// startup from PostgreSQL or a YAML fixture. Engine events are published
// to Redis for Gateway SSE forward when REDIS_URL is set.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"jobmate/allocation-service/internal/allocation"
	"jobmate/allocation-service/internal/api"
	"jobmate/allocation-service/internal/config"
	"jobmate/allocation-service/internal/db"
	"jobmate/allocation-service/internal/events"
	"jobmate/allocation-service/internal/grpcserver"
	"jobmate/allocation-service/internal/metrics"
	"jobmate/allocation-service/internal/registry"
	"jobmate/allocation-service/internal/scheduler"
	"jobmate/allocation-service/internal/service"
)

const version = "1.0.0"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "allocation-service")
	slog.SetDefault(logger)

	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[allocation-service] Config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Registry ─────────────────────────────────────────────────────────────
	reg, err := loadRegistry(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("[allocation-service] Registry: %v", err)
	}
	log.Printf("[allocation-service] Registry loaded ✓ (%d candidates, %d positions)",
		len(reg.Candidates()), len(reg.Positions()))

	// ── Events ───────────────────────────────────────────────────────────────
	hub := events.NewHub()
	publishers := events.Fanout{hub}
	if cfg.RedisURL != "" {
		log.Println("[allocation-service] Connecting to Redis…")
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("[allocation-service] Redis: %v", err)
		}
		defer rdb.Close()
		publishers = append(publishers, events.NewRedisPublisher(rdb))
		log.Println("[allocation-service] Redis connected ✓")
	}

	// ── Allocation ───────────────────────────────────────────────────────────
	metrics.Register(prometheus.DefaultRegisterer)
	svc := service.New(reg, logger,
		allocation.WithOfferWindow(cfg.OfferWindow),
		allocation.WithPublisher(publishers),
	)
	defer svc.Close()

	if cfg.AutoStart {
		if svc.Start() {
			log.Println("[allocation-service] Allocation started")
		}
	}

	sched := scheduler.New(svc, cfg.SweepSpec, cfg.StatsSpec, logger)
	if err := sched.Start(); err != nil {
		log.Fatalf("[allocation-service] Scheduler: %v", err)
	}
	defer sched.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	api.NewHandler(svc, hub, cfg.HTTPRateLimit, nil, logger).RegisterRoutes(mux)

	// No WriteTimeout: /events streams for the lifetime of the client.
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	// ── gRPC server ──────────────────────────────────────────────────────────
	gsrv := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcserver.LoggingInterceptor(logger)))
	grpcserver.Register(gsrv, grpcserver.NewServer(svc, logger))
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatalf("[allocation-service] gRPC listen: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("[allocation-service] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Printf("[allocation-service] gRPC listening on :%s", cfg.GRPCPort)
		if err := gsrv.Serve(lis); err != nil {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})

	// ── Graceful shutdown ────────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		log.Println("[allocation-service] Shutting down…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		gsrv.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("[allocation-service] Shutdown error: %v", err)
	}
	log.Println("[allocation-service] Stopped.")
}

// loadRegistry reads the registry from PostgreSQL when DATABASE_URL is set,
// from the YAML fixture otherwise.
func loadRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*registry.Registry, error) {
	if cfg.DatabaseURL == "" {
		log.Printf("[allocation-service] Loading fixture %s…", cfg.FixturePath)
		return registry.LoadYAML(cfg.FixturePath, logger)
	}

	log.Println("[allocation-service] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("PostgreSQL: %w", err)
	}
	defer pool.Close()
	log.Println("[allocation-service] PostgreSQL connected ✓")

	return registry.LoadPostgres(ctx, pool, logger)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "allocation-service",
		"version": version,
	})
}
