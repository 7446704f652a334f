package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/api"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/auth"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/config"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/dbclient"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/domain"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/localcache"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/notify"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/persistence/postgres"
	syncpkg "github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/sync"
	httptransport "github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/transport/http"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/whoop"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	migrationDSN := cfg.ServiceRolePostgresURL
	if migrationDSN == "" {
		migrationDSN = cfg.PostgresURL
	}
	if err := postgres.RunMigrations(cfg.MigrationsDir, migrationDSN); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	factory, err := dbclient.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer factory.Close()

	// The overview routes need to see every athlete. Preview environments
	// without the privileged credential fall back to the anon client, whose
	// queries surface a configuration error instead of leaking data.
	overviewRepo, err := factory.ServiceRoleClient(ctx)
	if err != nil {
		log.Printf("service-role client unavailable, using anon client: %v", err)
		overviewRepo = factory.AnonClient(ctx)
	}
	overview := domain.NewService(overviewRepo)

	cursors := localcache.Open(cfg.CursorCacheDir)
	defer cursors.Close()

	publisher := notify.NewPublisher(cfg.KafkaBrokers, cfg.SyncTopic)
	defer publisher.Close()

	whoopClient := whoop.NewClient(cfg.WhoopBaseURL,
		whoop.WithPageLimit(cfg.WhoopPageLimit),
		whoop.WithRatePerMinute(cfg.WhoopRatePerMin),
	)

	orchestrator := syncpkg.NewOrchestrator(overviewRepo, whoopClient,
		syncpkg.WithPublisher(publisher),
		syncpkg.WithCursorCache(cursors),
		syncpkg.WithLookback(cfg.SyncLookback),
		syncpkg.WithDeadlineSlack(cfg.SyncDeadlineSlack),
	)

	scoped := func(userID string) domain.Repository {
		return factory.ServerClient(userID)
	}

	handler := api.NewHandler(scoped, overview, orchestrator, cfg.CronSecret)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	// Routes that never carry a session skip token parsing entirely.
	skipper := func(r *http.Request) bool {
		switch r.URL.Path {
		case "/healthz", "/metrics", "/api/cron/sync-whoop":
			return true
		}
		return false
	}
	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, skipper)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:     cfg.HTTPAddress,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}, authMiddleware.Wrap(logger(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("performance hub API listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
