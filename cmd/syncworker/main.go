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

	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/config"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/dbclient"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/localcache"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/notify"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/persistence/postgres"
	syncpkg "github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/sync"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/whoop"
)

// The worker gives each run the same budget the cron route gets, so both
// paths exercise identical truncation behaviour.
const runBudget = 55 * time.Second

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

	store, err := factory.ServiceRoleClient(ctx)
	if err != nil {
		log.Fatalf("sync worker needs the service-role credential: %v", err)
	}

	cursors := localcache.Open(cfg.CursorCacheDir)
	defer cursors.Close()

	publisher := notify.NewPublisher(cfg.KafkaBrokers, cfg.SyncTopic)
	defer publisher.Close()

	whoopClient := whoop.NewClient(cfg.WhoopBaseURL,
		whoop.WithPageLimit(cfg.WhoopPageLimit),
		whoop.WithRatePerMinute(cfg.WhoopRatePerMin),
	)

	orchestrator := syncpkg.NewOrchestrator(store, whoopClient,
		syncpkg.WithPublisher(publisher),
		syncpkg.WithCursorCache(cursors),
		syncpkg.WithLookback(cfg.SyncLookback),
		syncpkg.WithDeadlineSlack(cfg.SyncDeadlineSlack),
	)

	metricsSrv := &http.Server{Addr: cfg.HTTPAddress, Handler: promhttp.Handler()}

	go func() {
		log.Printf("sync worker metrics listening on %s", cfg.HTTPAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.SyncPollInterval)
	defer ticker.Stop()

	log.Printf("sync worker started (interval=%s)", cfg.SyncPollInterval)
	runOnce(ctx, orchestrator)

	for {
		select {
		case <-ticker.C:
			runOnce(ctx, orchestrator)
		case <-stop:
			log.Println("sync worker shutdown requested")
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				log.Printf("metrics server shutdown error: %v", err)
			}
			return
		}
	}
}

func runOnce(ctx context.Context, orchestrator *syncpkg.Orchestrator) {
	runCtx, cancel := context.WithTimeout(ctx, runBudget)
	defer cancel()

	result, err := orchestrator.SyncAllUsers(runCtx)
	if err != nil {
		log.Printf("sync run failed: %v", err)
		return
	}
	log.Printf("sync run done: %d synced, %d failed, %d records (truncated=%t)",
		result.UsersProcessed, result.UsersFailed, result.RecordsWritten, result.Truncated)
}
