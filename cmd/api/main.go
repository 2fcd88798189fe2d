package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fiscus/internal/domain/connection"
	"fiscus/internal/interfaces/scheduler"
	"fiscus/internal/shared/config"
	"fiscus/internal/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()

	// Initialize telemetry (if enabled)
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Printf("Error shutting down telemetry: %v", err)
			}
		}()
		log.Printf("Telemetry enabled (metrics on :%s)", cfg.Telemetry.MetricsPort)
	}

	// Initialize dependencies
	deps, err := NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Start interval-based auto-sync (if configured)
	if cfg.Sync.AutoSyncInterval > 0 {
		deps.Manager.StartAutoSync(cfg.Sync.AutoSyncInterval)
		log.Printf("Auto-sync enabled every %s", cfg.Sync.AutoSyncInterval)
	}

	// Initialize scheduler (if enabled)
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(scheduler.Config{
			ScheduleTimes: cfg.Scheduler.ScheduleTimes,
			WorkerCount:   cfg.Scheduler.WorkerCount,
			JobDelay:      cfg.Scheduler.JobDelay,
			QueueSize:     cfg.Scheduler.QueueSize,
			RunOnStartup:  cfg.Scheduler.RunOnStartup,
			JobProvider:   newJobProvider(deps),
		})
		if err != nil {
			return err
		}

		sched.Start()
		log.Printf("Scheduler started with times: %v", cfg.Scheduler.ScheduleTimes)
	} else {
		log.Println("Scheduler is disabled")
	}

	// Create router and start servers
	handler := SetupRoutes(deps, cfg)
	srv, redirectSrv := StartServers(NewServerConfigFromConfig(handler, cfg))

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	GracefulShutdown(srv, redirectSrv, sched, 30*time.Second)
	return nil
}

// newJobProvider builds the scheduled job set: a full portfolio sync
// followed by a status refresh for connections needing attention.
func newJobProvider(deps *Dependencies) func(context.Context) ([]scheduler.Job, error) {
	var digest func(context.Context, map[string]connection.SyncResult) error
	if deps.NotificationService != nil {
		digest = deps.NotificationService.SyncDigest
	}

	return func(ctx context.Context) ([]scheduler.Job, error) {
		return []scheduler.Job{
			scheduler.NewFullSyncJob(deps.Manager, digest),
			scheduler.NewHealthRefreshJob(deps.Manager),
		}, nil
	}
}
