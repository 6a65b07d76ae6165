package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/config"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/condition"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/mission"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/progress"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/storage"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/storage/postgres"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/storage/redishist"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/dispatcher"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/engine"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/ingestion"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/migrations"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/server"
)

func main() {
	configPath := flag.String("config", "loyalty.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	flushInterval, err := time.ParseDuration(cfg.Dispatcher.FlushInterval)
	if err != nil {
		slog.Error("Invalid dispatcher flush interval", "value", cfg.Dispatcher.FlushInterval, "error", err)
		os.Exit(1)
	}

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	if err := migrations.Apply(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	progressStore, err := postgres.NewProgressAdapter(dbAdapter.DB())
	if err != nil {
		slog.Error("Failed to initialize progress store", "error", err)
		os.Exit(1)
	}
	defer progressStore.Close()

	// 2.1. Optional Redis history cache in front of the event log
	var eventStore storage.EventStore = dbAdapter
	var healthExtras []server.HealthChecker
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache := redishist.New(client, dbAdapter)
		eventStore = cache
		healthExtras = append(healthExtras, cache)
		slog.Info("Redis history cache enabled", "addr", cfg.Redis.Addr)
	}

	// 3. Load Mission Catalog
	missions, err := loadMissions(cfg, dbAdapter)
	if err != nil {
		slog.Error("Failed to load mission catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("Mission catalog loaded", "source", cfg.Missions.Source, "count", len(missions))

	// 4. Initialize Engine and Dispatcher
	eng := engine.New(missions, progressStore, eventStore)
	disp := dispatcher.New(eng, dispatcher.Config{
		FlushInterval: flushInterval,
		MaxBatchSize:  cfg.Dispatcher.MaxBatchSize,
		WorkerCount:   cfg.Dispatcher.WorkerCount,
		QueueCapacity: cfg.Dispatcher.QueueCapacity,
		HistoryLimit:  cfg.Dispatcher.HistoryLimit,
	})
	disp.SubscribeUpdates(func(upd progress.Update) {
		if upd.Completed {
			slog.Info("Mission completed",
				"mission_id", upd.MissionID,
				"user_id", upd.UserID,
				"progress", upd.Progress,
			)
		}
	})

	// 5. Initialize HTTP surface
	ingestionSvc := ingestion.NewService(eng, disp, eventStore, cfg.Server.MaxBodySizeMB)
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode, healthExtras...)
	ingestionSvc.RegisterRoutes(srv.Engine)

	// 6. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := disp.Start(ctx); err != nil {
			slog.Error("Dispatcher stopped with error", "error", err)
		}
	}()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func loadMissions(cfg *config.Config, dbAdapter *postgres.Adapter) ([]mission.Mission, error) {
	switch cfg.Missions.Source {
	case "database":
		repo := postgres.NewMissionAdapter(dbAdapter.DB())
		return repo.ListActive(context.Background())
	case "filesystem", "":
		repo, err := mission.NewFileSystemRepository(cfg.Missions.Dir, condition.Known)
		if err != nil {
			return nil, err
		}
		return repo.ListActive(context.Background())
	}
	return nil, fmt.Errorf("unsupported mission source %q", cfg.Missions.Source)
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
