// README: Entry point; loads config, wires services, starts HTTP server and background loops.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"dispatch/internal/config"
	httptransport "dispatch/internal/http"
	"dispatch/internal/infra"
	"dispatch/internal/logger"
	"dispatch/internal/maps"
	"dispatch/internal/modules/analytics"
	"dispatch/internal/modules/assignment"
	"dispatch/internal/modules/broadcast"
	"dispatch/internal/modules/location"
	"dispatch/internal/modules/matching"
	"dispatch/internal/modules/schedule"
	"dispatch/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", logger.Err(err))
	}

	zl, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		logger.Fatal("init logger", logger.Err(err))
	}
	logger.SetGlobalLogger(zl)
	defer func() { _ = logger.Sync() }()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("open store", logger.String("driver", cfg.Storage.Driver), logger.Err(err))
	}
	defer closeStore()

	rdb := infra.NewRedis(cfg.Redis.Addr)
	defer rdb.Close()
	redisUp := rdb.Ping(ctx).Err() == nil
	if !redisUp {
		logger.Warn("redis unreachable, running without geo index and analytics cache",
			logger.String("addr", cfg.Redis.Addr))
	}

	bus, err := infra.NewBus(cfg.Broadcast, rdb)
	if err != nil {
		logger.Fatal("init broadcast bus", logger.String("bus", cfg.Broadcast.Bus), logger.Err(err))
	}
	defer bus.Close()

	hub := broadcast.NewHub(bus, cfg.Broadcast.QueueSize)
	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("broadcast hub stopped", logger.Err(err))
		}
	}()

	scorer := matching.NewScorer(matching.Weights{
		DistanceBase:          cfg.Matching.DistanceBase,
		DistancePerKm:         cfg.Matching.DistancePerKm,
		RatingWeight:          cfg.Matching.RatingWeight,
		AvailabilityBase:      cfg.Matching.AvailabilityBase,
		AvailabilityPerActive: cfg.Matching.AvailabilityPerActive,
	}, cfg.Matching.WorkerCap)

	assignmentSvc := assignment.NewService(st, scorer, hub)

	scheduleSvc := schedule.NewService(st, hub)
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			logger.Fatal("init maps client", logger.Err(err))
		}
		scheduleSvc.SetTravelTimer(routes)
	}

	snapshotEvery := time.Duration(cfg.Analytics.SnapshotSeconds) * time.Second
	locationSvc := location.NewService(st, workerIndex(rdb, redisUp), hub)
	analyticsSvc := analytics.NewService(st, analyticsCache(rdb, redisUp, snapshotEvery),
		time.Duration(cfg.Analytics.WindowDays)*24*time.Hour)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Assignment: assignmentSvc,
		Schedule:   scheduleSvc,
		Location:   locationSvc,
		Analytics:  analyticsSvc,
		Hub:        hub,

		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go assignmentSvc.RunSweeper(ctx, time.Duration(cfg.Assignment.SweepSeconds)*time.Second)
	go analyticsSvc.RunSnapshotTicker(ctx, snapshotEvery)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", logger.Err(err))
		}
	}()

	logger.Info("dispatch api listening",
		logger.String("addr", cfg.HTTP.Addr),
		logger.String("storage", cfg.Storage.Driver),
		logger.String("bus", cfg.Broadcast.Bus),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server", logger.Err(err))
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	if cfg.Storage.Driver != "postgres" {
		return store.NewMemoryStore(), func() {}, nil
	}
	pool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}

func workerIndex(rdb *redis.Client, ok bool) location.WorkerIndex {
	if !ok {
		return nil
	}
	return location.NewRedisIndex(rdb)
}

// The cached report lives for two snapshot intervals.
func analyticsCache(rdb *redis.Client, ok bool, snapshotEvery time.Duration) analytics.Cache {
	if !ok {
		return nil
	}
	ttl := 2 * snapshotEvery
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return analytics.NewRedisCache(rdb, ttl)
}
