package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/club-engine/access"
	"github.com/warp/club-engine/api"
	"github.com/warp/club-engine/config"
	"github.com/warp/club-engine/directory"
	"github.com/warp/club-engine/facility"
	"github.com/warp/club-engine/factory"
	"github.com/warp/club-engine/kiosk"
	"github.com/warp/club-engine/logger"
	"github.com/warp/club-engine/sauna"
	"github.com/warp/club-engine/store/sqlite"
)

// app is the wired service graph shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *sqlite.Store
	redis   *goredis.Client
	handler *api.Handler
}

func newApp(ctx context.Context, path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clock := facility.SystemClock{Location: loc}

	store, err := sqlite.Open(ctx, cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: log, store: store}

	var registry directory.Registry
	switch cfg.Directory.Source {
	case config.DirectoryMemory:
		registry = directory.NewMemory(clock)
	default:
		registry = directory.NewSQL(store.DB(), clock)
	}

	if cfg.Redis.Addr != "" {
		rdb, err := directory.NewRedisClient(directory.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			log.Warn("standing cache disabled", zap.Error(err))
		} else {
			a.redis = rdb
			cache := directory.NewStandingCache(registry, rdb, cfg.Redis.StandingTTL, log)
			registry = directory.NewCachedRegistry(registry, cache)
		}
	}

	f := factory.NewPolicyFactory()
	policy, err := f.GateFromJSON(cfg.Gate)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("gate policy: %w", err)
	}
	reservationDefaults, err := f.ReservationFromJSON(cfg.Reservations)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("reservation defaults: %w", err)
	}
	fine, err := cfg.DefaultFine()
	if err != nil {
		a.Close()
		return nil, err
	}

	evaluator := access.NewEvaluator(registry, registry,
		access.WithStandingRule(policy.StandingRule),
		access.WithLookupTimeout(policy.LookupTimeout),
		access.WithLogger(log))
	gate := access.NewGate(
		access.NewResolver(registry, policy.LookupTimeout),
		evaluator,
		access.NewLedger(store, clock, log),
		policy.ExamGatedLocations,
		log)

	allocator := sauna.NewAllocator(store, sauna.NewPenalties(store, clock, log), clock,
		sauna.WithEligibility(evaluator),
		sauna.WithDefaultFine(fine),
		sauna.WithLogger(log))

	scheduler := kiosk.NewScheduler(store, clock,
		kiosk.WithEligibility(evaluator),
		kiosk.WithDefaults(reservationDefaults),
		kiosk.WithLogger(log))

	a.handler = api.NewHandler(gate, allocator, scheduler, clock, log)
	a.handler.Registry = registry

	log.Info("engine wired",
		zap.String("db", cfg.DB.Path),
		zap.String("directory", cfg.Directory.Source),
		zap.Bool("standing_cache", a.redis != nil),
		zap.Strings("exam_gated", policy.ExamGatedLocations))
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("database close failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
