package main

import (
	"context"
	"fmt"
	"os"

	"github.com/youlearn/youlearn-progress/config"
	"github.com/youlearn/youlearn-progress/internal/application"
	"github.com/youlearn/youlearn-progress/internal/application/command"
	"github.com/youlearn/youlearn-progress/internal/application/eventhandler"
	"github.com/youlearn/youlearn-progress/internal/application/query"
	"github.com/youlearn/youlearn-progress/internal/domain/content"
	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/internal/domain/store"
	"github.com/youlearn/youlearn-progress/internal/infrastructure/external/llm"
	"github.com/youlearn/youlearn-progress/internal/infrastructure/messaging"
	"github.com/youlearn/youlearn-progress/internal/infrastructure/persistence/memory"
	"github.com/youlearn/youlearn-progress/internal/infrastructure/persistence/postgres"
	"github.com/youlearn/youlearn-progress/internal/infrastructure/persistence/redis"
	"github.com/youlearn/youlearn-progress/internal/infrastructure/persistence/sqlite"
	"github.com/youlearn/youlearn-progress/internal/interface/http/handlers"
	"github.com/youlearn/youlearn-progress/pkg/keylock"
	"github.com/youlearn/youlearn-progress/pkg/logger"
	"github.com/youlearn/youlearn-progress/pkg/timeutil"
)

// runtime holds every wired component and the order to close them in.
type runtime struct {
	cfg *config.Config
	log *logger.Logger

	store    store.Store
	postgres *postgres.Connection
	cache    *redis.Cache
	bus      *messaging.InMemoryEventBus

	app          *application.App
	celebrations *eventhandler.CelebrationFeed
	content      content.Generator
	health       *handlers.CompositeHealthChecker

	closers []func()
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Options{
		Output:      os.Stdout,
		Level:       logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller:   true,
		Development: cfg.Observability.LogFormat == "console",
	})
}

// wire builds the runtime. On error everything opened so far is closed.
func wire(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *runtime, err error) {
	rt := &runtime{
		cfg:    cfg,
		log:    log,
		health: handlers.NewCompositeHealthChecker(cfg.App.Version),
	}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// Storage
	// ─────────────────────────────────────────────────────────────────────────
	if err := rt.openStore(ctx); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (optional)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.RedisEnabled() {
		log.Info("connecting to redis")
		cache, err := redis.NewCache(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		rt.cache = cache
		rt.closers = append(rt.closers, func() { _ = cache.Close() })
		rt.health.AddOptionalCheck("redis", handlers.PingCheck(cache))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Events
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.AsyncMode = cfg.Progress.EventWorkers > 0
	busCfg.WorkerPoolSize = cfg.Progress.EventWorkers
	busCfg.Logger = log
	rt.bus = messaging.NewInMemoryEventBus(busCfg)
	rt.closers = append(rt.closers, func() { _ = rt.bus.Close() })
	if err := rt.bus.SubscribeAll(eventhandler.EventLogger(log)); err != nil {
		return nil, err
	}
	if cfg.Features.IsEnabled(config.FeatureCelebrations, nil) {
		rt.celebrations = eventhandler.NewCelebrationFeed(cfg.Progress.CelebrationLimit, log)
		if err := rt.celebrations.Register(rt.bus); err != nil {
			return nil, err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Application
	// ─────────────────────────────────────────────────────────────────────────
	deps := command.Deps{
		Store:     rt.store,
		Locker:    rt.locker(),
		Publisher: rt.publisher(),
		Clock:     timeutil.SystemClock{},
		Logger:    log,
	}
	var statsCache query.StatsCache
	if rt.cache != nil && cfg.Features.IsEnabled(config.FeatureStatsCache, nil) {
		sc := redis.NewStatsCache(rt.cache, cfg.Progress.StatsCacheTTL)
		deps.Cache = sc
		statsCache = sc
	}
	rt.app = application.New(deps, statsCache)

	// ─────────────────────────────────────────────────────────────────────────
	// Content
	// ─────────────────────────────────────────────────────────────────────────
	rt.content = &content.StaticGenerator{}
	if cfg.Features.IsEnabled(config.FeatureContentLLM, nil) {
		client, err := llm.New(llm.Config{
			APIKey:            cfg.LLM.APIKey,
			BaseURL:           cfg.LLM.BaseURL,
			Model:             cfg.LLM.Model,
			Timeout:           cfg.LLM.Timeout,
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			Burst:             cfg.LLM.Burst,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("content generator: %w", err)
		}
		rt.content = client
	}

	return rt, nil
}

func (rt *runtime) openStore(ctx context.Context) error {
	cfg := rt.cfg
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		rt.log.Warn("using in-memory storage; data is lost on exit")
		rt.store = memory.New()

	case config.DriverSQLite:
		rt.log.Info("opening sqlite database", logger.String("path", cfg.Storage.SQLitePath))
		st, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		rt.store = st
		rt.health.AddCheck("database", st.DB().PingContext)

	case config.DriverPostgres:
		rt.log.Info("connecting to postgres")
		pgCfg := postgres.DefaultConfig(cfg.Database.URL)
		if cfg.Database.MaxConns > 0 {
			pgCfg.MaxConns = int32(cfg.Database.MaxConns)
		}
		if cfg.Database.MinConns > 0 {
			pgCfg.MinConns = int32(cfg.Database.MinConns)
		}
		if cfg.Database.ConnMaxLifetime > 0 {
			pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		}
		if cfg.Database.ConnMaxIdleTime > 0 {
			pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
		}
		conn, err := postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		rt.postgres = conn
		if cfg.Database.AutoMigrate {
			n, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				conn.Close()
				return fmt.Errorf("migrate: %w", err)
			}
			rt.log.Info("migrations applied", logger.Int("count", n))
		}
		rt.store = postgres.NewStore(conn)
		rt.health.AddCheck("database", handlers.PingCheck(conn))

	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	st := rt.store
	rt.closers = append(rt.closers, func() { _ = st.Close() })
	return nil
}

// locker serialises per-user writes in process, and across nodes when the
// redis lock is enabled.
func (rt *runtime) locker() command.Locker {
	local := keylock.New()
	if rt.cache == nil || !rt.cfg.Features.IsEnabled(config.FeatureRedisLock, nil) {
		return local
	}
	return keylock.Chain(local, redis.NewLock(rt.cache, rt.cfg.Progress.LockTTL))
}

func (rt *runtime) publisher() shared.EventPublisher {
	if rt.cache == nil || !rt.cfg.Features.IsEnabled(config.FeatureEventPublishing, nil) {
		return rt.bus
	}
	return messaging.Fanout{rt.bus, redis.NewPublisher(rt.cache)}
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
