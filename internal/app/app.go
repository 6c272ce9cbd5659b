package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/MrSnakeDoc/apicatalog/internal/cache"
	"github.com/MrSnakeDoc/apicatalog/internal/config"
	"github.com/MrSnakeDoc/apicatalog/internal/gateway"
	"github.com/MrSnakeDoc/apicatalog/internal/httpserver"
	"github.com/MrSnakeDoc/apicatalog/internal/httpserver/deps"
	"github.com/MrSnakeDoc/apicatalog/internal/logger"
	"github.com/MrSnakeDoc/apicatalog/internal/metrics"
	"github.com/MrSnakeDoc/apicatalog/internal/projector"
	"github.com/MrSnakeDoc/apicatalog/internal/redis"
	"github.com/MrSnakeDoc/apicatalog/internal/registry"
	"github.com/MrSnakeDoc/apicatalog/internal/retry"
	"github.com/MrSnakeDoc/apicatalog/internal/scheduler"
	redisstore "github.com/MrSnakeDoc/apicatalog/internal/store/redis"
	"github.com/MrSnakeDoc/apicatalog/internal/utils"
	"github.com/MrSnakeDoc/apicatalog/internal/version"
)

type App struct {
	cfg          *config.Config
	logger       logger.Logger
	server       *httpserver.Server
	redisClient  *goredis.Client
	locator      *gateway.Locator
	bootstrapper *scheduler.Bootstrapper
	refresher    *scheduler.Refresher
	gc           *scheduler.GarbageCollector // nil without Redis
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
	measures := metrics.New()

	client, err := registry.NewEureka(registry.EurekaConfig{
		BaseURL: cfg.RegistryURL,
		Timeout: cfg.RegistryTimeout,
		Breaker: registry.BreakerConfig{
			MaxRequests:  cfg.BreakerMaxRequests,
			Interval:     cfg.BreakerInterval,
			Timeout:      cfg.BreakerTimeout,
			MinRequests:  cfg.BreakerMinRequests,
			FailureRatio: cfg.BreakerFailureRatio,
		},
	}, loggerClient, measures)
	if err != nil {
		loggerClient.Errorf("Failed to create registry client: %v", err)
		os.Exit(1)
	}

	locator := gateway.NewLocator(client, cfg.GatewayServiceID, loggerClient)
	services := cache.NewServices()
	containers := cache.NewContainers(services, cfg.MetadataKeys, locator)

	bootstrapper := scheduler.NewBootstrapper(
		client,
		containers,
		services,
		cfg.MetadataKeys,
		cfg.CatalogServiceID,
		retry.Fixed(cfg.RetryMaxAttempts, cfg.RetryDelay),
		loggerClient,
		measures,
	)

	// Redis is optional: without it events are only served over HTTP.
	var (
		redisClient *goredis.Client
		store       *redisstore.Store
		publisher   projector.Publisher
		history     deps.EventHistory
		gc          *scheduler.GarbageCollector
	)
	if cfg.RedisEnabled() {
		redisClient, err = redis.New(redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			MaxAttempts:    cfg.RedisMaxAttempts,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient)
		if err != nil {
			loggerClient.Errorf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		store = redisstore.NewStore(redisClient, cfg.EventStreamMaxLen)
		publisher, history = store, store
		gc = scheduler.NewGarbageCollector(store, containers, loggerClient, cfg.SnapshotGCInterval)
		loggerClient.Info("Redis initialized, container events will be published",
			logger.String("stream", redisstore.EventStreamKey()))
	} else {
		loggerClient.Info("Redis not configured, event publication disabled")
	}

	proj := projector.New(containers, cfg.RecentThreshold, publisher, loggerClient)

	refreshTrigger := make(chan struct{}, 1)
	refresher := scheduler.NewRefresher(
		client,
		locator,
		containers,
		services,
		cfg.MetadataKeys,
		scheduler.RefreshConfig{
			CatalogServiceID: cfg.CatalogServiceID,
			InitialDelay:     cfg.RefreshInitialDelay,
			Period:           cfg.RefreshPeriod,
			WorkerTimeout:    cfg.WorkerTimeout,
			EvictDeleted:     cfg.EvictDeleted,
		},
		loggerClient,
		measures,
		refreshTrigger,
	)
	refresher.OnMissingCatalog(bootstrapper.Reseed)
	refresher.OnChange(func(ctx context.Context, changed []string) {
		if err := proj.Publish(ctx, changed); err != nil {
			loggerClient.Warn("failed to publish container events",
				logger.Strings("containers", changed),
				logger.Error(err))
		}
	})

	var refreshLimiter *rate.Limiter
	if cfg.ManualRefreshEvery > 0 {
		refreshLimiter = rate.NewLimiter(rate.Every(cfg.ManualRefreshEvery), 1)
	}

	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		AllowedHosts:   cfg.AllowedHosts,
		AllowedCIDRS:   cfg.AllowedCIDRS,
		TrustProxy:     cfg.TrustProxy,
		Catalog:        proj,
		Services:       services,
		Bootstrap:      bootstrapper,
		Registry:       client,
		ContainerCount: containers.Count,
		RedisClient:    redisClient,
		Events:         history,
		Metrics:        measures.Handler(),
		RefreshTrigger: refreshTrigger,
		RefreshLimiter: refreshLimiter,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}

	return &App{
		cfg:          cfg,
		logger:       loggerClient,
		server:       httpserver.New(cfg, loggerClient, d),
		redisClient:  redisClient,
		locator:      locator,
		bootstrapper: bootstrapper,
		refresher:    refresher,
		gc:           gc,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting API catalog %s on %s", version.String(), a.cfg.ListenPort)
	defer func() { _ = a.logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Serve probes while the cache bootstraps; /readyz stays 503 until it is done.
	errCh := make(chan error, 2)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	go func() {
		// Best effort: seeded home pages are only rewritten once the gateway is known.
		if err := a.locator.Locate(ctx); err != nil {
			a.logger.Info("gateway not located before bootstrap", logger.Error(err))
		}
		if err := a.bootstrapper.Initialize(ctx); err != nil {
			var fatal *scheduler.CannotRegisterError
			if errors.As(err, &fatal) {
				errCh <- err
			}
			return
		}
		if err := a.refresher.Start(ctx); err != nil {
			errCh <- fmt.Errorf("failed to start refresh loop: %w", err)
			return
		}
		if a.gc != nil {
			if err := a.gc.Start(ctx); err != nil {
				errCh <- fmt.Errorf("failed to start snapshot garbage collector: %w", err)
			}
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
		a.logger.Error("catalog stopping on error", logger.Error(runErr))
	}

	a.refresher.Stop()
	if a.gc != nil {
		a.gc.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		utils.CloseLogged(a.redisClient, a.logger, "redis")
	}

	if runErr == nil {
		a.logger.Info("✅ API catalog stopped cleanly")
	}
	return runErr
}
