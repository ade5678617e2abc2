package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agencysite/backend/internal/banner"
	"agencysite/backend/internal/config"
	"agencysite/backend/internal/connectivity"
	"agencysite/backend/internal/cooldown"
	"agencysite/backend/internal/domain"
	"agencysite/backend/internal/flusher"
	"agencysite/backend/internal/form"
	"agencysite/backend/internal/health"
	"agencysite/backend/internal/logger"
	"agencysite/backend/internal/mailer"
	"agencysite/backend/internal/middleware"
	"agencysite/backend/internal/monitoring"
	"agencysite/backend/internal/offlinecache"
	"agencysite/backend/internal/outbox"
	"agencysite/backend/internal/pool"
	"agencysite/backend/internal/storage"
	"agencysite/backend/internal/storage/filesystem"
	"agencysite/backend/internal/storage/memory"
	"agencysite/backend/internal/storage/postgres"
	redisstore "agencysite/backend/internal/storage/redis"
	sqlstore "agencysite/backend/internal/storage/sql"
	httptransport "agencysite/backend/internal/transport/http"
	"agencysite/backend/internal/websocket"
)

// main 启动联系表单服务：HTTP 接口、发件箱冲刷循环、离线缓存代理。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting agencysite backend",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化键值存储（发件箱与冷却锁的持久化后端）
	kv, redisClient, err := initializeKVStore(cfg, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize storage: %v", err))
	}

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 初始化投递归档（可选）
	var archive storage.ArchiveRepository
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		sqlArchive, err := sqlstore.NewArchive(sqlstore.Config{
			Type:            cfg.Database.Type,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			panic(fmt.Sprintf("failed to initialize archive database: %v", err))
		}
		if err := sqlArchive.Migrate(); err != nil {
			panic(fmt.Sprintf("failed to migrate archive schema: %v", err))
		}
		archive = sqlArchive
		defer sqlArchive.Close()
		log.Info("delivery archive enabled", zap.String("type", cfg.Database.Type))
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化冲刷仲裁锁（多实例部署时的单写者保证）
	locker, lockerCleanup, err := initializeLocker(ctx, cfg, redisClient, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize flush locker: %v", err))
	}
	if lockerCleanup != nil {
		defer lockerCleanup()
	}

	// 组装核心流水线
	ob := outbox.New(kv, log)
	lock := cooldown.New(kv, cfg.Contact.Cooldown, log)

	probe := connectivity.New(cfg.Probe.PingURL, cfg.Probe.FallbackURL,
		cfg.Probe.Timeout, log)

	sender := buildSender(cfg, log)

	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log)

	// 结果事件扇出：页面推送、状态横幅，多实例部署时再转发 Redis
	statusBanner := banner.New()
	eventSinks := outcomeFanout{wsHub, statusBanner}
	if redisClient != nil {
		eventSinks = append(eventSinks, &redisOutcomePublisher{client: redisClient, log: log})
	}

	flushOpts := []flusher.Option{
		flusher.WithEventSink(eventSinks),
		flusher.WithMetrics(metrics),
	}
	if locker != nil {
		flushOpts = append(flushOpts, flusher.WithLocker(locker, cfg.Flush.LockTTL))
	}
	if archive != nil {
		flushOpts = append(flushOpts, flusher.WithArchive(archive))
	}
	flush := flusher.New(ob, sender, probe, lock, cfg.Flush.Interval, log, flushOpts...)

	// 页面打开或回到前台会建立新连接，正好触发一次冲刷
	wsHub.SetOnConnect(flush.NotifyVisible)

	controllerOpts := []form.Option{
		form.WithEventSink(eventSinks),
		form.WithMetrics(metrics),
	}
	if cfg.Contact.EnqueueOnFailure {
		controllerOpts = append(controllerOpts, form.WithEnqueueOnFailure())
	}
	controller := form.New(sender, probe, lock, ob, log, controllerOpts...)

	// 离线缓存（可选，仅在配置了上游地址时启用）
	var cacheWorker *offlinecache.Worker
	bgPool := pool.NewWorkerPool(4, 64, log)
	if cfg.Cache.UpstreamURL != "" {
		cacheWorker = offlinecache.NewWorker(offlinecache.NewStore(), offlinecache.Config{
			Version:     cfg.Cache.Version,
			UpstreamURL: cfg.Cache.UpstreamURL,
			Precache:    cfg.Cache.Precache,
			ShellPath:   cfg.Cache.ShellPath,
			OfflinePath: cfg.Cache.OfflinePath,
		}, bgPool, log, offlinecache.WithMetrics(metrics))
		log.Info("offline cache enabled",
			zap.String("version", cfg.Cache.Version),
			zap.String("upstream", cfg.Cache.UpstreamURL))
	}

	// 健康检查
	healthChecker := health.NewChecker(cfg.Contact.ProviderURL, archive)
	healthChecker.AddReadinessCheck("connectivity", health.ProbeReadiness(probe))

	// 限流器
	rateLimiter := middleware.NewRateLimiter(0.2, 5, metrics)

	// HTTP 路由
	contactHandler := httptransport.NewContactHandler(controller, ob, log, metrics)
	bannerHandler := httptransport.NewBannerHandler(statusBanner)
	var archiveHandler *httptransport.ArchiveHandler
	if archive != nil {
		archiveHandler = httptransport.NewArchiveHandler(archive, log)
	}
	var cacheHandler *httptransport.CacheHandler
	if cacheWorker != nil {
		cacheHandler = httptransport.NewCacheHandler(cacheWorker, log)
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Contact:        contactHandler,
		Banner:         bannerHandler,
		Archive:        archiveHandler,
		Cache:          cacheHandler,
		Hub:            wsHub,
		Health:         healthChecker,
		Metrics:        metrics,
		RateLimiter:    rateLimiter,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Log:            log,
		Development:    cfg.Log.Development,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		wsHub.Run(groupCtx)
		return nil
	})

	// 后台任务池
	bgPool.Start(groupCtx)

	// 冲刷循环 goroutine
	group.Go(func() error {
		if err := flush.Run(groupCtx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})

	// 连通性监视 goroutine：状态翻转时推送事件并唤醒冲刷
	group.Go(func() error {
		watchConnectivity(groupCtx, probe, flush, wsHub, metrics, log)
		return nil
	})

	// 离线缓存 goroutine
	if cacheWorker != nil {
		group.Go(func() error {
			if err := cacheWorker.Run(groupCtx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})
		// 安装与激活在工作协程起来后执行
		group.Go(func() error {
			cacheWorker.Install(groupCtx)
			cacheWorker.Activate(groupCtx)
			return nil
		})
	}

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		bgPool.Stop()

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// outcomeSink 结果事件出口
type outcomeSink interface {
	PublishOutcome(event domain.OutcomeEvent)
}

// outcomeFanout 把结果事件广播给多个出口
type outcomeFanout []outcomeSink

func (f outcomeFanout) PublishOutcome(event domain.OutcomeEvent) {
	for _, sink := range f {
		sink.PublishOutcome(event)
	}
}

// redisOutcomePublisher 把结果事件转发到 Redis 频道，供其他实例的枢纽订阅
type redisOutcomePublisher struct {
	client *redisstore.Client
	log    *zap.Logger
}

func (p *redisOutcomePublisher) PublishOutcome(event domain.OutcomeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.client.PublishOutcome(ctx, event); err != nil {
		p.log.Warn("结果事件转发到 redis 失败", zap.Error(err))
	}
}

// watchConnectivity 周期探测连通性，在状态翻转时发事件
func watchConnectivity(ctx context.Context, probe *connectivity.Probe,
	flush *flusher.Flusher, hub *websocket.Hub,
	metrics *monitoring.Metrics, log *zap.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	wasOnline := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := probe.IsOnline(ctx)
			metrics.RecordProbe(online)

			if online == wasOnline {
				continue
			}
			wasOnline = online

			log.Info("connectivity changed", zap.Bool("online", online))
			hub.PublishConnectivity(domain.ConnectivityEvent{
				Online:    online,
				Timestamp: time.Now(),
			})
			if online {
				flush.NotifyOnline()
			}
		}
	}
}

// initializeKVStore 按配置选择键值存储后端
//
// 返回 redis 客户端（如果用了 redis），供冲刷仲裁复用同一连接。
func initializeKVStore(cfg *config.Config, log *zap.Logger) (storage.KeyValueStore, *redisstore.Client, error) {
	switch cfg.Storage.Backend {
	case "redis":
		client, err := redisstore.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using redis storage", zap.String("address", cfg.Redis.Address))
		return client, client, nil
	case "filesystem":
		store, err := filesystem.NewStore(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using filesystem storage", zap.String("path", cfg.Storage.Path))
		return store, nil, nil
	default:
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil, nil
	}
}

// initializeLocker 按配置选择冲刷仲裁后端
func initializeLocker(ctx context.Context, cfg *config.Config,
	redisClient *redisstore.Client, log *zap.Logger) (storage.Locker, func(), error) {
	switch cfg.Flush.Arbiter {
	case "redis":
		client := redisClient
		if client == nil {
			var err error
			client, err = redisstore.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return nil, nil, err
			}
		}
		log.Info("flush arbitration via redis")
		return client, nil, nil
	case "postgres":
		advisory, err := postgres.NewAdvisoryLocker(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		log.Info("flush arbitration via postgres advisory locks")
		return advisory, advisory.Close, nil
	default:
		// 单进程部署用进程内锁就够了
		return memory.NewLocker(), nil, nil
	}
}

// buildSender 按配置选择投递通道，SMTP 优先于 HTTP 服务商
func buildSender(cfg *config.Config, log *zap.Logger) mailer.Sender {
	if cfg.Contact.SMTPAddr != "" {
		log.Info("delivery via SMTP", zap.String("address", cfg.Contact.SMTPAddr))
		return mailer.NewSMTPSender(cfg.Contact.SMTPAddr, cfg.Contact.SMTPFrom,
			cfg.Contact.SMTPTo, log)
	}
	log.Info("delivery via HTTP provider", zap.String("url", cfg.Contact.ProviderURL))
	return mailer.NewHTTPSender(cfg.Contact.ProviderURL, cfg.Contact.ProviderTimeout, log)
}
