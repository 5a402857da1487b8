package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailsync/backend/internal/config"
	"mailsync/backend/internal/graph"
	"mailsync/backend/internal/health"
	"mailsync/backend/internal/logger"
	"mailsync/backend/internal/monitoring"
	"mailsync/backend/internal/service"
	"mailsync/backend/internal/storage"
	"mailsync/backend/internal/storage/memory"
	"mailsync/backend/internal/storage/redis"
	sqlstore "mailsync/backend/internal/storage/sql"
	mailsync "mailsync/backend/internal/sync"
	httptransport "mailsync/backend/internal/transport/http"
)

// main 启动邮件同步服务：HTTP API、可选的后台周期同步与监控端点。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting mailsync server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 上游配置不完整时仍可启动：本地读取可用，同步会降级
	if err := cfg.Validate(); err != nil {
		log.Warn("graph settings incomplete, sync will serve stale data only", zap.Error(err))
	}

	metrics := monitoring.NewMetrics()

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = sqlstore.NewStore(sqlstore.Config{
			DriverName:      cfg.Database.Type,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			MaxAttempts:     cfg.Database.MaxAttempts,
			RetryBackoff:    cfg.Database.RetryBackoff,
			OnRetry:         metrics.RecordStoreRetry,
		}, log)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer func() { _ = store.Close() }()

	// 可选的 Redis 列表缓存
	var cache *redis.Cache
	if cfg.Redis.Enabled {
		cache, err = redis.NewCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("redis unavailable, continuing without listing cache", zap.Error(err))
			cache = nil
		} else {
			log.Info("redis listing cache enabled", zap.String("address", cfg.Redis.Address))
			defer func() { _ = cache.Close() }()
		}
	}

	healthChecker := health.NewChecker(store, cache, log)

	// 上游抽取链路
	graphCfg := graph.Config{
		TenantID:     cfg.Graph.TenantID,
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: cfg.Graph.ClientSecret,
		Scope:        cfg.Graph.Scope,
		LoginBaseURL: cfg.Graph.LoginBaseURL,
		GraphBaseURL: cfg.Graph.GraphBaseURL,
		MailboxUser:  cfg.Graph.MailboxUser,
		TargetFolder: cfg.Graph.TargetFolder,
		PageSize:     cfg.Graph.PageSize,
		MaxPages:     cfg.Graph.MaxPages,
		Timeout:      cfg.Graph.Timeout,
	}
	tokens := graph.NewTokenSource(graphCfg, store, log)
	tokens.SetRefreshObserver(metrics.RecordTokenRefresh)
	extractor := graph.NewClient(graphCfg, log)
	extractor.SetRequestObserver(metrics.RecordGraphRequest)

	// 同步编排
	var listingCache mailsync.ListingCache
	if cache != nil {
		listingCache = cache
	}
	orchestrator := mailsync.NewOrchestrator(mailsync.OrchestratorOptions{
		Store:        store,
		Tokens:       tokens,
		Extractor:    extractor,
		Reconciler:   mailsync.NewReconciler(store, log),
		Cache:        listingCache,
		Metrics:      metrics,
		Logger:       log,
		TargetFolder: cfg.Graph.TargetFolder,
	})

	ticketService := service.NewTicketService(store, listingCache, log)

	// HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:        cfg,
		Orchestrator:  orchestrator,
		TicketService: ticketService,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		Logger:        log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute, // 同步触发可能跑满整个抽取窗口
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 可选的后台周期同步
	if cfg.Sync.Interval > 0 {
		group.Go(func() error {
			ticker := time.NewTicker(cfg.Sync.Interval)
			defer ticker.Stop()

			log.Info("starting periodic sync task", zap.Duration("interval", cfg.Sync.Interval))

			for {
				select {
				case <-groupCtx.Done():
					log.Info("periodic sync task stopped")
					return nil
				case <-ticker.C:
					result := orchestrator.PerformSync(groupCtx, false)
					if result.Fallback {
						log.Warn("periodic sync degraded", zap.String("message", result.Message))
					}
				}
			}
		})
	}

	// 等待退出信号后优雅关闭
	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		log.Info("shutting down HTTP server")
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", zap.Error(err))
	}
	log.Info("server stopped")
}
