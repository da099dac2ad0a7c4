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

	"nmail/backend/internal/config"
	"nmail/backend/internal/health"
	"nmail/backend/internal/logger"
	"nmail/backend/internal/monitoring"
	"nmail/backend/internal/service"
	"nmail/backend/internal/smtp"
	"nmail/backend/internal/storage"
	"nmail/backend/internal/storage/memory"
	sqlstore "nmail/backend/internal/storage/sql"
	"nmail/backend/internal/sweeper"
	httptransport "nmail/backend/internal/transport/http"
	"nmail/backend/internal/websocket"
)

// main 启动同时包含 HTTP API 与 SMTP 接收的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
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
	defer log.Sync()

	log.Info("starting nmail server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = sqlstore.NewStore(sqlstore.Config{
			Type:            cfg.Database.Type,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			log.Fatal("failed to initialize database storage", zap.Error(err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage")
	}
	defer store.Close()

	// 监控与健康检查
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewChecker(store, log)

	// 服务层
	mailboxService := service.NewMailboxService(store, cfg)
	messageService := service.NewMessageService(store)

	// WebSocket 实时推送
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, mailboxService, log)

	// HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		MailboxService: mailboxService,
		MessageService: messageService,
		Metrics:        metrics,
		HealthChecker:  healthChecker,
		WebSocketHub:   wsHub,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// SMTP 接收器。端口探测失败是致命的启动错误。
	limiter := smtp.NewSessionLimiter(cfg.SMTP.MaxConnections, cfg.SMTP.ConnRate)
	smtpBackend := smtp.NewBackend(
		mailboxService,
		messageService,
		wsHub,
		limiter,
		metrics,
		cfg.SMTP.MaxMessageBytes,
		log,
	)
	smtpListener, err := smtp.NewListener(smtp.ListenerConfig{
		Host:            cfg.SMTP.Host,
		StartPort:       cfg.SMTP.StartPort,
		PortProbeWindow: cfg.SMTP.PortProbeWindow,
		Domain:          cfg.SMTP.Domain,
		MaxMessageBytes: cfg.SMTP.MaxMessageBytes,
		MaxRecipients:   cfg.SMTP.MaxRecipients,
		ReadTimeout:     cfg.SMTP.ReadTimeout,
		WriteTimeout:    cfg.SMTP.WriteTimeout,
	}, smtpBackend, log)
	if err != nil {
		log.Fatal("failed to bind SMTP listener", zap.Error(err))
	}

	// 过期邮箱清理任务
	mailboxSweeper := sweeper.New(store, cfg.Sweep.Interval, metrics, log)

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	// SMTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.Int("port", smtpListener.Port()),
			zap.String("domain", cfg.SMTP.Domain),
		)
		if err := smtpListener.Serve(); err != nil {
			select {
			case <-groupCtx.Done():
				// 关闭阶段的监听错误是预期行为
				return nil
			default:
				log.Error("SMTP server error", zap.Error(err))
				return err
			}
		}
		return nil
	})

	// 定时清理过期邮箱 goroutine
	group.Go(func() error {
		mailboxSweeper.Run(groupCtx)
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		if err := smtpListener.Close(); err != nil {
			log.Warn("SMTP server close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
