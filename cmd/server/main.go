package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gamewallet/internal/config"
	"gamewallet/internal/handler"
	"gamewallet/internal/infrastructure/cache"
	"gamewallet/internal/infrastructure/clock"
	"gamewallet/internal/infrastructure/database"
	"gamewallet/internal/infrastructure/logger"
	"gamewallet/internal/infrastructure/metrics"
	"gamewallet/internal/infrastructure/mq"
	"gamewallet/internal/job"
	"gamewallet/internal/provider"
	"gamewallet/internal/service"
	"gamewallet/pkg/idgen"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}

	if err := idgen.Init(int64(cfg.Server.WorkerID)); err != nil {
		log.Fatalf("初始化 ID 生成器失败: %v", err)
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("连接数据库失败: %v", err)
	}

	redisClient, err := cache.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("连接 Redis 失败: %v", err)
	}
	defer redisClient.Close()

	publisher, err := mq.NewKafkaPublisher(&cfg.Kafka)
	if err != nil {
		log.Fatalf("初始化 Kafka 失败: %v", err)
	}
	defer publisher.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	launchers := make(map[string]service.Launcher, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		launchers[name] = provider.NewClient(name, pc, nil)
	}

	svc := service.New(service.Deps{
		DB:        db,
		Redis:     redisClient,
		Config:    cfg,
		Metrics:   m,
		Clock:     clock.RealClock{},
		Launchers: launchers,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// 后台任务
	outboxSender := job.NewOutboxSender(db, publisher, m, cfg.Business.MaxRetryCount)
	g.Go(func() error {
		outboxSender.Start(gctx)
		return nil
	})

	depositTimeout := job.NewDepositTimeoutJob(svc.Deposit)
	g.Go(func() error {
		depositTimeout.Start(gctx)
		return nil
	})

	if cfg.Scheduler.Enabled {
		scheduler, err := job.NewScheduler(cfg.Scheduler, svc.Vip, svc.Promotion, redisClient)
		if err != nil {
			log.Fatalf("创建调度器失败: %v", err)
		}
		if err := scheduler.Start(gctx); err != nil {
			log.Fatalf("启动调度器失败: %v", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			return scheduler.Stop()
		})
	}

	router := handler.SetupRouter(cfg, svc, prometheus.DefaultGatherer)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info(gctx, "服务启动", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("服务启动失败: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "正在关闭服务...")

		// 关闭 HTTP 服务（等待最多5秒）
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(context.Background(), "服务异常退出", "err", err)
		os.Exit(1)
	}
	logger.Info(context.Background(), "服务已关闭")
}
