package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wisefido-anxiety/common/logger"
	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/httpapi"
	"wisefido-anxiety/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-anxiety")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 创建服务
	anxietyService, err := service.NewAnxietyService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create anxiety service",
			zap.Error(err),
		)
	}

	// 4. 创建 HTTP 路由
	router := httpapi.NewRouter(log)
	router.RegisterAnxietyRoutes(httpapi.NewAlertHandler(anxietyService.Engine(), log))
	router.RegisterOpsRoutes()
	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	// 5. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6. 启动服务（在 goroutine 中）
	serviceErrChan := make(chan error, 2)
	go func() {
		if err := anxietyService.Start(ctx); err != nil {
			serviceErrChan <- err
		}
	}()
	go func() {
		if err := srv.Start(); err != nil {
			serviceErrChan <- err
		}
	}()

	// 7. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case err := <-serviceErrChan:
		log.Error("Service error, shutting down",
			zap.Error(err),
		)
	}
	cancel() // 取消上下文，停止接入

	// 8. 停止 HTTP 服务与后台服务
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop HTTP server", zap.Error(err))
	}
	if err := anxietyService.Stop(); err != nil {
		log.Error("Failed to stop anxiety service", zap.Error(err))
	}

	log.Info("Anxiety service stopped")
}
