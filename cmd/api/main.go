package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/config"
	"github.com/z-wentao/voicestudio/pkg/logger"
	"github.com/z-wentao/voicestudio/pkg/studio"
)

// App 应用上下文
type App struct {
	config *config.Config
	studio *studio.Studio
}

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig(config.Path())
	if err != nil {
		logrus.Fatalf("❌ 加载配置失败: %v", err)
	}

	// 2. 日志
	closer, err := logger.Setup(cfg.Log)
	if err != nil {
		logrus.Fatalf("❌ 初始化日志失败: %v", err)
	}
	defer closer.Close()
	logrus.Info("✓ 配置加载成功")

	// 3. 初始化工作台
	s, err := studio.New(cfg, studio.Deps{})
	if err != nil {
		logrus.Fatalf("❌ 初始化工作台失败: %v", err)
	}
	app := &App{config: cfg, studio: s}

	// 4. 启动 HTTP 服务器
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: app.setupRouter(),
	}

	logrus.Infof("🚀 VoiceStudio 服务器启动在 http://localhost:%d", cfg.Server.Port)
	logrus.Infof("📝 配置信息: 推理=%s 存储=%s 历史=%s 事件=%s",
		cfg.Inference.Provider, cfg.Storage.Type, cfg.History.Backend, cfg.Events.Type)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("❌ 服务器启动失败: %v", err)
		}
	}()

	// 5. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("🛑 正在关闭服务器...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Warnf("⚠️ 关闭 HTTP 服务失败: %v", err)
	}
	if err := s.Close(); err != nil {
		logrus.Warnf("⚠️ 关闭工作台失败: %v", err)
	}
	logrus.Info("✓ 服务器已关闭")
}
