package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yuqie6/cyclecal/internal/bootstrap"
	"github.com/yuqie6/cyclecal/internal/httpapi"
	"github.com/yuqie6/cyclecal/internal/pkg/buildinfo"
	"github.com/yuqie6/cyclecal/internal/pkg/config"
)

func main() {
	var cfgPath string
	var showVersion bool
	flag.StringVar(&cfgPath, "config", "", "配置文件路径")
	flag.BoolVar(&showVersion, "version", false, "打印版本后退出")
	flag.Parse()

	if showVersion {
		fmt.Printf("cyclecal-server %s (%s)\n", buildinfo.Version, buildinfo.Commit)
		return
	}

	if err := run(cfgPath); err != nil {
		slog.Error("服务退出", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	if cfgPath == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			return err
		}
		cfgPath = p
		if err := ensureConfigFile(cfgPath); err != nil {
			return err
		}
	}

	core, err := bootstrap.NewCore(cfgPath)
	if err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}
	defer core.Close()

	slog.Info("cyclecal 启动",
		"version", buildinfo.Version,
		"db_path", core.Cfg.Storage.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := httpapi.Start(ctx, core, httpapi.Options{
		ListenAddr: core.Cfg.Server.ListenAddr,
	})
	if err != nil {
		return fmt.Errorf("启动 HTTP 服务失败: %w", err)
	}

	// 配置热重载：目前只动态调整日志级别
	if err := config.Watch(ctx, cfgPath, func(cfg *config.Config) {
		config.SetupLogger(cfg.App.LogLevel)
	}); err != nil {
		slog.Warn("配置文件监控未启用", "error", err)
	}

	<-ctx.Done()
	slog.Info("收到退出信号，正在关闭")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP 服务关闭异常", "error", err)
	}
	return nil
}

// ensureConfigFile 首次运行时写出默认配置文件
func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if err := config.WriteFile(path, cfg); err != nil {
		return err
	}
	slog.Info("已生成默认配置文件", "path", path)
	return nil
}
