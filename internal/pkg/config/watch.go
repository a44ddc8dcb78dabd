package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch 监控配置文件变化，重新加载后回调 onReload。
// 编辑器保存常产生连续多个写事件，做简单去抖后只回调一次。
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监控器失败: %w", err)
	}

	// 监控目录而不是文件本身，覆盖原子替换写入的场景
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("添加监控目录失败: %w", err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		target = path
	}

	go func() {
		defer watcher.Close()

		var lastReload time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name, err := filepath.Abs(event.Name)
				if err != nil || name != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if time.Since(lastReload) < time.Second {
					continue
				}
				lastReload = time.Now()

				cfg, err := Load(path)
				if err != nil {
					slog.Warn("配置文件重载失败", "path", path, "error", err)
					continue
				}
				slog.Info("配置文件已重载", "path", path)
				if onReload != nil {
					onReload(cfg)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("配置文件监控出错", "error", err)
			}
		}
	}()

	return nil
}
