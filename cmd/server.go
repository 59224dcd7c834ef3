package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/config"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/database"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/server"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/storage"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动服务器与视频生成定时任务",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// 创建日志器
		log := logger.New(cfg.Log)
		defer log.Close()

		if config.WatchLogLevel(func(level string, e fsnotify.Event) {
			log.SetLevel(level)
			log.Infof("配置文件 %s 已变更，日志级别调整为 %s", e.Name, log.Level())
		}) {
			log.Debugf("已监听配置文件变更")
		}

		// 初始化数据库
		if err := database.Init(cfg, log); err != nil {
			log.Errorf("数据库初始化失败: %v", err)
			return err
		}

		store, err := storage.New(cmd.Context(), cfg.Storage)
		if err != nil {
			log.Errorf("初始化存储失败: %v", err)
			return err
		}

		srv, err := server.New(cfg, log, database.GetDB(), store)
		if err != nil {
			log.Errorf("创建服务器失败: %v", err)
			return err
		}

		// 在协程中启动服务器
		errCh := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			log.Infof("收到关闭信号，正在关闭服务器...")
		case err := <-errCh:
			log.Errorf("启动服务器失败: %v", err)
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("服务器关闭失败: %v", err)
		}
		log.Infof("服务器已退出")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
