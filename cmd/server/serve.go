package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"itemhub/pkg/database"
	"itemhub/pkg/log"

	"github.com/spf13/cobra"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务，收到 SIGHUP 时重新加载分类体系配置",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if migrateOnStart {
			if err := database.Migrate(a.db, a.registry); err != nil {
				return err
			}
		}

		// 启动 HTTP 服务器并实现优雅停机
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
			Handler: a.router,
		}

		go func() {
			log.Infof("服务启动于 %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("HTTP 服务监听失败: %s\n", err)
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		for sig := range quit {
			if sig != syscall.SIGHUP {
				break
			}
			if err := a.reloadTaxonomies(); err != nil {
				log.Errorf("重新加载分类体系失败，保留当前配置: %v", err)
				continue
			}
			log.Infof("分类体系已重新加载: %v", a.registry.Keys())
		}
		log.Info("接收到停机信号，正在关闭服务...")

		// 设置一个5秒的超时上下文
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("HTTP 服务器关闭失败: %w", err)
		}

		log.Info("服务已优雅关闭")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "启动前执行表结构迁移")
}
