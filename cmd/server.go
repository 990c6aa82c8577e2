package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/shipchange-gin/internal/api"
	"github.com/mautops/shipchange-gin/internal/config"
	"github.com/mautops/shipchange-gin/internal/container"
	"github.com/mautops/shipchange-gin/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the Shipchange API server.
The server will listen on the configured host and port,
and provide REST API interfaces for change request management.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		cfg, log, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if config.IsProduction(cfg) {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 2. 链路追踪
		shutdownTracing, err := api.InitTracing(ctx, cfg.Tracing)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				log.WithError(err).Warn("Failed to flush traces")
			}
		}()

		// 3. 初始化容器与后台任务
		ctr, err := container.NewContainer(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()
		if err := ctr.Start(ctx); err != nil {
			return err
		}

		// 4. 配置热更新，目前只应用日志级别
		configPath, _ := cmd.Flags().GetString("config")
		if configPath != "" {
			watcher := config.NewConfigWatcher(cfg, configPath, log)
			watcher.OnConfigChange(func(next *config.Config) {
				if logger.ApplyLevel(log, next.Log.Level) {
					log.WithField("level", next.Log.Level).Info("Log level updated")
				}
			})
			if err := watcher.Start(); err != nil {
				log.WithError(err).Warn("Config watcher disabled")
			} else {
				defer watcher.Stop()
			}
		}

		// 5. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           api.SetupRoutes(ctr.RouterDeps()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.WithField("addr", addr).Info("Server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("failed to start server: %w", err)
			}
		case <-ctx.Done():
		}

		log.Info("Shutting down server")

		// 优雅关闭
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Server forced to shutdown")
			return err
		}

		log.WithFields(logrus.Fields{"addr": addr}).Info("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}
