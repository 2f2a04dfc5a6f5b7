package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tootsearch/tootsearch/internal/api"
	"github.com/tootsearch/tootsearch/internal/cache"
	"github.com/tootsearch/tootsearch/pkg/logging"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve search and top-N queries over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.GetLogger()

			st, idx, closer, err := a.openArchive(false)
			if err != nil {
				return err
			}
			defer closer()

			redisCache, err := cache.New(&a.cfg.Redis)
			if err != nil {
				return err
			}
			defer redisCache.Close()

			if a.cfg.Logging.Level == "DEBUG" {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}

			engine := gin.New()
			engine.Use(gin.Recovery())
			api.NewRouter(st, idx, redisCache).SetupRoutes(engine)

			srv := &http.Server{
				Addr:    fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
				Handler: engine,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Server starting", zap.String("address", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-quit:
			}

			logger.Info("Shutting down server...")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			logger.Info("Server exited")
			return nil
		},
	}
}
