package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rushteam/inferkit/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load every use case and serve predictions over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(env)
		if err != nil {
			return err
		}
		defer logger.Sync()

		if !env.LogDev {
			gin.SetMode(gin.ReleaseMode)
		}

		var metrics *server.Metrics
		if env.MetricsEnabled {
			metrics = server.NewMetrics()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := bootstrap(ctx, env, logger, metrics)
		if err != nil {
			logger.Error("failed to load use cases", zap.Error(err))
			return err
		}

		srv, err := server.New(rt.useCases, server.Options{
			Logger:         logger.Named("http"),
			Metrics:        metrics,
			CORSOrigins:    env.CORSOrigins,
			RateLimit:      env.RateLimit,
			RateBurst:      env.RateBurst,
			MaxUploadBytes: env.MaxUploadBytes,
		})
		if err != nil {
			rt.close(context.Background())
			return err
		}
		httpServer := srv.HTTPServer(env.Addr(), env.ReadTimeout, env.WriteTimeout)

		errCh := make(chan error, 1)
		go func() {
			routes := make([]string, 0, len(rt.useCases))
			for _, uc := range rt.useCases {
				routes = append(routes, uc.Route)
			}
			logger.Info("starting http server",
				zap.String("addr", env.Addr()),
				zap.Strings("routes", routes),
				zap.String("version", version),
			)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				logger.Error("http server failed", zap.Error(err))
				rt.close(context.Background())
				return err
			}
		case <-ctx.Done():
		}

		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), env.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server shutdown", zap.Error(err))
		}
		rt.close(shutdownCtx)
		logger.Info("server stopped")
		return nil
	},
}
