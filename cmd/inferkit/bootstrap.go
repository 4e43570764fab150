package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rushteam/inferkit/artifact"
	"github.com/rushteam/inferkit/config"
	_ "github.com/rushteam/inferkit/config/builders"
	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/feast"
	"github.com/rushteam/inferkit/pipeline"
	"github.com/rushteam/inferkit/server"
	"github.com/rushteam/inferkit/store"
	"github.com/rushteam/inferkit/usecase"
)

// loadEnv 读取进程配置，命令行参数优先
func loadEnv(cmd *cobra.Command) (*config.Env, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		env.UseCases = p
	}
	if root, _ := cmd.Flags().GetString("artifacts"); root != "" {
		env.ArtifactRoot = root
	}
	return env, nil
}

// newLogger 生产环境输出 JSON，开发模式输出彩色控制台日志
func newLogger(env *config.Env) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(strings.ToLower(env.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if env.LogDev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level
	return cfg.Build()
}

// runtime 进程级共享资源
type runtime struct {
	artifacts artifact.Store
	cache     core.Store
	feast     feast.Client
	useCases  []*usecase.UseCase
	logger    *zap.Logger
}

// bootstrap 创建共享资源并加载全部用例；任一制品加载失败即返回错误，进程拒绝启动
func bootstrap(ctx context.Context, env *config.Env, logger *zap.Logger, metrics *server.Metrics) (*runtime, error) {
	rt := &runtime{logger: logger}

	cfg, err := pipeline.Load(env.UseCases)
	if err != nil {
		return nil, err
	}

	rt.artifacts, err = artifact.New(ctx, env.ArtifactRoot, artifact.Options{
		HTTPTimeout:        env.ArtifactTimeout,
		GCSCredentialsFile: env.GCSCredentials,
	})
	if err != nil {
		return nil, err
	}

	rt.cache, err = store.New(store.Config{
		Backend:   store.Backend(strings.ToLower(env.CacheBackend)),
		RedisAddr: env.RedisAddr,
		RedisDB:   env.RedisDB,
		RedisPass: env.RedisPassword,
	})
	if err != nil {
		rt.close(ctx)
		return nil, err
	}

	if env.FeastHost != "" {
		opts := []feast.ClientOption{feast.WithTimeout(env.FeastTimeout)}
		if env.FeastToken != "" {
			opts = append(opts, feast.WithAuth(&feast.AuthConfig{Type: "static", Token: env.FeastToken, TLS: true}))
		}
		client, err := feast.NewGrpcClient(env.FeastHost, env.FeastPort, env.FeastProject, opts...)
		if err != nil {
			rt.close(ctx)
			return nil, err
		}
		rt.feast = client
	}

	deps := usecase.Deps{
		Artifacts: rt.artifacts,
		Factory:   config.DefaultFactory(),
		Cache:     rt.cache,
		CacheTTL:  env.CacheTTL,
		Feast:     rt.feast,
		Logger:    logger.Named("usecase"),
		Hooks:     metrics.Hooks(),
		Observer:  metrics.Observer(),
	}
	rt.useCases, err = usecase.LoadAll(ctx, cfg, deps)
	if err != nil {
		rt.close(ctx)
		return nil, err
	}
	return rt, nil
}

// close 按依赖逆序释放资源
func (rt *runtime) close(ctx context.Context) {
	if err := usecase.CloseAll(ctx, rt.useCases, rt.logger); err != nil {
		rt.logger.Warn("failed to close use cases", zap.Error(err))
	}
	if rt.feast != nil {
		if err := rt.feast.Close(); err != nil {
			rt.logger.Warn("failed to close feast client", zap.Error(err))
		}
	}
	if rt.cache != nil {
		if err := rt.cache.Close(); err != nil {
			rt.logger.Warn("failed to close cache store", zap.Error(err))
		}
	}
	if rt.artifacts != nil {
		if err := rt.artifacts.Close(); err != nil {
			rt.logger.Warn("failed to close artifact store", zap.Error(err))
		}
	}
}
