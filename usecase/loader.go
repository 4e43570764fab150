package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/inferkit/config"
	"github.com/rushteam/inferkit/pipeline"
)

// LoadAll 并发加载所有用例，按配置顺序返回；任一失败时关闭已加载的用例并返回该错误。
func LoadAll(ctx context.Context, cfg *pipeline.Config, deps Deps) ([]*UseCase, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for i := range cfg.UseCases {
		if err := config.ValidateUseCase(&cfg.UseCases[i]); err != nil {
			return nil, err
		}
	}

	ucs := make([]*UseCase, len(cfg.UseCases))
	g, gctx := errgroup.WithContext(ctx)
	for i, ucCfg := range cfg.UseCases {
		g.Go(func() error {
			uc, err := Load(gctx, ucCfg, deps)
			if err != nil {
				return err
			}
			ucs[i] = uc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		CloseAll(context.Background(), ucs, deps.Logger)
		return nil, err
	}
	return ucs, nil
}

// CloseAll 关闭所有用例，忽略 nil
func CloseAll(ctx context.Context, ucs []*UseCase, logger *zap.Logger) error {
	var errs []error
	for _, uc := range ucs {
		if uc == nil {
			continue
		}
		if err := uc.Close(ctx); err != nil {
			errs = append(errs, err)
			if logger != nil {
				logger.Warn("failed to close use case", zap.String("usecase", uc.Name), zap.Error(err))
			}
		}
	}
	return errors.Join(errs...)
}

// ReadyAll 并发检查所有用例的后端，返回 用例名 -> 错误（健康为 nil）
func ReadyAll(ctx context.Context, ucs []*UseCase) map[string]error {
	results := make([]error, len(ucs))
	var g errgroup.Group
	for i, uc := range ucs {
		g.Go(func() error {
			results[i] = uc.Ready(ctx)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]error, len(ucs))
	for i, uc := range ucs {
		out[uc.Name] = results[i]
	}
	return out
}
