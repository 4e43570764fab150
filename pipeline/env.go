package pipeline

import (
	"go.uber.org/zap"

	"github.com/rushteam/inferkit/artifact"
	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/feast"
	"github.com/rushteam/inferkit/feature"
)

// Hooks 节点向外报告的非错误事件（编码回退、解释降级、缓存命中），由监控层接入。
type Hooks struct {
	EncoderFallback func(useCase, column string)
	ExplainDegraded func(useCase string)
	CacheResult     func(useCase string, hit bool)
}

// BuildEnv 是构建节点时可用的用例级资源。
//
// 所有字段在用例加载完成后只读，被该用例的全部请求共享。
type BuildEnv struct {
	UseCase string

	// Schema 输入列定义（表格用例），顺序已按 meta.json 固定
	Schema *feature.Schema

	// Encoders 类别编码器
	Encoders *feature.Registry

	// Scaler z-score 参数（可选）
	Scaler feature.Scaler

	// Labels 分类标签（图片用例）
	Labels []string

	// DefaultTopK 用例默认 K
	DefaultTopK int

	// Artifacts 制品存储
	Artifacts artifact.Store

	// Cache 预测缓存（可选）
	Cache    core.Store
	CacheTTL int

	// Feast 在线特征存储客户端（可选）
	Feast feast.Client

	Logger *zap.Logger
	Hooks  Hooks
}

// Log 返回非空的 logger
func (e *BuildEnv) Log() *zap.Logger {
	if e == nil || e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// OnEncoderFallback 报告类别回退
func (e *BuildEnv) OnEncoderFallback(column string) {
	if e != nil && e.Hooks.EncoderFallback != nil {
		e.Hooks.EncoderFallback(e.UseCase, column)
	}
}

// OnExplainDegraded 报告解释降级
func (e *BuildEnv) OnExplainDegraded() {
	if e != nil && e.Hooks.ExplainDegraded != nil {
		e.Hooks.ExplainDegraded(e.UseCase)
	}
}

// OnCacheResult 报告缓存命中 / 未命中
func (e *BuildEnv) OnCacheResult(hit bool) {
	if e != nil && e.Hooks.CacheResult != nil {
		e.Hooks.CacheResult(e.UseCase, hit)
	}
}
