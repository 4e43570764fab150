package stage

import (
	"context"

	"go.uber.org/zap"

	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/explain"
	"github.com/rushteam/inferkit/feature"
	"github.com/rushteam/inferkit/pipeline"
)

// ExplainNode 调用外部归因服务并把影响值后处理为正负因子。
//
// 特征名优先取归因服务返回的名字，其次是配置的 FeatureNames，最后是 schema 列名。
// 名字与影响值数量不一致时降级（warning），不视为错误；归因服务调用失败则整个请求失败。
type ExplainNode struct {
	Explainer    core.Explainer
	Schema       *feature.Schema
	FeatureNames []string
	ModelName    string
	TopK         int
	Logger       *zap.Logger
	OnDegraded   func()
}

func (n *ExplainNode) Name() string        { return "explain" }
func (n *ExplainNode) Kind() pipeline.Kind { return pipeline.KindExplain }

func (n *ExplainNode) Process(ctx context.Context, pctx *core.PredictContext) error {
	if pctx.Result == nil || pctx.Vector == nil {
		return core.NewDomainError(core.ModulePipeline, core.ErrorCodeInternalError, "explain node requires a decoded result")
	}
	names := n.featureNames()
	resp, err := n.Explainer.Explain(ctx, &core.ExplainRequest{
		Instance:     pctx.Vector,
		FeatureNames: names,
		ModelName:    n.ModelName,
	})
	if err != nil {
		if core.IsDomainError(err) {
			return err
		}
		return core.WrapDomainError(core.ModuleExplain, core.ErrorCodeInternalError, "explainer call failed", err)
	}
	if len(resp.FeatureNames) > 0 {
		names = resp.FeatureNames
	}

	topK := pctx.TopK
	if topK <= 0 {
		topK = n.TopK
	}
	exp := explain.FromImpacts(names, n.values(names, pctx.Vector), resp.Impacts, topK)
	if explain.IsDegraded(exp) {
		if n.Logger != nil {
			n.Logger.Warn("explanation degraded",
				zap.String("request_id", pctx.RequestID),
				zap.Int("feature_names", len(names)),
				zap.Int("impacts", len(resp.Impacts)),
			)
		}
		if n.OnDegraded != nil {
			n.OnDegraded()
		}
	}
	pctx.Result.Explanation = exp
	return nil
}

func (n *ExplainNode) featureNames() []string {
	if len(n.FeatureNames) > 0 {
		return n.FeatureNames
	}
	if n.Schema != nil {
		return n.Schema.Names()
	}
	return nil
}

// values 所有名字都是 schema 列时返回对应的已组装特征值，否则返回 nil（条目不带 value）
func (n *ExplainNode) values(names []string, vector core.FeatureVector) []float64 {
	if n.Schema == nil {
		return nil
	}
	out := make([]float64, len(names))
	for i, name := range names {
		idx, ok := n.Schema.Index(name)
		if !ok || idx >= len(vector) {
			return nil
		}
		out[i] = vector[idx]
	}
	return out
}

// Health 检查归因服务（若支持）
func (n *ExplainNode) Health(ctx context.Context) error {
	if hc, ok := n.Explainer.(pipeline.HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

// Close 关闭归因服务连接（若支持）
func (n *ExplainNode) Close(ctx context.Context) error {
	if c, ok := n.Explainer.(pipeline.Closer); ok {
		return c.Close(ctx)
	}
	return nil
}

var (
	_ pipeline.Node          = (*ExplainNode)(nil)
	_ pipeline.Closer        = (*ExplainNode)(nil)
	_ pipeline.HealthChecker = (*ExplainNode)(nil)
)
