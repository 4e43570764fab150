package stage

import (
	"context"

	"go.uber.org/zap"

	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/feature"
	"github.com/rushteam/inferkit/pipeline"
)

// AssembleNode 把记录组装为按制品列顺序排列的特征向量，配置了 Scaler 时再做 z-score。
//
// 未见过的类别值不报错，回退到编码器的 fallback 类别，并以 debug 日志和 OnFallback 报告。
type AssembleNode struct {
	Schema     *feature.Schema
	Encoders   *feature.Registry
	Scaler     feature.Scaler
	Logger     *zap.Logger
	OnFallback func(column string)
}

func (n *AssembleNode) Name() string        { return "assemble" }
func (n *AssembleNode) Kind() pipeline.Kind { return pipeline.KindAssemble }

func (n *AssembleNode) Process(ctx context.Context, pctx *core.PredictContext) error {
	vector, err := feature.Assemble(n.Schema, n.Encoders, pctx.Record, feature.WithFallbackHook(n.fallback(pctx)))
	if err != nil {
		return err
	}
	if len(n.Scaler) > 0 {
		vector = n.Scaler.Apply(n.Schema, vector)
	}
	pctx.Vector = vector
	return nil
}

func (n *AssembleNode) fallback(pctx *core.PredictContext) feature.FallbackFunc {
	return func(column, value, fallback string) {
		if n.Logger != nil {
			n.Logger.Debug("unseen category, using fallback",
				zap.String("request_id", pctx.RequestID),
				zap.String("column", column),
				zap.String("value", value),
				zap.String("fallback", fallback),
			)
		}
		if n.OnFallback != nil {
			n.OnFallback(column)
		}
	}
}

var _ pipeline.Node = (*AssembleNode)(nil)
