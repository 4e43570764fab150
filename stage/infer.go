package stage

import (
	"context"

	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/infer"
	"github.com/rushteam/inferkit/pipeline"
)

// InferNode 对组装好的向量（或图片张量）做一次外部模型调用
type InferNode struct {
	Adapter *infer.Adapter
}

func (n *InferNode) Name() string        { return "infer." + string(n.Adapter.Kind()) }
func (n *InferNode) Kind() pipeline.Kind { return pipeline.KindInfer }

func (n *InferNode) Process(ctx context.Context, pctx *core.PredictContext) error {
	var (
		out core.RawOutput
		err error
	)
	if n.Adapter.Kind() == infer.QuantizedInterpreter {
		if pctx.Tensor == nil {
			return core.NewDomainError(core.ModulePipeline, core.ErrorCodeInternalError, "infer node requires a preprocessed tensor")
		}
		out, err = n.Adapter.InferTensor(ctx, pctx.Tensor)
	} else {
		if pctx.Vector == nil {
			return core.NewDomainError(core.ModulePipeline, core.ErrorCodeInternalError, "infer node requires an assembled feature vector")
		}
		out, err = n.Adapter.Infer(ctx, pctx.Vector)
	}
	if err != nil {
		return err
	}
	pctx.Raw = &out
	return nil
}

// Health 检查模型服务（不触发推理）
func (n *InferNode) Health(ctx context.Context) error {
	return n.Adapter.Service().Health(ctx)
}

// Close 关闭模型服务连接
func (n *InferNode) Close(ctx context.Context) error {
	return n.Adapter.Service().Close(ctx)
}

var (
	_ pipeline.Node          = (*InferNode)(nil)
	_ pipeline.Closer        = (*InferNode)(nil)
	_ pipeline.HealthChecker = (*InferNode)(nil)
)
