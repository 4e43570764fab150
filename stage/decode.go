package stage

import (
	"context"

	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/decode"
	"github.com/rushteam/inferkit/pipeline"
)

// DecodeNode 把原始输出解码为领域结果；Keys 决定渲染响应时使用的字段名
type DecodeNode struct {
	Decoder decode.Decoder
	Keys    decode.Keys
}

func (n *DecodeNode) Name() string        { return "decode." + string(n.Decoder.Policy()) }
func (n *DecodeNode) Kind() pipeline.Kind { return pipeline.KindDecode }

func (n *DecodeNode) Process(ctx context.Context, pctx *core.PredictContext) error {
	if pctx.Raw == nil {
		return core.NewDomainError(core.ModulePipeline, core.ErrorCodeInternalError, "decode node requires a model output")
	}
	result, err := n.Decoder.Decode(*pctx.Raw, pctx.TopK)
	if err != nil {
		return err
	}
	pctx.Result = result
	return nil
}

// Render 渲染响应体
func (n *DecodeNode) Render(result *core.PredictionResult) map[string]any {
	return decode.Render(result, n.Keys)
}

var _ pipeline.Node = (*DecodeNode)(nil)
