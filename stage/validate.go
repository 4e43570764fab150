// Package stage 实现 Pipeline 的内置节点：补齐、校验、组装、预处理、推理、解码、解释。
//
// 节点在用例加载时构建，构建后只读；所有请求级状态都在 core.PredictContext 中。
package stage

import (
	"context"

	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/feature"
	"github.com/rushteam/inferkit/pipeline"
)

// ValidateNode 校验请求记录：一次性报告全部缺失的必填列，再执行列规则。
type ValidateNode struct {
	Schema *feature.Schema
}

func (n *ValidateNode) Name() string        { return "validate" }
func (n *ValidateNode) Kind() pipeline.Kind { return pipeline.KindValidate }

func (n *ValidateNode) Process(ctx context.Context, pctx *core.PredictContext) error {
	if missing := feature.Missing(n.Schema, pctx.Record); len(missing) > 0 {
		return core.NewSchemaError(missing, n.Schema.Len(), len(pctx.Record))
	}
	return feature.CheckRules(n.Schema, pctx.Record)
}

var _ pipeline.Node = (*ValidateNode)(nil)
