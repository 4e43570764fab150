package pipeline

import (
	"context"

	"github.com/rushteam/inferkit/core"
)

// Kind 用于标记 Node 类型，方便观测/治理/编排（例如按阶段打点）。
type Kind string

const (
	KindEnrich     Kind = "enrich"     // 补齐阶段：从特征存储补全请求中缺失的字段
	KindValidate   Kind = "validate"   // 校验阶段：缺失必填列、列规则
	KindAssemble   Kind = "assemble"   // 组装阶段：记录 -> 按制品列顺序的特征向量
	KindPreprocess Kind = "preprocess" // 预处理阶段：图片 -> 张量
	KindInfer      Kind = "infer"      // 推理阶段：一次外部模型调用
	KindDecode     Kind = "decode"     // 解码阶段：原始输出 -> 领域结果
	KindExplain    Kind = "explain"    // 解释阶段：附加特征归因
)

// Node 是 Pipeline 的最小可扩展单元。
// 统一采用 "读写 PredictContext" 的形态：每个节点读取前序节点写入的字段，写入自己负责的字段。
type Node interface {
	Name() string
	Kind() Kind

	Process(ctx context.Context, pctx *core.PredictContext) error
}

// Closer 持有外部连接的节点实现此接口，用例关闭时释放
type Closer interface {
	Close(ctx context.Context) error
}

// HealthChecker 依赖外部后端的节点实现此接口，用于就绪检查（不得触发推理）
type HealthChecker interface {
	Health(ctx context.Context) error
}
