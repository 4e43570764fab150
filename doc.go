// Package inferkit 是一个配置驱动的推理服务工具包（Inference Kit）。
//
// 设计要点：
// - Pipeline-first: 每个用例是一条 Node 链（Validate → Assemble → Infer → Decode → Explain）
// - Artifact-first: 列顺序、编码表、标签在启动时从制品加载，加载失败进程拒绝启动
// - 模型不透明: 模型运行在外部模型服务中，本仓库只负责一次推理调用与前后处理
package inferkit

import (
	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/pipeline"
)

// 轻量 facade：便于用户直接 import "inferkit" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind
type PredictContext = core.PredictContext
type PredictionResult = core.PredictionResult

const (
	KindEnrich     = pipeline.KindEnrich
	KindValidate   = pipeline.KindValidate
	KindAssemble   = pipeline.KindAssemble
	KindPreprocess = pipeline.KindPreprocess
	KindInfer      = pipeline.KindInfer
	KindDecode     = pipeline.KindDecode
	KindExplain    = pipeline.KindExplain
)
